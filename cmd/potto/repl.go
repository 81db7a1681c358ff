package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/potto-labs/potto/pkg/engine"
	"github.com/potto-labs/potto/pkg/models"
	"github.com/potto-labs/potto/pkg/session"
)

// runREPL drives the engine from the terminal. Interactive prompts
// (confirmations, parameter gathering, compartment picks) read their
// answer from the next input line.
func runREPL(ctx context.Context, eng *engine.Engine, sessions *session.Manager) {
	sess := sessions.Create("")
	fmt.Println("potto — ask about your tenancy. Type 'exit' to quit.")

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			fmt.Println()
			return
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "exit" || line == "quit" {
			return
		}

		st, err := runTurn(ctx, eng, sessions, sess.ID, line)
		if err != nil {
			slog.Error("Turn failed", "error", err)
			continue
		}
		printPresentation(st.Presentation)
	}
}

// runTurn either resumes the paused turn with the input as its answer,
// or starts a fresh turn.
func runTurn(ctx context.Context, eng *engine.Engine, sessions *session.Manager, sessionID, input string) (*models.TurnState, error) {
	turnCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	if err := sessions.Begin(sessionID, cancel); err != nil {
		return nil, err
	}

	if paused, err := sessions.TakePaused(sessionID); err == nil {
		err = eng.Resume(turnCtx, paused, input, nil)
		sessions.Finish(sessionID, paused)
		return paused, err
	}

	st := models.NewTurnState(sessionID, input)
	err := eng.Run(turnCtx, &st, nil)
	sessions.Finish(sessionID, &st)
	return &st, err
}

func printPresentation(p *models.Presentation) {
	if p == nil {
		return
	}
	fmt.Println(p.Summary)
	if p.Format != models.FormatTable || len(p.Data) == 0 {
		return
	}
	columns := p.Columns
	if len(columns) == 0 {
		return
	}
	fmt.Println(strings.Join(columns, " | "))
	for _, row := range p.Data {
		cells := make([]string, len(columns))
		for i, col := range columns {
			if v, ok := row[col]; ok && v != nil {
				cells[i] = fmt.Sprint(v)
			}
		}
		fmt.Println(strings.Join(cells, " | "))
	}
}
