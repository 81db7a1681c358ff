// Package presenter builds the turn's single output object: a tabular
// data answer, a chat reply, or one of the interactive prompts that
// suspend the turn for user input.
package presenter

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/potto-labs/potto/pkg/gateway"
	"github.com/potto-labs/potto/pkg/models"
	"github.com/potto-labs/potto/pkg/prompt"
)

const stageName = "presentation"

// summaryRowLimit caps how many rows ride along in the summary prompt.
const summaryRowLimit = 20

// Presenter is the presentation stage.
type Presenter struct {
	llm     gateway.Caller
	prompts *prompt.Manager
}

// NewPresenter wires the presenter.
func NewPresenter(llm gateway.Caller, prompts *prompt.Manager) *Presenter {
	return &Presenter{llm: llm, prompts: prompts}
}

// Run renders the presentation for the routed mode. Interactive modes
// suspend the turn; everything else proceeds to the memory save.
func (p *Presenter) Run(ctx context.Context, st *models.TurnState) (*models.Overlay, error) {
	mode := st.PresentationMode
	if mode == "" {
		switch {
		case st.ExecutionError != "":
			mode = models.PresentError
		case len(st.ExecutionResult) > 0:
			mode = models.PresentData
		default:
			mode = models.PresentGeneralChat
		}
	}

	var pres *models.Presentation
	switch mode {
	case models.PresentData:
		pres = p.presentData(ctx, st)
	case models.PresentGeneralChat:
		pres = p.presentChat(ctx, st)
	case models.PresentConfirmation:
		pres = confirmationPrompt(st)
	case models.PresentParameterGather:
		pres = parameterPrompt(st)
	case models.PresentCompartmentSelect:
		pres = compartmentPrompt(st)
	case models.PresentCancelled:
		pres = &models.Presentation{
			Summary:         "Okay, I cancelled that. Nothing was changed.",
			Format:          models.FormatChat,
			ActionCancelled: true,
		}
	case models.PresentError:
		pres = errorPresentation(st)
	case models.PresentLimitReached:
		pres = &models.Presentation{
			Summary: "This request needed more processing rounds than a single turn allows. " +
				"Please break it into smaller steps and try again.",
			Format: models.FormatChat,
		}
	default:
		pres = p.presentChat(ctx, st)
	}

	next := models.StageMemorySave
	if pres.Interactive() {
		next = models.StageUserInput
	}
	return &models.Overlay{
		Presentation: pres,
		NextStep:     models.StringPtr(next),
	}, nil
}

// presentData builds the table and asks the LM for a short summary. A
// failed summary degrades to counts; the data still goes out.
func (p *Presenter) presentData(ctx context.Context, st *models.TurnState) *models.Presentation {
	rows := make([]map[string]any, 0, len(st.ExecutionResult))
	for _, item := range st.ExecutionResult {
		rows = append(rows, scrub(item.AsMap()))
	}
	columns := selectColumns(rows)
	ok, failed := models.CountResults(st.ExecutionResult)

	summary := fmt.Sprintf("Found %d result(s), %d error(s).", ok, failed)
	if text, err := p.renderSummary(st, rows, failed); err == nil {
		if answer := p.llm.Call(ctx, st, []gateway.Message{gateway.User(text)}, stageName, false); !gateway.IsErrorSentinel(answer) {
			summary = strings.TrimSpace(answer)
		}
	}

	format := models.FormatTable
	if len(rows) == 0 {
		format = models.FormatChat
	}
	return &models.Presentation{
		Summary: summary,
		Format:  format,
		Data:    rows,
		Columns: columns,
	}
}

func (p *Presenter) renderSummary(st *models.TurnState, rows []map[string]any, failed int) (string, error) {
	sample := rows
	if len(sample) > summaryRowLimit {
		sample = sample[:summaryRowLimit]
	}
	raw, err := json.Marshal(sample)
	if err != nil {
		return "", err
	}
	return p.prompts.Render(prompt.Presentation, map[string]any{
		"Query":   st.UserInput,
		"Count":   len(rows),
		"Errors":  failed,
		"Results": string(raw),
	})
}

// presentChat answers general conversation, salting the prompt with the
// user's frequent actions when memory has any.
func (p *Presenter) presentChat(ctx context.Context, st *models.TurnState) *models.Presentation {
	var suggestions string
	if st.MemoryContext != nil && len(st.MemoryContext.Suggestions) > 0 {
		var lines []string
		for _, s := range st.MemoryContext.Suggestions {
			lines = append(lines, "- "+s.Description)
		}
		suggestions = strings.Join(lines, "\n")
	}
	summary := "I can list, inspect, create, update, and delete resources in your cloud tenancy. What would you like to do?"
	if text, err := p.prompts.Render(prompt.Supervisor, map[string]any{
		"Query":       st.UserInput,
		"Suggestions": suggestions,
	}); err == nil {
		if answer := p.llm.Call(ctx, st, []gateway.Message{gateway.User(text)}, stageName, true); !gateway.IsErrorSentinel(answer) {
			summary = strings.TrimSpace(answer)
		}
	}
	return &models.Presentation{Summary: summary, Format: models.FormatChat}
}

func confirmationPrompt(st *models.TurnState) *models.Presentation {
	plan := st.EffectivePlan()
	var b strings.Builder
	b.WriteString("This will make changes to your tenancy:\n")
	if plan != nil {
		for i, step := range plan.AllSteps() {
			b.WriteString(fmt.Sprintf("  %d. %s on %s", i+1, step.Action, step.Service))
			if keys := paramSummary(step.Params); keys != "" {
				b.WriteString(" (" + keys + ")")
			}
			b.WriteString("\n")
		}
	}
	b.WriteString("Proceed? (yes/no)")
	return &models.Presentation{
		Summary:              b.String(),
		Format:               models.FormatChat,
		ConfirmationRequired: true,
	}
}

func parameterPrompt(st *models.TurnState) *models.Presentation {
	missing := st.MissingParameters
	var b strings.Builder
	b.WriteString("I need a bit more information before I can do that:\n")
	for _, name := range missing {
		b.WriteString("  - " + name + "\n")
	}
	b.WriteString("Please provide the value(s), e.g. \"" + exampleAnswer(missing) + "\".")
	return &models.Presentation{
		Summary:                    b.String(),
		Format:                     models.FormatChat,
		ParameterGatheringRequired: true,
		MissingParameters:          missing,
	}
}

func compartmentPrompt(st *models.TurnState) *models.Presentation {
	var b strings.Builder
	b.WriteString("Which compartment should I use?\n")
	for i, item := range st.CompartmentData {
		name, _ := item.Attrs["name"].(string)
		b.WriteString(fmt.Sprintf("  %d. %s\n", i+1, name))
	}
	b.WriteString("Answer with a number.")
	return &models.Presentation{
		Summary:                      b.String(),
		Format:                       models.FormatChat,
		CompartmentSelectionRequired: true,
		MissingParameters:            []string{"compartment_id"},
	}
}

// errorPresentation is the fallback when a failed turn reaches the
// presenter without the error handler's guidance. Raw error text never
// reaches the user; only classified prose does.
func errorPresentation(st *models.TurnState) *models.Presentation {
	errText := st.ExecutionError
	if errText == "" {
		errText = st.PlanError
	}
	return &models.Presentation{Summary: friendlyFailure(errText), Format: models.FormatChat}
}

func friendlyFailure(errText string) string {
	lower := strings.ToLower(errText)
	switch {
	case strings.Contains(lower, "permission") || strings.Contains(lower, "not authorized"):
		return "That operation was blocked by your tenancy's permissions. Check that your credentials can access the compartment and try again."
	case strings.Contains(lower, "rate limit") || strings.Contains(lower, "quota"):
		return "The cloud provider is throttling requests right now. Wait a moment and try again."
	case strings.Contains(lower, "not found"):
		return "I couldn't find that resource. Verify the name or identifier and try again."
	default:
		return "The operation didn't complete. Try rephrasing the request, or break it into smaller steps."
	}
}

func exampleAnswer(missing []string) string {
	if len(missing) == 0 {
		return "name: value"
	}
	return missing[0] + ": <value>"
}

func paramSummary(params map[string]any) string {
	var parts []string
	for k, v := range params {
		if k == "all_compartments" {
			continue
		}
		parts = append(parts, fmt.Sprintf("%s=%v", k, v))
	}
	sort.Strings(parts)
	return strings.Join(parts, ", ")
}

// scrub drops SDK bookkeeping fields from a row.
func scrub(attrs map[string]any) map[string]any {
	out := make(map[string]any, len(attrs))
	for k, v := range attrs {
		if droppedColumns[k] {
			continue
		}
		out[k] = v
	}
	return out
}

// selectColumns orders the union of row fields: priority columns first in
// their fixed order, the rest alphabetically, capped.
func selectColumns(rows []map[string]any) []string {
	present := map[string]bool{}
	for _, row := range rows {
		for k := range row {
			present[k] = true
		}
	}
	var columns []string
	for _, col := range columnPriority {
		if present[col] {
			columns = append(columns, col)
			delete(present, col)
		}
	}
	var rest []string
	for k := range present {
		rest = append(rest, k)
	}
	sort.Strings(rest)
	columns = append(columns, rest...)
	if len(columns) > maxColumns {
		columns = columns[:maxColumns]
	}
	return columns
}
