package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/potto-labs/potto/pkg/config"
	"github.com/potto-labs/potto/pkg/models"
)

// ErrorSentinelPrefix marks the text the gateway returns when every
// provider failed. Callers must treat such text as a stage failure, never
// as model output.
const ErrorSentinelPrefix = "[ERROR:"

// IsErrorSentinel reports whether gateway output is the failure sentinel.
func IsErrorSentinel(text string) bool {
	return strings.HasPrefix(strings.TrimSpace(text), ErrorSentinelPrefix)
}

// Caller is the capability the stages depend on. The concrete Gateway
// satisfies it; tests substitute scripted fakes.
type Caller interface {
	// Call runs the messages against the stage's model tier and records
	// elapsed time into the state's timings. The returned text is either
	// model output or the "[ERROR: …]" sentinel.
	Call(ctx context.Context, st *models.TurnState, messages []Message, stage string, useFast bool) string
}

// Gateway routes calls through the ordered provider chain.
type Gateway struct {
	engine   *config.EngineConfig
	chain    []namedProvider
	breakers *providerBreakers
	timeout  time.Duration
	clock    func() time.Time
}

// New builds the gateway from configuration.
func New(engine *config.EngineConfig, registry *config.LLMProviderRegistry) (*Gateway, error) {
	chain, err := BuildProviders(engine.ProviderOrder, registry)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(chain))
	for i, p := range chain {
		names[i] = p.name
	}
	return &Gateway{
		engine:   engine,
		chain:    chain,
		breakers: newProviderBreakers(names),
		timeout:  engine.LLMTimeout,
		clock:    time.Now,
	}, nil
}

// Call implements Caller. It resolves the stage's tier, walks the provider
// chain in order, rotates early on rate-limit signatures, and returns the
// sentinel when every provider fails.
func (g *Gateway) Call(ctx context.Context, st *models.TurnState, messages []Message, stage string, useFast bool) string {
	tier := g.engine.Tier(stage)
	if useFast {
		tier = config.TierFast
	}

	start := g.clock()
	defer func() {
		if st != nil {
			st.RecordTiming(stage, g.clock().Sub(start).Seconds())
		}
	}()

	var lastErr error
	for _, entry := range g.chain {
		if !g.breakers.available(entry.name) {
			slog.Debug("Skipping provider with open breaker", "provider", entry.name, "stage", stage)
			continue
		}
		model := entry.cfg.Model(tier)

		callCtx := ctx
		var cancel context.CancelFunc
		if g.timeout > 0 {
			callCtx, cancel = context.WithTimeout(ctx, g.timeout)
		}
		text, err := g.breakers.observe(entry.name, func() (string, error) {
			return entry.provider.Complete(callCtx, model, messages, entry.cfg.MaxTokens)
		})
		if cancel != nil {
			cancel()
		}
		if err == nil {
			return text
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
		if IsRateLimited(err) {
			slog.Warn("Provider rate limited, rotating",
				"provider", entry.name, "stage", stage, "error", err)
			continue
		}
		slog.Warn("Provider call failed, trying next",
			"provider", entry.name, "stage", stage, "error", err)
	}

	if lastErr == nil {
		lastErr = fmt.Errorf("no provider available")
	}
	slog.Error("All LLM providers failed", "stage", stage, "error", lastErr)
	return fmt.Sprintf("%s %v]", ErrorSentinelPrefix, lastErr)
}
