// Package gateway routes language-model calls to the configured providers.
// Each stage declares a model tier (fast or powerful); the gateway maps
// (provider, tier) to a concrete model, walks the ordered fallback chain on
// failure, rotates early on rate-limit signatures, and tracks per-provider
// health with circuit breakers. Total failure yields the "[ERROR: …]"
// sentinel that callers must treat as a stage failure.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/potto-labs/potto/pkg/config"
)

// Role values for prompt messages.
const (
	RoleSystem = "system"
	RoleUser   = "user"
)

// Message is one prompt message handed to a provider.
type Message struct {
	Role    string
	Content string
}

// System and User are Message constructors.
func System(content string) Message { return Message{Role: RoleSystem, Content: content} }

// User builds a user-role message.
func User(content string) Message { return Message{Role: RoleUser, Content: content} }

// Provider is one concrete LM backend. Complete returns the model's text
// for the messages, already stripped of provider framing.
type Provider interface {
	Name() string
	Complete(ctx context.Context, model string, messages []Message, maxTokens int) (string, error)
}

// ErrRateLimited tags provider errors that should rotate the chain early.
var ErrRateLimited = errors.New("provider rate limited")

// rateLimitSignatures are matched case-insensitively against provider
// error text when the provider did not classify the error itself.
var rateLimitSignatures = []string{"resource_exhausted", "resourceexhausted", "429", "quota", "rate limit"}

// IsRateLimited reports whether an error looks like provider throttling.
func IsRateLimited(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrRateLimited) {
		return true
	}
	text := strings.ToLower(err.Error())
	for _, sig := range rateLimitSignatures {
		if strings.Contains(text, sig) {
			return true
		}
	}
	return false
}

// namedProvider pairs a registry entry with its constructed adapter.
type namedProvider struct {
	name     string
	cfg      *config.LLMProviderConfig
	provider Provider
}

// BuildProviders constructs the adapter chain from the engine's provider
// order. Construction failures are fatal: a misconfigured provider in the
// chain would silently shorten the fallback list.
func BuildProviders(order []string, registry *config.LLMProviderRegistry) ([]namedProvider, error) {
	chain := make([]namedProvider, 0, len(order))
	for _, name := range order {
		cfg, err := registry.Get(name)
		if err != nil {
			return nil, err
		}
		p, err := newProvider(name, cfg)
		if err != nil {
			return nil, fmt.Errorf("building provider %s: %w", name, err)
		}
		chain = append(chain, namedProvider{name: name, cfg: cfg, provider: p})
	}
	return chain, nil
}

func newProvider(name string, cfg *config.LLMProviderConfig) (Provider, error) {
	key := resolveAPIKey(cfg)
	if key == "" {
		return nil, fmt.Errorf("provider %s: no API key (set %s)", name, cfg.APIKeyEnv)
	}
	switch cfg.Type {
	case config.ProviderAnthropic:
		return NewAnthropicProvider(name, key), nil
	case config.ProviderOpenAI:
		return NewOpenAIProvider(name, key, cfg.BaseURL), nil
	case config.ProviderGemini:
		return NewGeminiProvider(name, key)
	}
	return nil, fmt.Errorf("unsupported provider type %q", cfg.Type)
}

// resolveAPIKey prefers the environment variable named by the config so
// keys stay out of YAML files.
func resolveAPIKey(cfg *config.LLMProviderConfig) string {
	if cfg.APIKeyEnv != "" {
		if v := os.Getenv(cfg.APIKeyEnv); v != "" {
			return v
		}
	}
	return cfg.APIKey
}
