package config

import (
	"fmt"
	"sync"
)

// ProviderType selects the SDK adapter used for a provider entry.
type ProviderType string

const (
	ProviderGemini    ProviderType = "gemini"
	ProviderOpenAI    ProviderType = "openai" // also serves OpenAI-compatible endpoints (Groq) via base_url
	ProviderAnthropic ProviderType = "anthropic"
)

// ModelTier distinguishes the cheap fast model from the powerful one.
type ModelTier string

const (
	TierFast     ModelTier = "fast"
	TierPowerful ModelTier = "powerful"
)

// LLMProviderConfig defines one named provider in llm-providers.yaml.
type LLMProviderConfig struct {
	// Provider type (required)
	Type ProviderType `yaml:"type" validate:"required,oneof=gemini openai anthropic"`

	// Environment variable holding the API key
	APIKeyEnv string `yaml:"api_key_env,omitempty"`

	// Inline API key; populated by env expansion. APIKeyEnv wins when both
	// are set so keys stay out of config files.
	APIKey string `yaml:"api_key,omitempty"`

	// Optional custom endpoint (OpenAI-compatible providers such as Groq)
	BaseURL string `yaml:"base_url,omitempty"`

	// Concrete model names per tier (fast required, powerful defaults to fast)
	FastModel     string `yaml:"fast_model" validate:"required"`
	PowerfulModel string `yaml:"powerful_model,omitempty"`

	// Request cap in tokens; zero lets the adapter pick its default
	MaxTokens int `yaml:"max_tokens,omitempty" validate:"omitempty,min=1"`
}

// Model returns the concrete model name for a tier.
func (c *LLMProviderConfig) Model(tier ModelTier) string {
	if tier == TierPowerful && c.PowerfulModel != "" {
		return c.PowerfulModel
	}
	return c.FastModel
}

// LLMProvidersYAML is the llm-providers.yaml file structure.
type LLMProvidersYAML struct {
	LLMProviders map[string]*LLMProviderConfig `yaml:"llm_providers"`
}

// LLMProviderRegistry stores provider configurations with thread-safe access.
type LLMProviderRegistry struct {
	providers map[string]*LLMProviderConfig
	mu        sync.RWMutex
}

// NewLLMProviderRegistry builds a registry from a provider map. The map is
// copied so later mutation of the source cannot leak in.
func NewLLMProviderRegistry(providers map[string]*LLMProviderConfig) *LLMProviderRegistry {
	copied := make(map[string]*LLMProviderConfig, len(providers))
	for k, v := range providers {
		copied[k] = v
	}
	return &LLMProviderRegistry{providers: copied}
}

// Get retrieves a provider configuration by name.
func (r *LLMProviderRegistry) Get(name string) (*LLMProviderConfig, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrProviderNotFound, name)
	}
	return p, nil
}

// Has reports whether a provider exists.
func (r *LLMProviderRegistry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.providers[name]
	return ok
}

// Names returns all provider names.
func (r *LLMProviderRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.providers))
	for k := range r.providers {
		names = append(names, k)
	}
	return names
}

// Count returns the number of registered providers.
func (r *LLMProviderRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.providers)
}
