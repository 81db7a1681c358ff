// Package config loads, validates, and exposes the engine configuration:
// potto.yaml (engine, server, memory, retrieval, prompts, cloud, retention)
// and llm-providers.yaml (named LM provider entries). Loading follows the
// fixed pipeline: read files, expand {{.ENV}} templates, parse YAML, merge
// built-in defaults, build registries, validate.
package config

import (
	"fmt"
	"time"
)

// Config is the fully-resolved configuration the application runs on.
type Config struct {
	configDir string

	Engine    *EngineConfig
	Server    *ServerConfig
	Memory    *MemoryConfig
	Retrieval *RetrievalConfig
	Prompts   *PromptsConfig
	Cloud     *CloudConfig
	Retention *RetentionConfig

	Providers *LLMProviderRegistry
}

// ConfigDir returns the directory configuration was loaded from.
func (c *Config) ConfigDir() string {
	return c.configDir
}

// Stats summarizes the loaded configuration for startup logging.
type Stats struct {
	Providers     int
	ProviderOrder []string
	StageTiers    int
}

// Stats returns configuration statistics.
func (c *Config) Stats() Stats {
	return Stats{
		Providers:     c.Providers.Count(),
		ProviderOrder: c.Engine.ProviderOrder,
		StageTiers:    len(c.Engine.StageTiers),
	}
}

// EngineConfig controls the turn pipeline.
type EngineConfig struct {
	// ProviderOrder is the gateway fallback chain, first entry primary.
	ProviderOrder []string `yaml:"provider_order" validate:"required,min=1"`

	// StageTiers overrides the built-in stage→tier mapping.
	StageTiers map[string]ModelTier `yaml:"stage_tiers,omitempty"`

	// LLMTimeout bounds each LM call.
	LLMTimeout time.Duration `yaml:"llm_timeout,omitempty"`

	// CloudTimeout bounds each cloud operation.
	CloudTimeout time.Duration `yaml:"cloud_timeout,omitempty"`

	// ParallelSafeSteps allows read-only independent multi-step plans to
	// run concurrently. Sequential execution is the reference semantics.
	ParallelSafeSteps bool `yaml:"parallel_safe_steps,omitempty"`

	// MaxParallelSteps bounds the concurrency when ParallelSafeSteps is on.
	MaxParallelSteps int `yaml:"max_parallel_steps,omitempty" validate:"omitempty,min=1"`
}

// Tier returns the model tier for a stage, falling back to the built-in map.
func (e *EngineConfig) Tier(stage string) ModelTier {
	if t, ok := e.StageTiers[stage]; ok {
		return t
	}
	if t, ok := builtinStageTiers[stage]; ok {
		return t
	}
	return TierFast
}

// ServerConfig controls the HTTP surface.
type ServerConfig struct {
	Host string `yaml:"host,omitempty"`
	Port int    `yaml:"port,omitempty" validate:"omitempty,min=1,max=65535"`
}

// Addr returns the listen address.
func (s *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// MemoryConfig controls the layered memory subsystem.
type MemoryConfig struct {
	// Dir is the memory directory holding the JSON store files.
	Dir string `yaml:"dir" validate:"required"`

	// CacheTTL is the read-through cache lifetime.
	CacheTTL time.Duration `yaml:"cache_ttl,omitempty"`

	// UserID scopes preferences in this single-user process.
	UserID string `yaml:"user_id,omitempty"`
}

// RetrievalConfig controls the semantic-search path.
// Enabled is a *bool: nil means "use default" (enabled), explicit false disables.
type RetrievalConfig struct {
	Enabled *bool `yaml:"enabled,omitempty"`
	TopK    int   `yaml:"top_k,omitempty" validate:"omitempty,min=1"`

	Embedding EmbeddingConfig `yaml:"embedding"`
}

// Disabled returns true only when Enabled is explicitly set to false.
func (c *RetrievalConfig) Disabled() bool {
	return c.Enabled != nil && !*c.Enabled
}

// BoolPtr returns a pointer to b. Convenience for *bool struct fields.
func BoolPtr(b bool) *bool { return &b }

// EmbeddingConfig selects the embedding provider.
type EmbeddingConfig struct {
	// Provider names an entry in llm-providers.yaml used for embeddings.
	Provider string `yaml:"provider,omitempty"`
	Model    string `yaml:"model,omitempty"`

	// Dimensions is the expected vector width.
	Dimensions int `yaml:"dimensions,omitempty" validate:"omitempty,min=1"`
}

// PromptsConfig controls prompt template loading.
type PromptsConfig struct {
	// Dir overrides the embedded templates when present.
	Dir string `yaml:"dir,omitempty"`

	// Watch enables hot reload of the override directory.
	Watch bool `yaml:"watch,omitempty"`
}

// CloudConfig carries tenancy credentials. Key material normally arrives
// through env expansion rather than literal YAML.
type CloudConfig struct {
	TenancyOCID string `yaml:"tenancy_ocid,omitempty"`
	UserOCID    string `yaml:"user_ocid,omitempty"`
	Fingerprint string `yaml:"fingerprint,omitempty"`
	Region      string `yaml:"region,omitempty"`
	KeyFile     string `yaml:"key_file,omitempty"`
	KeyContent  string `yaml:"key_content,omitempty"`

	// Demo switches the client factory to the in-memory tenancy.
	Demo bool `yaml:"demo,omitempty"`
}

// RetentionConfig controls the cleanup service.
type RetentionConfig struct {
	// MemoryMaxAge prunes memory files older than this.
	MemoryMaxAge time.Duration `yaml:"memory_max_age,omitempty"`

	// SweepInterval is the pause between cleanup passes.
	SweepInterval time.Duration `yaml:"sweep_interval,omitempty"`

	// SessionTTL expires suspended sessions that never resumed.
	SessionTTL time.Duration `yaml:"session_ttl,omitempty"`
}

