package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"dario.cat/mergo"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// pottoYAML is the potto.yaml file structure.
type pottoYAML struct {
	Engine    *EngineConfig    `yaml:"engine"`
	Server    *ServerConfig    `yaml:"server"`
	Memory    *MemoryConfig    `yaml:"memory"`
	Retrieval *RetrievalConfig `yaml:"retrieval"`
	Prompts   *PromptsConfig   `yaml:"prompts"`
	Cloud     *CloudConfig     `yaml:"cloud"`
	Retention *RetentionConfig `yaml:"retention"`
}

// Initialize loads, merges, validates, and returns ready-to-use
// configuration. This is the primary entry point.
//
// Steps performed:
//  1. Load potto.yaml and llm-providers.yaml from configDir
//  2. Expand {{.ENV_VAR}} templates
//  3. Parse YAML into structs
//  4. Merge built-in defaults under user values
//  5. Build the provider registry
//  6. Validate everything, including cross-references
func Initialize(ctx context.Context, configDir string) (*Config, error) {
	log := slog.With("config_dir", configDir)
	log.Info("Initializing configuration")

	cfg, err := load(ctx, configDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidationFailed, err)
	}

	stats := cfg.Stats()
	log.Info("Configuration initialized",
		"providers", stats.Providers,
		"provider_order", stats.ProviderOrder,
		"stage_tier_overrides", stats.StageTiers)

	return cfg, nil
}

func load(_ context.Context, configDir string) (*Config, error) {
	var main pottoYAML
	if err := readYAML(filepath.Join(configDir, "potto.yaml"), &main); err != nil {
		return nil, NewLoadError("potto.yaml", err)
	}

	var providers LLMProvidersYAML
	if err := readYAML(filepath.Join(configDir, "llm-providers.yaml"), &providers); err != nil {
		return nil, NewLoadError("llm-providers.yaml", err)
	}
	if len(providers.LLMProviders) == 0 {
		return nil, NewLoadError("llm-providers.yaml", ErrNoProviders)
	}

	engine := DefaultEngineConfig()
	if main.Engine != nil {
		if err := mergo.Merge(engine, main.Engine, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("merging engine config: %w", err)
		}
	}
	server := DefaultServerConfig()
	if main.Server != nil {
		if err := mergo.Merge(server, main.Server, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("merging server config: %w", err)
		}
	}
	memory := DefaultMemoryConfig()
	if main.Memory != nil {
		if err := mergo.Merge(memory, main.Memory, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("merging memory config: %w", err)
		}
	}
	retrieval := DefaultRetrievalConfig()
	if main.Retrieval != nil {
		if err := mergo.Merge(retrieval, main.Retrieval, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("merging retrieval config: %w", err)
		}
	}
	prompts := DefaultPromptsConfig()
	if main.Prompts != nil {
		if err := mergo.Merge(prompts, main.Prompts, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("merging prompts config: %w", err)
		}
	}
	retention := DefaultRetentionConfig()
	if main.Retention != nil {
		if err := mergo.Merge(retention, main.Retention, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("merging retention config: %w", err)
		}
	}
	cloudCfg := main.Cloud
	if cloudCfg == nil {
		cloudCfg = &CloudConfig{Demo: true}
	}

	return &Config{
		configDir: configDir,
		Engine:    engine,
		Server:    server,
		Memory:    memory,
		Retrieval: retrieval,
		Prompts:   prompts,
		Cloud:     cloudCfg,
		Retention: retention,
		Providers: NewLLMProviderRegistry(providers.LLMProviders),
	}, nil
}

func readYAML(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrConfigNotFound, path)
		}
		return err
	}
	expanded := ExpandEnv(data)
	if err := yaml.Unmarshal(expanded, out); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidYAML, err)
	}
	return nil
}

// validate runs struct-tag validation plus cross-reference checks.
func validate(cfg *Config) error {
	v := validator.New()

	sections := map[string]any{
		"engine":    cfg.Engine,
		"server":    cfg.Server,
		"memory":    cfg.Memory,
		"retrieval": cfg.Retrieval,
		"retention": cfg.Retention,
	}
	for name, section := range sections {
		if err := v.Struct(section); err != nil {
			return &ValidationError{Component: name, ID: "config", Err: err}
		}
	}

	for name, provider := range cfg.Providers.providers {
		if err := v.Struct(provider); err != nil {
			return &ValidationError{Component: "llm_provider", ID: name, Err: err}
		}
	}

	// Every name in the fallback chain must resolve.
	for _, name := range cfg.Engine.ProviderOrder {
		if !cfg.Providers.Has(name) {
			return &ValidationError{
				Component: "engine", ID: "provider_order", Field: name,
				Err: fmt.Errorf("%w: %s", ErrProviderNotFound, name),
			}
		}
	}

	// The embedding provider, when named, must resolve too.
	if emb := cfg.Retrieval.Embedding.Provider; emb != "" && !cfg.Providers.Has(emb) {
		return &ValidationError{
			Component: "retrieval", ID: "embedding", Field: "provider",
			Err: fmt.Errorf("%w: %s", ErrProviderNotFound, emb),
		}
	}

	for _, tier := range cfg.Engine.StageTiers {
		if tier != TierFast && tier != TierPowerful {
			return &ValidationError{
				Component: "engine", ID: "stage_tiers",
				Err: fmt.Errorf("%w: tier %q", ErrInvalidReference, tier),
			}
		}
	}

	return nil
}
