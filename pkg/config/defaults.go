package config

import (
	"time"

	"github.com/potto-labs/potto/pkg/models"
)

// builtinStageTiers maps each LM-using stage to its default model tier.
// Routing decisions and short classifications ride the fast model; plan
// authorship, program generation, and summaries get the powerful one.
var builtinStageTiers = map[string]ModelTier{
	models.StageNormalizer:   TierFast,
	models.StageSupervisor:   TierFast,
	models.StageRetriever:    TierFast,
	models.StageErrorHandler: TierFast,
	"intent_analyzer":        TierFast,
	"require_parameter":      TierFast,
	models.StagePlanner:      TierPowerful,
	models.StageCodeGen:      TierPowerful,
	models.StagePresentation: TierPowerful,
}

// DefaultEngineConfig returns built-in engine defaults. ProviderOrder has
// no default; the user must name at least one provider.
func DefaultEngineConfig() *EngineConfig {
	return &EngineConfig{
		LLMTimeout:       60 * time.Second,
		CloudTimeout:     90 * time.Second,
		MaxParallelSteps: 4,
	}
}

// DefaultServerConfig returns built-in server defaults.
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		Host: "127.0.0.1",
		Port: 8090,
	}
}

// DefaultMemoryConfig returns built-in memory defaults.
func DefaultMemoryConfig() *MemoryConfig {
	return &MemoryConfig{
		Dir:      "./memory",
		CacheTTL: 300 * time.Second,
		UserID:   "default",
	}
}

// DefaultRetrievalConfig returns built-in retrieval defaults.
func DefaultRetrievalConfig() *RetrievalConfig {
	return &RetrievalConfig{
		TopK: 5,
		Embedding: EmbeddingConfig{
			Model:      "gemini-embedding-001",
			Dimensions: 1536,
		},
	}
}

// DefaultPromptsConfig returns built-in prompt defaults (embedded only).
func DefaultPromptsConfig() *PromptsConfig {
	return &PromptsConfig{}
}

// DefaultRetentionConfig returns built-in retention defaults.
func DefaultRetentionConfig() *RetentionConfig {
	return &RetentionConfig{
		MemoryMaxAge:  30 * 24 * time.Hour,
		SweepInterval: time.Hour,
		SessionTTL:    30 * time.Minute,
	}
}
