// Potto server — the natural-language tenancy agent. Serves the HTTP
// API, or an interactive terminal session with -repl.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/potto-labs/potto/pkg/api"
	"github.com/potto-labs/potto/pkg/cleanup"
	"github.com/potto-labs/potto/pkg/cloud"
	"github.com/potto-labs/potto/pkg/config"
	"github.com/potto-labs/potto/pkg/engine"
	"github.com/potto-labs/potto/pkg/gateway"
	"github.com/potto-labs/potto/pkg/memory"
	"github.com/potto-labs/potto/pkg/prompt"
	"github.com/potto-labs/potto/pkg/retrieval"
	"github.com/potto-labs/potto/pkg/session"
	"github.com/potto-labs/potto/pkg/version"
)

const demoTenancyOCID = "ocid1.tenancy.oc1..demo"

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	configDir := flag.String("config-dir",
		getEnv("CONFIG_DIR", "./config"),
		"Path to configuration directory")
	repl := flag.Bool("repl", false, "Run an interactive terminal session instead of the HTTP server")
	flag.Parse()

	// Load .env file from config directory
	envPath := filepath.Join(*configDir, ".env")
	if err := godotenv.Load(envPath); err != nil {
		slog.Debug("No .env file, continuing with existing environment", "path", envPath)
	} else {
		slog.Info("Loaded environment", "path", envPath)
	}

	slog.Info("Starting potto", "version", version.Full(), "config_dir", *configDir)

	ctx := context.Background()

	// 1. Initialize configuration
	cfg, err := config.Initialize(ctx, *configDir)
	if err != nil {
		slog.Error("Failed to initialize configuration", "error", err)
		os.Exit(1)
	}

	// 2. Build the LM gateway
	llm, err := gateway.New(cfg.Engine, cfg.Providers)
	if err != nil {
		slog.Error("Failed to build LM gateway", "error", err)
		os.Exit(1)
	}

	// 3. Prompt templates (embedded defaults, optional override dir)
	prompts, err := prompt.NewManager(cfg.Prompts.Dir)
	if err != nil {
		slog.Error("Failed to load prompt templates", "error", err)
		os.Exit(1)
	}
	defer prompts.Close()
	if cfg.Prompts.Watch {
		if err := prompts.Watch(); err != nil {
			slog.Warn("Prompt hot reload unavailable", "error", err)
		}
	}

	// 4. Memory
	mem, err := memory.NewManager(cfg.Memory)
	if err != nil {
		slog.Error("Failed to initialize memory", "error", err)
		os.Exit(1)
	}

	// 5. Cloud tenancy
	factory, cloudCfg, err := buildCloud(cfg.Cloud)
	if err != nil {
		slog.Error("Failed to initialize cloud tenancy", "error", err)
		os.Exit(1)
	}

	// 6. Retrieval (optional)
	embedder, store := buildRetrieval(cfg, *configDir)

	// 7. Assemble the turn engine
	eng := engine.Build(engine.Deps{
		Config:      cfg,
		LLM:         llm,
		Prompts:     prompts,
		Memory:      mem,
		Factory:     factory,
		CloudCfg:    cloudCfg,
		Embedder:    embedder,
		VectorStore: store,
	})

	sessions := session.NewManager()

	// 8. Background retention
	retention := cleanup.NewService(cfg.Retention, mem, sessions)
	retention.Start(ctx)
	defer retention.Stop()

	if *repl {
		runREPL(ctx, eng, sessions)
		return
	}

	// 9. HTTP server
	server := api.NewServer(cfg.Server, eng, sessions, mem)
	errCh := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil {
			errCh <- err
		}
	}()

	slog.Info("Potto started", "addr", cfg.Server.Addr())

	// 10. Wait for shutdown signal or server error
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigCh:
		slog.Info("Shutdown signal received", "signal", sig)
	case err := <-errCh:
		slog.Error("Server error triggered shutdown", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}
	slog.Info("Shutdown complete")
}

// buildCloud resolves the tenancy the executor talks to. The demo tenancy
// is the default when no credentials are configured.
func buildCloud(cc *config.CloudConfig) (cloud.ClientFactory, cloud.Config, error) {
	if cc == nil || cc.Demo || cc.TenancyOCID == "" {
		tenancy := demoTenancyOCID
		if cc != nil && cc.TenancyOCID != "" {
			tenancy = cc.TenancyOCID
		}
		slog.Info("Using demo tenancy", "tenancy", tenancy)
		return cloud.NewInMemoryFactory(tenancy), cloud.Config{TenancyOCID: tenancy}, nil
	}
	cloudCfg, err := cloud.BuildConfig(cloud.Credentials{
		TenancyOCID: cc.TenancyOCID,
		UserOCID:    cc.UserOCID,
		Fingerprint: cc.Fingerprint,
		Region:      cc.Region,
		KeyFile:     cc.KeyFile,
		KeyContent:  cc.KeyContent,
	})
	if err != nil {
		return nil, cloud.Config{}, err
	}
	return nil, cloudCfg, fmt.Errorf("live tenancy transport is not wired in this build; set cloud.demo: true")
}

// buildRetrieval assembles the optional semantic-search path. Returns
// nils when retrieval is disabled or not fully configured; the engine
// then routes around the retriever.
func buildRetrieval(cfg *config.Config, configDir string) (retrieval.Embedder, retrieval.VectorStore) {
	rc := cfg.Retrieval
	if rc == nil || rc.Disabled() || rc.Embedding.Provider == "" {
		slog.Info("Retrieval disabled")
		return nil, nil
	}
	provider, err := cfg.Providers.Get(rc.Embedding.Provider)
	if err != nil {
		slog.Warn("Retrieval embedding provider not configured, disabling retrieval",
			"provider", rc.Embedding.Provider, "error", err)
		return nil, nil
	}
	apiKey := provider.APIKey
	if provider.APIKeyEnv != "" {
		if v := os.Getenv(provider.APIKeyEnv); v != "" {
			apiKey = v
		}
	}
	embedder, err := retrieval.NewGenAIEmbedder(apiKey, rc.Embedding.Model, rc.Embedding.Dimensions)
	if err != nil {
		slog.Warn("Embedder unavailable, disabling retrieval", "error", err)
		return nil, nil
	}

	store := retrieval.NewInMemoryStore()
	indexPath := filepath.Join(configDir, "retrieval-index.json")
	if count, err := store.LoadFile(indexPath); err != nil {
		slog.Warn("No retrieval index loaded", "path", indexPath, "error", err)
	} else {
		slog.Info("Retrieval index loaded", "path", indexPath, "documents", count)
	}
	return retrieval.NewCachedEmbedder(embedder), store
}
