// Package cleanup enforces retention in the background: expired memory
// files, overgrown history logs, stale cache entries, and sessions whose
// interactive prompt was never answered.
package cleanup

import (
	"context"
	"log/slog"
	"time"

	"github.com/potto-labs/potto/pkg/config"
	"github.com/potto-labs/potto/pkg/memory"
	"github.com/potto-labs/potto/pkg/session"
)

// Service periodically runs the retention passes. All passes are
// idempotent; a failed pass is logged and retried on the next tick.
type Service struct {
	config   *config.RetentionConfig
	memory   *memory.Manager
	sessions *session.Manager

	cancel context.CancelFunc
	done   chan struct{}
}

// NewService creates a new cleanup service.
func NewService(cfg *config.RetentionConfig, mem *memory.Manager, sessions *session.Manager) *Service {
	return &Service{
		config:   cfg,
		memory:   mem,
		sessions: sessions,
	}
}

// Start launches the background cleanup loop.
func (s *Service) Start(ctx context.Context) {
	if s.cancel != nil {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})

	go s.run(ctx)

	slog.Info("Cleanup service started",
		"memory_max_age", s.config.MemoryMaxAge,
		"session_ttl", s.config.SessionTTL,
		"interval", s.interval())
}

// Stop signals the cleanup loop to exit and waits for it to finish.
func (s *Service) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	slog.Info("Cleanup service stopped")
}

func (s *Service) interval() time.Duration {
	if s.config.SweepInterval > 0 {
		return s.config.SweepInterval
	}
	return time.Hour
}

func (s *Service) run(ctx context.Context) {
	defer close(s.done)

	s.runAll()

	ticker := time.NewTicker(s.interval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runAll()
		}
	}
}

func (s *Service) runAll() {
	s.pruneMemoryFiles()
	s.trimHistories()
	s.sweepCaches()
	s.sweepSessions()
}

func (s *Service) pruneMemoryFiles() {
	if s.memory == nil || s.config.MemoryMaxAge <= 0 {
		return
	}
	count, err := s.memory.PruneOldFiles(s.config.MemoryMaxAge)
	if err != nil {
		slog.Error("Retention: memory prune failed", "error", err)
		return
	}
	if count > 0 {
		slog.Info("Retention: pruned old memory files", "count", count)
	}
}

func (s *Service) trimHistories() {
	if s.memory == nil {
		return
	}
	s.memory.TrimHistories()
}

func (s *Service) sweepCaches() {
	if s.memory == nil {
		return
	}
	if count := s.memory.SweepCache(); count > 0 {
		slog.Debug("Retention: swept cache entries", "count", count)
	}
}

func (s *Service) sweepSessions() {
	if s.sessions == nil || s.config.SessionTTL <= 0 {
		return
	}
	if count := s.sessions.SweepIdle(s.config.SessionTTL); count > 0 {
		slog.Info("Retention: expired idle sessions", "count", count)
	}
}
