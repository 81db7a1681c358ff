// Package api exposes the HTTP surface: turn submission, interactive
// resume, cancellation, transcripts, suggestions, and health.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/potto-labs/potto/pkg/config"
	"github.com/potto-labs/potto/pkg/engine"
	"github.com/potto-labs/potto/pkg/memory"
	"github.com/potto-labs/potto/pkg/session"
	"github.com/potto-labs/potto/pkg/version"
)

// Server wires the engine and session registry behind a gin router.
type Server struct {
	config   *config.ServerConfig
	engine   *engine.Engine
	sessions *session.Manager
	memory   *memory.Manager

	router *gin.Engine
	srv    *http.Server
}

// NewServer builds the server and registers all routes.
func NewServer(cfg *config.ServerConfig, eng *engine.Engine, sessions *session.Manager, mem *memory.Manager) *Server {
	gin.SetMode(gin.ReleaseMode)
	s := &Server{
		config:   cfg,
		engine:   eng,
		sessions: sessions,
		memory:   mem,
		router:   gin.New(),
	}
	s.router.Use(gin.Recovery(), requestLogger())
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.router.GET("/health", s.handleHealth)

	v1 := s.router.Group("/api/v1")
	v1.POST("/chat", s.handleChat)
	v1.POST("/sessions/:id/resume", s.handleResume)
	v1.POST("/sessions/:id/cancel", s.handleCancel)
	v1.GET("/sessions/:id/transcript", s.handleTranscript)
	v1.GET("/suggestions", s.handleSuggestions)
}

// Router returns the underlying gin engine, mainly for tests.
func (s *Server) Router() http.Handler {
	return s.router
}

// Start begins serving on the configured address. Blocks until the
// listener fails or Shutdown is called.
func (s *Server) Start() error {
	s.srv = &http.Server{
		Addr:              s.config.Addr(),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	slog.Info("API server listening", "addr", s.config.Addr())
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":   "healthy",
		"service":  version.AppName,
		"version":  version.GitCommit,
		"sessions": s.sessions.Count(),
	})
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		slog.Debug("HTTP request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration_ms", time.Since(start).Milliseconds())
	}
}
