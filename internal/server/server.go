// Package server exposes the submission API over HTTP.
package server

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/joseph-ayodele/docufill/internal/common"
	"github.com/joseph-ayodele/docufill/internal/jobs"
	"github.com/joseph-ayodele/docufill/internal/profiles"
)

// Server wraps the gin engine and its handlers.
type Server struct {
	cfg      common.ServerConfig
	jobs     *jobs.Service
	profiles *profiles.Service
	db       *sql.DB
	logger   *slog.Logger

	http *http.Server
}

func New(cfg common.ServerConfig, jobsSvc *jobs.Service, prof *profiles.Service, db *sql.DB, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{cfg: cfg, jobs: jobsSvc, profiles: prof, db: db, logger: logger}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), s.requestLogger())
	router.MaxMultipartMemory = cfg.MaxUploadBytes
	s.register(router)

	s.http = &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) register(router *gin.Engine) {
	router.GET("/healthz", s.handleHealth)

	v1 := router.Group("/v1")
	{
		v1.POST("/documents", s.handleSubmit)
		v1.GET("/jobs/:id", s.handleGetResult)
		v1.GET("/jobs/:id/audit", s.handleGetAudit)
		v1.GET("/jobs/:id/artifact", s.handleGetArtifact)
		v1.GET("/profiles/:category", s.handleGetProfile)
	}
}

// Start blocks serving HTTP until the listener fails or Shutdown runs.
func (s *Server) Start() error {
	s.logger.Info("http.listen", "addr", s.cfg.HTTPAddr)
	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Info("http.request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
	}
}
