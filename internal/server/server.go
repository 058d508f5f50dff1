// Package server exposes unit test generation over HTTP with gin
package server

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/tildaslashalef/unitforge/internal/artifacts"
	"github.com/tildaslashalef/unitforge/internal/config"
	"github.com/tildaslashalef/unitforge/internal/export"
	"github.com/tildaslashalef/unitforge/internal/generation"
	"github.com/tildaslashalef/unitforge/internal/loggy"
	"github.com/tildaslashalef/unitforge/internal/metrics"
	"github.com/tildaslashalef/unitforge/internal/parser"
)

// Generations is the generation service as seen by the HTTP layer
type Generations interface {
	Generate(ctx context.Context, files []parser.SourceFile, model string) (*generation.Generation, error)
	Get(ctx context.Context, id string) (*generation.Generation, error)
	List(ctx context.Context, limit, offset int) ([]*generation.Generation, error)
	Export(ctx context.Context, id string, format export.Format, w io.Writer) error
	WriteScripts(ctx context.Context, id string) ([]artifacts.File, error)
	Files(ctx context.Context, id string) ([]artifacts.File, error)
	OpenFile(ctx context.Context, id, rel string) (*os.File, fs.FileInfo, error)
	Run(ctx context.Context, id string, opts generation.RunOptions) (*generation.TestRun, error)
	Runs(ctx context.Context, id string) ([]*generation.TestRun, error)
}

// Server is the HTTP API
type Server struct {
	cfg         config.ServerConfig
	generations Generations
	uploads     *parser.Service
	metrics     *metrics.Metrics
	logger      *loggy.Logger
	engine      *gin.Engine
	httpServer  *http.Server
}

// New builds the router. serviceName labels the spans produced by otelgin.
func New(
	cfg config.ServerConfig,
	serviceName string,
	generations Generations,
	uploads *parser.Service,
	m *metrics.Metrics,
	logger *loggy.Logger,
) *Server {
	s := &Server{
		cfg:         cfg,
		generations: generations,
		uploads:     uploads,
		metrics:     m,
		logger:      logger,
	}

	engine := gin.New()
	engine.Use(
		s.recovery(),
		s.requestID(),
		otelgin.Middleware(serviceName),
		s.accessLog(),
		cors(cfg.AllowedOrigins),
	)
	s.routes(engine)
	s.engine = engine

	s.httpServer = &http.Server{
		Addr:              cfg.Addr(),
		Handler:           engine,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      cfg.WriteTimeout,
	}
	return s
}

func (s *Server) routes(r *gin.Engine) {
	r.GET("/health", s.health)
	r.GET("/metrics", gin.WrapH(s.metrics.Handler()))

	v1 := r.Group("/api/v1")
	{
		v1.POST("/upload", s.upload)
		v1.POST("/generate", s.generate)

		gens := v1.Group("/generations")
		{
			gens.GET("", s.listGenerations)
			gens.GET("/:id", s.getGeneration)
			gens.GET("/:id/export/:format", s.exportGeneration)
			gens.POST("/:id/scripts", s.writeScripts)
			gens.POST("/:id/run", s.runTests)
			gens.GET("/:id/runs", s.listRuns)
			gens.GET("/:id/files", s.listFiles)
			gens.GET("/:id/files/*path", s.downloadFile)
		}
	}
}

// Handler returns the router, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Addr returns the configured listen address
func (s *Server) Addr() string {
	return s.httpServer.Addr
}

// ListenAndServe blocks until the server stops. A graceful shutdown returns nil.
func (s *Server) ListenAndServe() error {
	s.logger.Info("HTTP server listening", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests until ctx is done
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}
