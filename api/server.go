// Package api implements the HTTP API for text generation and model
// management.
package api

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lmforge/tgen/engine"
	"github.com/lmforge/tgen/logx"
	"github.com/lmforge/tgen/registry"
)

// Generator is the generation surface the server drives. *engine.Engine
// satisfies it.
type Generator interface {
	LoadModel(dir string) error
	IsLoaded() bool
	ModelDir() string
	Generate(ctx context.Context, prompt string, opts engine.GenerateOptions) ([]string, error)
	GenerateStream(ctx context.Context, prompt string, opts engine.GenerateOptions, callback func(piece string) bool) error
}

// Options configures a Server.
type Options struct {
	Addr           string
	AllowedOrigins []string
	// DefaultModel is used when a request does not name a model.
	DefaultModel string
}

// Server serves the generation and model management API.
type Server struct {
	gen     Generator
	manager *registry.ModelManager
	opts    Options
	metrics *metrics

	mu sync.Mutex // guards model swaps
}

// NewServer creates a server around a generator and a model manager.
func NewServer(gen Generator, manager *registry.ModelManager, opts Options) *Server {
	if opts.Addr == "" {
		opts.Addr = ":11434"
	}
	if len(opts.AllowedOrigins) == 0 {
		opts.AllowedOrigins = []string{"*"}
	}
	return &Server{
		gen:     gen,
		manager: manager,
		opts:    opts,
		metrics: newMetrics(),
	}
}

// Handler builds the router with all routes and middleware.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(requestLogger)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.opts.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Post("/generate", s.handleGenerate)
		r.Post("/chat", s.handleChat)
		r.Get("/tags", s.handleListModels)
		r.Post("/pull", s.handlePullModel)
		r.Delete("/delete", s.handleDeleteModel)
		r.Get("/health", s.handleHealth)
	})
	r.Method(http.MethodGet, "/metrics",
		promhttp.HandlerFor(s.metrics.registry, promhttp.HandlerOpts{}))

	return r
}

// Start runs the HTTP server until the listener fails or closes.
func (s *Server) Start() error {
	srv := &http.Server{
		Addr:              s.opts.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	logx.Log.Info().Str("addr", s.opts.Addr).Msg("api server listening")
	return srv.ListenAndServe()
}

// ensureModel resolves the named model through the registry and loads it
// if it is not already the active one.
func (s *Server) ensureModel(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	dir, err := s.manager.ResolveModelPath(name)
	if err != nil {
		return err
	}
	if s.gen.IsLoaded() && s.gen.ModelDir() == dir {
		return nil
	}

	logx.Log.Info().Str("model", name).Str("dir", dir).Msg("loading model")
	if err := s.gen.LoadModel(dir); err != nil {
		s.metrics.modelLoadedGauge.Set(0)
		return err
	}
	s.metrics.modelLoadedGauge.Set(1)
	return nil
}
