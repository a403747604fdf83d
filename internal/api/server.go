package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"exemplar/internal/domain"
	"exemplar/internal/generate"
	"exemplar/internal/platform/applog"
	"exemplar/internal/service"
)

// Retrieval is the part of the retrieval service exposed over HTTP.
type Retrieval interface {
	RetrieveContext(ctx context.Context, query string, k int) []string
	Refresh(ctx context.Context) error
	Holdout() ([]domain.HoldoutEntry, error)
	Status() service.Status
}

type ServerConfig struct {
	Addr           string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	RefreshTimeout time.Duration
}

func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Addr:           ":8080",
		ReadTimeout:    30 * time.Second,
		WriteTimeout:   5 * time.Minute,
		RefreshTimeout: 10 * time.Minute,
	}
}

type Server struct {
	config    ServerConfig
	retrieval Retrieval
	engine    generate.Engine
	httpSrv   *http.Server
}

func NewServer(config ServerConfig, retrieval Retrieval) *Server {
	return &Server{config: config, retrieval: retrieval}
}

// SetEngine enables POST /v1/generate.
func (s *Server) SetEngine(engine generate.Engine) { s.engine = engine }

// Start blocks serving HTTP until Stop is called.
func (s *Server) Start() error {
	s.httpSrv = &http.Server{
		Addr:         s.config.Addr,
		Handler:      s.Handler(),
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}
	applog.Infof("[API] listening on %s", s.config.Addr)
	err := s.httpSrv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Stop shuts the server down gracefully.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpSrv != nil {
		return s.httpSrv.Shutdown(ctx)
	}
	return nil
}

func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)

	h := &handler{retrieval: s.retrieval, engine: s.engine, refreshTimeout: s.config.RefreshTimeout}
	r.Get("/healthz", h.Health)
	r.Route("/v1", func(r chi.Router) {
		r.Get("/context", h.Context)
		r.Post("/refresh", h.Refresh)
		r.Get("/holdout", h.Holdout)
		r.Post("/generate", h.Generate)
	})
	return r
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		applog.Debug("[API] request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"elapsed", time.Since(start).String(),
			"request_id", middleware.GetReqID(r.Context()))
	})
}
