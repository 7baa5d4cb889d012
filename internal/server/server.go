package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/deskpilot/deskpilot/internal/event"
	"github.com/deskpilot/deskpilot/internal/history"
	"github.com/deskpilot/deskpilot/internal/logging"
	"github.com/deskpilot/deskpilot/internal/mcp"
	"github.com/deskpilot/deskpilot/internal/metrics"
	"github.com/deskpilot/deskpilot/internal/orchestrator"
	"github.com/deskpilot/deskpilot/internal/tool"
	"github.com/deskpilot/deskpilot/pkg/types"
)

// DefaultPort is used when the config names none.
const DefaultPort = 4317

// Config holds server configuration.
type Config struct {
	Port         int
	CORSOrigins  []string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DefaultConfig returns default server configuration.
func DefaultConfig() *Config {
	return &Config{
		Port:         DefaultPort,
		CORSOrigins:  []string{"*"},
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // SSE and chat responses can outlive any fixed limit
	}
}

// ConfigFrom applies the "server" section of the app config over the
// defaults.
func ConfigFrom(sc *types.ServerConfig) *Config {
	cfg := DefaultConfig()
	if sc == nil {
		return cfg
	}
	if sc.Port > 0 {
		cfg.Port = sc.Port
	}
	if len(sc.CORSOrigins) > 0 {
		cfg.CORSOrigins = sc.CORSOrigins
	}
	return cfg
}

// Deps are the components the handlers serve. Orchestrator, Tools and Bus
// are required; the rest switch their routes off when nil.
type Deps struct {
	Orchestrator *orchestrator.Orchestrator
	Tools        *tool.Registry
	Bus          *event.Bus
	History      *history.Store
	Metrics      *metrics.Metrics
	MCP          *mcp.Client
}

// Server is the HTTP surface the desktop UI talks to.
type Server struct {
	config  *Config
	router  *chi.Mux
	httpSrv *http.Server

	orch    *orchestrator.Orchestrator
	tools   *tool.Registry
	bus     *event.Bus
	history *history.Store
	metrics *metrics.Metrics
	mcp     *mcp.Client
}

// New creates a new Server instance.
func New(cfg *Config, deps Deps) *Server {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	bus := deps.Bus
	if bus == nil {
		bus = event.Default()
	}

	s := &Server{
		config:  cfg,
		router:  chi.NewRouter(),
		orch:    deps.Orchestrator,
		tools:   deps.Tools,
		bus:     bus,
		history: deps.History,
		metrics: deps.Metrics,
		mcp:     deps.MCP,
	}

	s.setupMiddleware()
	s.setupRoutes()
	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(requestLogger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RealIP)

	if len(s.config.CORSOrigins) > 0 {
		s.router.Use(cors.Handler(cors.Options{
			AllowedOrigins:   s.config.CORSOrigins,
			AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
			ExposedHeaders:   []string{"X-Request-ID"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}
}

// requestLogger logs each request through zerolog at debug level.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		logging.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("http request")
	})
}

// Start starts the HTTP server. It blocks until Shutdown.
func (s *Server) Start() error {
	s.httpSrv = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Port),
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	logging.Info().Int("port", s.config.Port).Msg("http server listening")
	return s.httpSrv.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}

// Router returns the Chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}
