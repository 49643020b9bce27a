package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"github.com/yanun0323/logs"

	"livetrade/internal/errors"
	"livetrade/internal/ledger"
	"livetrade/internal/obs"
	"livetrade/internal/schema"
	"livetrade/internal/session"
	"livetrade/internal/strategy"
)

var ErrNilSessions = errors.New("server: nil session engine")

// Sessions is the part of session.Registry the control plane drives.
type Sessions interface {
	StartSession(ctx context.Context, req session.StartRequest) (string, error)
	StopSession(ctx context.Context, id string) (session.Summary, error)
	ProcessTick(ctx context.Context, sessionID string, tick schema.Tick) (session.TickResult, error)
	ExecuteSignal(ctx context.Context, sessionID, symbol string, signal schema.Signal, price decimal.Decimal, ts time.Time) (schema.Trade, bool, error)
	GetSessionStatus(id string) (session.StatusSnapshot, error)
	ListActiveSessions() []session.StatusSnapshot
	Positions(id string) ([]ledger.Position, error)
	Trades(id string) ([]schema.Trade, error)
}

// StrategyLister lists the strategies sessions can be started with.
type StrategyLister interface {
	List(ctx context.Context) ([]strategy.Definition, error)
}

// Config holds server configuration.
type Config struct {
	Addr           string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	AllowedOrigins []string

	Sessions   Sessions
	Strategies StrategyLister
	Metrics    *obs.Metrics
	Tracer     *obs.Tracer
	Hub        *Hub
}

// Server is the HTTP control plane.
type Server struct {
	router   *chi.Mux
	server   *http.Server
	upgrader websocket.Upgrader

	sessions   Sessions
	strategies StrategyLister
	metrics    *obs.Metrics
	tracer     *obs.Tracer
	hub        *Hub
}

// New creates a server with its routes mounted.
func New(cfg Config) (*Server, error) {
	if cfg.Sessions == nil {
		return nil, ErrNilSessions
	}
	if cfg.Hub == nil {
		cfg.Hub = NewHub()
	}
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = []string{"*"}
	}

	s := &Server{
		router:     chi.NewRouter(),
		upgrader:   websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
		sessions:   cfg.Sessions,
		strategies: cfg.Strategies,
		metrics:    cfg.Metrics,
		tracer:     cfg.Tracer,
		hub:        cfg.Hub,
	}

	s.setupMiddleware(cfg.AllowedOrigins)
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         cfg.Addr,
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}
	return s, nil
}

func (s *Server) setupMiddleware(origins []string) {
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))
}

func (s *Server) setupRoutes() {
	s.router.Get("/healthz", s.handleHealth)
	s.router.Get("/metrics", s.handleMetrics)

	s.router.Route("/api", func(r chi.Router) {
		r.Get("/strategies", s.handleListStrategies)
		r.Get("/stream", s.handleStream)

		r.Route("/sessions", func(r chi.Router) {
			r.Post("/", s.handleStartSession)
			r.Get("/", s.handleListSessions)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetSession)
				r.Delete("/", s.handleStopSession)
				r.Get("/positions", s.handlePositions)
				r.Get("/trades", s.handleTrades)
				r.Post("/ticks", s.handleTick)
				r.Post("/signals", s.handleSignal)
			})
		})
	})
}

// Handler returns the routed handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until Shutdown is called.
func (s *Server) Start() error {
	logs.Infof("starting http server. addr: %s", s.server.Addr)
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	logs.Info("shutting down http server")
	return s.server.Shutdown(ctx)
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		logs.Infof("http request. method: %s, path: %s, status: %d, bytes: %d, duration: %s, request_id: %s",
			r.Method, r.URL.Path, ww.Status(), ww.BytesWritten(), time.Since(start), middleware.GetReqID(r.Context()))
	})
}
