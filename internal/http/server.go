// Package http exposes the ledger over a JSON API.
package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"gofinances/internal/core"
	"gofinances/internal/ledger"
	"gofinances/internal/log"
	"gofinances/internal/middleware/ratelimit"
	"gofinances/internal/middleware/security"
	"gofinances/internal/middleware/trace"
	"gofinances/internal/services"
)

// LedgerService is the application surface the handlers drive. It is
// satisfied by *services.TransactionService.
type LedgerService interface {
	CreateTransaction(ctx context.Context, c core.Candidate) (core.Transaction, error)
	ImportTransactions(ctx context.Context, src ledger.RowSource) (services.ImportReport, error)
	DeleteTransaction(ctx context.Context, id string) error
	ListTransactions(ctx context.Context, filter ledger.TransactionFilter) ([]core.Transaction, core.Balance, error)
	Balance(ctx context.Context) (core.Balance, error)
	Ping(ctx context.Context) error
}

type Config struct {
	Addr               string
	MaxUploadBytes     int64
	MaxImportRows      int
	RateLimitPerMinute int
	Logger             *log.Logger
}

type Server struct {
	http.Server
	svc         LedgerService
	cfg         Config
	detector    *security.Detector
	rateLimiter *ratelimit.Limiter
	tracer      *trace.Middleware
	started     time.Time

	shutdownOnce sync.Once
}

// NewServer builds the router and returns a ready-to-run server. Call
// Shutdown to stop it and its background work.
func NewServer(svc LedgerService, cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = log.New(log.DefaultConfig()).WithComponent(log.ComponentHTTP)
	}

	detector := security.NewDetector()
	s := &Server{
		svc:      svc,
		cfg:      cfg,
		detector: detector,
		rateLimiter: ratelimit.NewLimiter(ratelimit.Config{
			RequestsPerMinute: cfg.RateLimitPerMinute,
		}),
		tracer:  trace.NewMiddleware(detector.ExtractClientIP),
		started: time.Now(),
	}
	s.Server = http.Server{
		Addr:              cfg.Addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()

	r.Use(log.Middleware(s.cfg.Logger))
	r.Use(s.tracer.Middleware)
	r.Use(security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware)
	r.Use(s.detector.Middleware)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusNotFound, "Not found.", "")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusMethodNotAllowed, "Method not allowed.", "")
	})

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/balance", s.handleBalance)

	r.Route("/transactions", func(r chi.Router) {
		r.Get("/", s.handleListTransactions)

		r.Group(func(r chi.Router) {
			r.Use(s.rateLimiter.Middleware(s.detector.ExtractClientIP, func(w http.ResponseWriter, r *http.Request) {
				log.FromContext(r.Context()).WarnContext(r.Context(), "Rate limit exceeded",
					log.FieldClientIP, s.detector.ExtractClientIP(r),
					log.FieldMethod, r.Method,
					log.FieldPath, r.URL.Path)
				writeError(w, r, http.StatusTooManyRequests, "Rate limit exceeded. Please try again later.", "")
			}))
			r.Post("/", s.handleCreateTransaction)
			r.Post("/import", s.handleImportTransactions)
			r.Delete("/{id}", s.handleDeleteTransaction)
		})
	})

	return r
}

// Shutdown stops the rate limiter and drains the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		s.rateLimiter.Stop()
		err = s.Server.Shutdown(ctx)
	})
	return err
}
