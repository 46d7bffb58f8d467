package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	"mintgate/auth"
	"mintgate/ledgerrpc"
	"mintgate/lifecycle"
	mgmw "mintgate/middleware"
	"mintgate/rewards"
)

// Pinner abstracts the pinning gateway upload proxied by the server.
type Pinner interface {
	Upload(ctx context.Context, content io.Reader, filename string) (string, error)
}

// LedgerQuerier abstracts the ledger read methods exposed to clients.
type LedgerQuerier interface {
	AccountTokens(ctx context.Context, account string) ([]ledgerrpc.AccountToken, error)
	AccountTransactions(ctx context.Context, account string) ([]ledgerrpc.AccountTx, error)
}

// Config captures the dependencies required to construct the server.
type Config struct {
	DB         *gorm.DB
	Lifecycle  *lifecycle.Engine
	Rewards    *rewards.Engine
	Pinner     Pinner
	Ledger     LedgerQuerier
	AdminToken string
	Logger     *slog.Logger
}

// Server encapsulates dependencies for the HTTP API.
type Server struct {
	DB         *gorm.DB
	Lifecycle  *lifecycle.Engine
	Rewards    *rewards.Engine
	Pinner     Pinner
	Ledger     LedgerQuerier
	AdminToken string
	Log        *slog.Logger

	router http.Handler
}

// New constructs a configured HTTP router with idempotency support.
func New(cfg Config) *Server {
	srv := &Server{
		DB:         cfg.DB,
		Lifecycle:  cfg.Lifecycle,
		Rewards:    cfg.Rewards,
		Pinner:     cfg.Pinner,
		Ledger:     cfg.Ledger,
		AdminToken: cfg.AdminToken,
		Log:        cfg.Logger,
	}
	if srv.Log == nil {
		srv.Log = slog.Default()
	}
	srv.router = srv.buildRouter()
	return srv
}

// Handler exposes the configured HTTP router.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)
	r.Use(func(next http.Handler) http.Handler { return mgmw.WithIdempotency(s.DB, next) })

	r.Route("/api", func(api chi.Router) {
		api.Post("/upload", s.UploadContent)
		api.Post("/submit", s.CreateSubmission)
		api.Get("/submissions/{id}", s.GetSubmission)
		api.Post("/pay", s.RequestPayment)
		api.Post("/pay/confirm", s.ConfirmPayment)
		api.Post("/mint", s.RequestMint)
		api.Post("/mint/confirm", s.ConfirmMint)
		api.Post("/toggle-delist", s.ToggleDelist)
		api.Post("/learn/track", s.TrackLearnAction)
		api.Get("/wallet/{account}/tokens", s.WalletTokens)

		api.Group(func(admin chi.Router) {
			admin.Use(auth.RequireAdmin(s.AdminToken))
			admin.Get("/admin/submissions", s.ListSubmissions)
			admin.Post("/admin/approve", s.ApproveSubmission)
			admin.Post("/admin/reject", s.RejectSubmission)
			admin.Get("/admin/learn-activity", s.LearnActivity)
			admin.Post("/admin/payout-learn-rewards", s.PayoutLearnRewards)
		})
	})

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	return r
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, lifecycle.ErrValidation), errors.Is(err, rewards.ErrValidation):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, lifecycle.ErrNotFound), errors.Is(err, gorm.ErrRecordNotFound):
		http.Error(w, "submission not found", http.StatusNotFound)
	case errors.Is(err, lifecycle.ErrSessionMismatch):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, lifecycle.ErrNotReady):
		http.Error(w, err.Error(), http.StatusPreconditionFailed)
	case errors.Is(err, lifecycle.ErrUpstream):
		http.Error(w, err.Error(), http.StatusBadGateway)
	default:
		s.Log.Error("request failed", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func parseID(raw string) (uint, error) {
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil || id == 0 {
		return 0, errors.New("invalid submission id")
	}
	return uint(id), nil
}
