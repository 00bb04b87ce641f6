// Package dashboard exposes the trade ledger as a small JSON API.
package dashboard

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"github.com/signalyard/metaengine/internal/calendar"
	"github.com/signalyard/metaengine/internal/storage"
)

// recentDaysDefault bounds /api/trades/recent when no window is given.
const recentDaysDefault = 30

// Server serves the trade ledger read-only over HTTP.
type Server struct {
	router    *chi.Mux
	server    *http.Server
	store     storage.TradeStore
	logger    *logrus.Logger
	addr      string
	authToken string
	loc       *time.Location
}

// Config holds the dashboard settings.
type Config struct {
	Addr      string
	AuthToken string
	Location  *time.Location
}

// NewServer creates the API server over the trade store.
func NewServer(cfg Config, store storage.TradeStore, logger *logrus.Logger) *Server {
	loc := cfg.Location
	if loc == nil {
		loc = time.UTC
	}
	s := &Server{
		router:    chi.NewRouter(),
		store:     store,
		logger:    logger,
		addr:      cfg.Addr,
		authToken: cfg.AuthToken,
		loc:       loc,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(30 * time.Second))

	if s.authToken != "" {
		s.router.Use(s.authMiddleware)
	}

	s.router.Get("/api/trades/open", s.handleOpenTrades)
	s.router.Get("/api/trades/recent", s.handleRecentTrades)
	s.router.Get("/api/trades/{id}", s.handleTrade)
	s.router.Get("/api/stats", s.handleStats)
	s.router.Get("/api/pnl/daily", s.handleDailyPnL)
	s.router.Get("/healthz", s.handleHealth)
}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/healthz" {
			next.ServeHTTP(w, r)
			return
		}

		token := r.Header.Get("X-Auth-Token")
		if token == "" {
			token = r.URL.Query().Get("token")
		}
		if token != s.authToken {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Start blocks serving HTTP until Shutdown or a listener error.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:              s.addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	s.logger.WithField("addr", s.addr).Info("Starting dashboard server")
	return s.server.ListenAndServe()
}

// Shutdown drains the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) handleOpenTrades(w http.ResponseWriter, r *http.Request) {
	trades, err := s.store.GetOpenTrades()
	if err != nil {
		s.fail(w, "loading open trades", err)
		return
	}
	s.writeJSON(w, trades)
}

func (s *Server) handleRecentTrades(w http.ResponseWriter, r *http.Request) {
	days := recentDaysDefault
	if raw := r.URL.Query().Get("days"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			days = n
		}
	}
	trades, err := s.store.GetRecentTrades(days)
	if err != nil {
		s.fail(w, "loading recent trades", err)
		return
	}
	s.writeJSON(w, trades)
}

func (s *Server) handleTrade(w http.ResponseWriter, r *http.Request) {
	trade, err := s.store.GetTrade(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "Not Found", http.StatusNotFound)
		return
	}
	s.writeJSON(w, trade)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.GetSummaryStats()
	if err != nil {
		s.fail(w, "loading summary stats", err)
		return
	}
	s.writeJSON(w, stats)
}

func (s *Server) handleDailyPnL(w http.ResponseWriter, r *http.Request) {
	series, err := s.store.GetDailyPnL()
	if err != nil {
		s.fail(w, "loading daily pnl", err)
		return
	}
	if series == nil {
		series = []storage.DailyPnL{}
	}
	s.writeJSON(w, series)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	now := time.Now().In(s.loc)
	s.writeJSON(w, map[string]any{
		"status":      "healthy",
		"timestamp":   now.Unix(),
		"trading_day": calendar.IsTradingDay(now),
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.WithError(err).Error("Failed to encode response")
	}
}

func (s *Server) fail(w http.ResponseWriter, what string, err error) {
	s.logger.WithError(err).Errorf("Failed %s", what)
	http.Error(w, "Internal Server Error", http.StatusInternalServerError)
}
