// Package api serves the wallet HTTP contract on top of the ledger.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/onemorebsmith/casha-node/src/feed"
	"github.com/onemorebsmith/casha-node/src/ledger"
	"github.com/pkg/errors"
	"go.uber.org/atomic"
	"go.uber.org/zap"
)

const Name = "casha-node"

// maxBodyBytes caps request bodies.
const maxBodyBytes = 64 << 10

// RecentSource serves the recent-transactions feed, see feed.RecentFeed.
type RecentSource interface {
	Recent(ctx context.Context, n int) ([]feed.Entry, error)
}

type Options struct {
	Environment string
	Version     string
	Recent      RecentSource
}

type Server struct {
	ledger   *ledger.Ledger
	opts     Options
	logger   *zap.Logger
	mux      *http.ServeMux
	requests atomic.Int64
}

var endpoints = []string{
	"GET /",
	"GET /health",
	"POST /register",
	"POST /transaction",
	"GET /transactions/user/{user_id}",
	"GET /transactions/recent",
	"GET /dag/info",
	"GET /dag/transactions",
	"GET /dag/graph",
	"GET /user/pending-balance/{user_id}",
	"GET /debug/user/{user_id}",
	"GET /debug/balance/{user_id}",
}

func NewServer(l *ledger.Ledger, opts Options, logger *zap.Logger) *Server {
	if opts.Environment == "" {
		opts.Environment = "development"
	}
	s := &Server{
		ledger: l,
		opts:   opts,
		logger: logger.With(zap.String("component", "api")),
		mux:    http.NewServeMux(),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.mux.HandleFunc("GET /{$}", s.handleInfo)
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("POST /register", s.handleRegister)
	s.mux.HandleFunc("POST /transaction", s.handleTransaction)
	s.mux.HandleFunc("GET /transactions/user/{user_id}", s.handleUserTransactions)
	s.mux.HandleFunc("GET /transactions/recent", s.handleRecentTransactions)
	s.mux.HandleFunc("GET /dag/info", s.handleDAGInfo)
	s.mux.HandleFunc("GET /dag/transactions", s.handleDAGTransactions)
	s.mux.HandleFunc("GET /dag/graph", s.handleDAGGraph)
	s.mux.HandleFunc("GET /user/pending-balance/{user_id}", s.handlePendingBalance)
	s.mux.HandleFunc("GET /debug/user/{user_id}", s.handleDebugUser)
	s.mux.HandleFunc("GET /debug/balance/{user_id}", s.handleDebugBalance)
}

func (s *Server) Handler() http.Handler {
	return s.withLogging(s.mux)
}

// ListenAndServe serves until ctx is cancelled, then drains in-flight
// requests.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errs := make(chan error, 1)
	go func() {
		s.logger.Info("serving wallet api", zap.String("address", addr))
		errs <- srv.ListenAndServe()
	}()
	select {
	case err := <-errs:
		return errors.Wrap(err, "api server stopped")
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := r.Header.Get("X-Request-Id")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set("X-Request-Id", requestID)
		w.Header().Set("Access-Control-Allow-Origin", "*")
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.requests.Inc()
		s.logger.Debug("request", zap.String("method", r.Method), zap.String("path", r.URL.Path),
			zap.Int("status", rec.status), zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", requestID))
	})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	return json.NewDecoder(r.Body).Decode(v)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("failed writing response", zap.Error(err))
	}
}

func statusFor(kind string) int {
	switch kind {
	case "invalid_request", "invalid_amount", "insufficient_funds", "invalid_signature", "dangling_reference":
		return http.StatusBadRequest
	case "unknown_account":
		return http.StatusNotFound
	case "concurrent_modification":
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	kind := ledger.ErrorKind(err)
	status := statusFor(kind)
	resp := ErrorResponse{Status: "error", Error: err.Error(), Code: kind}
	var insufficient *ledger.InsufficientFundsError
	if errors.As(err, &insufficient) {
		shortfall := insufficient.Shortfall.InexactFloat64()
		resp.Shortfall = &shortfall
	}
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", zap.Error(err))
		resp.Error = "internal error"
	}
	s.writeJSON(w, status, resp)
}
