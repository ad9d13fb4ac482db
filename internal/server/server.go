package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"solanaetl/internal/model"
	"solanaetl/internal/storage"
)

// Tipper reports the current confirmed chain tip.
type Tipper interface {
	GetSlot(ctx context.Context) (uint64, error)
}

// Server exposes pipeline health and progress over HTTP.
type Server struct {
	sink   storage.Sink
	source Tipper
	logger *zap.Logger
}

func New(sink storage.Sink, source Tipper, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{sink: sink, source: source, logger: logger}
}

// Router builds the HTTP routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Get("/health", s.handleHealth)
	r.Get("/progress", s.handleProgress)
	return r
}

// Run serves until the context is cancelled.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("status server listening", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

type healthResponse struct {
	Status string `json:"status"`
	Sink   string `json:"sink"`
	Source string `json:"source"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	resp := healthResponse{Status: "ok", Sink: "ok", Source: "ok"}
	code := http.StatusOK

	if err := s.sink.Ping(ctx); err != nil {
		resp.Status = "degraded"
		resp.Sink = err.Error()
		code = http.StatusServiceUnavailable
	}
	if s.source != nil {
		if _, err := s.source.GetSlot(ctx); err != nil {
			resp.Status = "degraded"
			resp.Source = err.Error()
			code = http.StatusServiceUnavailable
		}
	}

	writeJSON(w, code, resp)
}

type progressResponse struct {
	Cursor          model.Cursor       `json:"cursor"`
	OpenCheckpoints []model.Checkpoint `json:"open_checkpoints"`
	TipLag          *uint64            `json:"tip_lag,omitempty"`
}

func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	cursor, err := s.sink.LoadCursor(ctx)
	if err != nil {
		s.logger.Warn("progress cursor load failed", zap.Error(err))
		http.Error(w, "cursor unavailable", http.StatusServiceUnavailable)
		return
	}
	open, err := s.sink.OpenCheckpoints(ctx)
	if err != nil {
		s.logger.Warn("progress checkpoint load failed", zap.Error(err))
		http.Error(w, "checkpoints unavailable", http.StatusServiceUnavailable)
		return
	}
	if open == nil {
		open = []model.Checkpoint{}
	}

	resp := progressResponse{Cursor: cursor, OpenCheckpoints: open}
	if cursor.ChainTipSlot >= cursor.LastConfirmedSlot && cursor.LastConfirmedSlot > 0 {
		lag := cursor.ChainTipSlot - cursor.LastConfirmedSlot
		resp.TipLag = &lag
	}

	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(payload)
}
