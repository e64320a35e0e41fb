package watch

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// APIServer exposes the state of a poller over HTTP.
type APIServer struct {
	addr   string
	logger *zap.Logger
	server *http.Server
}

// APIHandler serves the poller API.
type APIHandler struct {
	poller *Poller
	logger *zap.Logger
}

// NewAPIHandler returns the HTTP handler of the poller API:
//
//	GET  /health         liveness
//	GET  /api/v1/status  poller state and last result
//	POST /api/v1/poll    request an immediate poll
func NewAPIHandler(poller *Poller, logger *zap.Logger) http.Handler {
	h := &APIHandler{poller: poller, logger: logger}
	mux := http.NewServeMux()
	mux.HandleFunc("/health", h.handleHealth)
	mux.HandleFunc("/api/v1/status", h.handleStatus)
	mux.HandleFunc("/api/v1/poll", h.handlePoll)
	return mux
}

// NewAPIServer creates an API server listening on addr.
func NewAPIServer(addr string, poller *Poller, logger *zap.Logger) *APIServer {
	return &APIServer{
		addr:   addr,
		logger: logger,
		server: &http.Server{
			Addr:              addr,
			Handler:           NewAPIHandler(poller, logger),
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
}

// Start serves in the background.
func (s *APIServer) Start() error {
	go func() {
		s.logger.Info("API server listening", zap.String("addr", s.addr))
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", zap.Error(err))
		}
	}()
	return nil
}

// Stop shuts the server down.
func (s *APIServer) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}

func (h *APIHandler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (h *APIHandler) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, h.poller.Status())
}

func (h *APIHandler) handlePoll(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	h.logger.Info("poll requested", zap.String("remote", r.RemoteAddr))
	h.poller.Poll()
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "poll scheduled"})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
