// Package api exposes the read-only query surface: recent events, the
// camera inventory and the rolling activity summary.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"centinela/event"
	"centinela/store"
)

// eventListLimit matches the historical query surface: the newest 500
// rows.
const eventListLimit = 500

// StatusFunc reports the lifecycle state of every running camera.
type StatusFunc func() map[string]string

// Server serves the HTTP API. All endpoints are read-only.
type Server struct {
	addr        string
	log         *slog.Logger
	store       *store.Store
	buffer      *event.Buffer
	camerasPath string
	status      StatusFunc

	listener net.Listener
	server   *http.Server
}

func NewServer(addr string, st *store.Store, buf *event.Buffer, camerasPath string, status StatusFunc, log *slog.Logger) *Server {
	s := &Server{
		addr:        addr,
		log:         log,
		store:       st,
		buffer:      buf,
		camerasPath: camerasPath,
		status:      status,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/events", s.handleEvents)
	mux.HandleFunc("/api/cameras", s.handleCameras)
	mux.HandleFunc("/api/summary", s.handleSummary)
	mux.HandleFunc("/api/status", s.handleStatus)

	s.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

// Handler exposes the routed handler, mainly for tests.
func (s *Server) Handler() http.Handler { return s.server.Handler }

// Start listens and serves until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.listener = listener

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("api server error", "error", err)
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()

	s.log.Info("api server listening", "address", listener.Addr().String())
	return nil
}

// Stop shuts the server down.
func (s *Server) Stop() {
	if s.server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}
	if s.listener != nil {
		_ = s.listener.Close()
		s.listener = nil
	}
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	events, err := s.store.RecentEvents(r.Context(), eventListLimit)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if events == nil {
		events = []store.EventRecord{}
	}
	s.writeJSON(w, http.StatusOK, events)
}

// handleCameras serves the inventory file verbatim so API consumers see
// exactly what the pipelines were configured with.
func (s *Server) handleCameras(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	raw, err := os.ReadFile(s.camerasPath)
	if err != nil {
		s.writeJSON(w, http.StatusOK, map[string]any{"buildings": []any{}})
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(raw)
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	payload := map[string]any{
		"summary": s.buffer.Summarize(),
		"recent":  s.buffer.Len(),
	}
	if counts, err := s.store.CountEventsByRole(r.Context()); err == nil {
		payload["by_role"] = counts
	}
	s.writeJSON(w, http.StatusOK, payload)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	states := map[string]string{}
	if s.status != nil {
		states = s.status()
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"cameras": states})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log.Error("failed to encode response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}
