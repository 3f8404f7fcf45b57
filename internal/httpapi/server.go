// Package httpapi exposes the view-sender's healthz/readyz/metrics
// endpoints, adapted from the teacher's internal/http server.
package httpapi

import (
	"context"
	"encoding/json"
	"net"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// TransportStatus abstracts the Kafka transport worker's connectedness
// for testability.
type TransportStatus interface {
	Connected() bool
}

// ViewStats abstracts the view's size for a lightweight sanity check: an
// established engine should always have at least one peer and prefix
// once collectors have reported data.
type ViewStats interface {
	PeerCount() int
	PfxCount() int
}

type Server struct {
	srv       *http.Server
	transport TransportStatus
	view      ViewStats
	logger    *zap.Logger
}

func NewServer(addr string, transport TransportStatus, view ViewStats, logger *zap.Logger) *Server {
	s := &Server{
		transport: transport,
		view:      view,
		logger:    logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.HandleFunc("/readyz", s.handleReadyz)
	mux.Handle("/metrics", promhttp.Handler())

	s.srv = &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	return s
}

func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return err
	}
	s.logger.Info("HTTP server listening", zap.String("addr", s.srv.Addr))
	go func() {
		if err := s.srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Error("HTTP server error", zap.Error(err))
		}
	}()
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	checks := map[string]string{}
	allOK := true

	if s.transport != nil && s.transport.Connected() {
		checks["transport"] = "ok"
	} else {
		checks["transport"] = "disconnected"
		allOK = false
	}

	if s.view != nil && s.view.PeerCount() > 0 {
		checks["view"] = "ok"
	} else {
		checks["view"] = "empty"
		allOK = false
	}

	w.Header().Set("Content-Type", "application/json")
	status := "ready"
	httpStatus := http.StatusOK
	if !allOK {
		status = "not_ready"
		httpStatus = http.StatusServiceUnavailable
	}

	w.WriteHeader(httpStatus)
	json.NewEncoder(w).Encode(map[string]any{
		"status": status,
		"checks": checks,
	})
}
