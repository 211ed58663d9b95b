// Package adminhttp is the minimal admin/metrics HTTP surface: a
// /metrics Prometheus endpoint plus /healthz and /status JSON probes.
// It is explicitly not the REST façade spec.md §11 lists as a non-goal —
// just enough routing for ops and for the CLI's "status" command,
// grounded on pkg/collector/server.go's gorilla/mux + promhttp wiring.
package adminhttp

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pwkasay/gridcarbon/pkg/store"
)

// Server wraps an http.Server exposing /metrics, /healthz, and /status.
type Server struct {
	logger log.Logger
	server *http.Server
	store  *store.Store
}

// New builds the admin server, serving registry on /metrics. It registers
// no collectors itself; the caller registers them on registry.
func New(addr string, logger log.Logger, s *store.Store, registry *prometheus.Registry) *Server {
	router := mux.NewRouter()

	srv := &Server{
		logger: logger,
		store:  s,
		server: &http.Server{
			Addr:              addr,
			Handler:           router,
			ReadTimeout:       10 * time.Second,
			WriteTimeout:      10 * time.Second,
			ReadHeaderTimeout: 2 * time.Second,
		},
	}

	router.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{ErrorHandling: promhttp.ContinueOnError}))
	router.HandleFunc("/healthz", srv.handleHealthz).Methods(http.MethodGet)
	router.HandleFunc("/status", srv.handleStatus).Methods(http.MethodGet)

	return srv
}

// ListenAndServe runs the server until it errors or is shut down.
func (s *Server) ListenAndServe() error {
	level.Info(s.logger).Log("msg", "starting admin http server", "addr", s.server.Addr)

	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.store.GetIngestionStatus(r.Context())
	if err != nil {
		level.Error(s.logger).Log("msg", "failed to load ingestion status", "err", err)
		http.Error(w, "failed to load status", http.StatusInternalServerError)

		return
	}

	w.Header().Set("Content-Type", "application/json")

	if err := json.NewEncoder(w).Encode(status); err != nil {
		level.Error(s.logger).Log("msg", "failed to encode status response", "err", err)
	}
}
