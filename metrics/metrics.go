// Package metrics exposes a Prometheus-compatible metrics endpoint backed
// by VictoriaMetrics/metrics.
package metrics

import (
	"context"
	"fmt"
	"net/http"

	"github.com/VictoriaMetrics/metrics"
)

// MetricsServer serves collected metrics over HTTP.
type MetricsServer struct {
	srv *http.Server
}

// New creates a metrics server for the named service listening on addr.
// The server is not started until ListenAndServe is called.
func New(name, addr string) (*MetricsServer, error) {
	metrics.GetOrCreateCounter(fmt.Sprintf(`up{service=%q}`, name)).Set(1)

	mux := http.NewServeMux()
	mux.HandleFunc("/metrics", func(w http.ResponseWriter, r *http.Request) {
		metrics.WritePrometheus(w, true)
	})

	return &MetricsServer{
		srv: &http.Server{
			Addr:    addr,
			Handler: mux,
		},
	}, nil
}

// ListenAndServe blocks serving the metrics endpoint.
func (s *MetricsServer) ListenAndServe() error {
	return s.srv.ListenAndServe()
}

// Shutdown gracefully stops the metrics server.
func (s *MetricsServer) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
