// Package supervisor wires together and starts the proxy's long-lived
// workers: the write serializer consumer, the refresher, the client-facing
// HTTP server, and the metrics listener (spec §4.7).
package supervisor

import (
	"context"
	"fmt"
	"net"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/augenblickliebhaber/ocsp-proxy/internal/handler"
	"github.com/augenblickliebhaber/ocsp-proxy/internal/metrics"
	"github.com/augenblickliebhaber/ocsp-proxy/internal/refresher"
	"github.com/augenblickliebhaber/ocsp-proxy/internal/writequeue"
)

// Supervisor starts the three long-lived workers spec §4.7 requires, plus
// a metrics listener (the domain-stack addition standing in for the
// teacher's separate stats server).
type Supervisor struct {
	BindAddr    string
	MetricsAddr string

	Handler    *handler.Handler
	Refresher  *refresher.Refresher
	Queue      *writequeue.Queue
	Metrics    *metrics.Metrics
	Registerer prometheus.Registerer

	Log logrus.FieldLogger
}

// Run starts every worker and blocks until ctx is done or the client-facing
// listener fails. Shutdown is process-terminate, per spec; graceful drain
// is not attempted.
func (s *Supervisor) Run(ctx context.Context) error {
	if s.Metrics != nil && s.Registerer != nil {
		s.Metrics.Register(s.Registerer)
	}

	go s.Queue.Run(ctx)
	go s.Refresher.Run(ctx)

	if s.MetricsAddr != "" {
		go s.runMetricsServer(ctx)
	}

	return s.runClientServer(ctx)
}

func (s *Supervisor) runClientServer(ctx context.Context) error {
	srv := &http.Server{
		Addr:    s.BindAddr,
		Handler: s.Handler,
	}

	ln, err := net.Listen("tcp", s.BindAddr)
	if err != nil {
		return fmt.Errorf("listening on %q: %w", s.BindAddr, err)
	}

	go func() {
		<-ctx.Done()
		srv.Close()
	}()

	s.Log.WithField("addr", s.BindAddr).Info("supervisor: client HTTP server listening")
	return srv.Serve(ln)
}

func (s *Supervisor) runMetricsServer(ctx context.Context) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: s.MetricsAddr, Handler: mux}

	go func() {
		<-ctx.Done()
		srv.Close()
	}()

	s.Log.WithField("addr", s.MetricsAddr).Info("supervisor: metrics server listening")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		s.Log.WithError(err).Error("supervisor: metrics server failed")
	}
}
