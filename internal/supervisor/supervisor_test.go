package supervisor

import (
	"context"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/jmhodges/clock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/augenblickliebhaber/ocsp-proxy/internal/fetcher"
	"github.com/augenblickliebhaber/ocsp-proxy/internal/handler"
	"github.com/augenblickliebhaber/ocsp-proxy/internal/metrics"
	"github.com/augenblickliebhaber/ocsp-proxy/internal/refresher"
	"github.com/augenblickliebhaber/ocsp-proxy/internal/store"
	"github.com/augenblickliebhaber/ocsp-proxy/internal/writequeue"
)

func TestSupervisor_StartsAndServesUntilCancelled(t *testing.T) {
	log := logrus.New()
	log.SetOutput(io.Discard)

	ds := store.NewDiskStore(t.TempDir())
	q := writequeue.New(ds, log, 0)
	m := metrics.New()

	h := &handler.Handler{
		KeyPrefix: "ocspxy_",
		Store:     ds,
		Queue:     q,
		Fetcher:   fetcher.New(http.DefaultClient),
		Clock:     clock.NewFake(),
		Log:       log,
		Metrics:   m,
	}
	r := &refresher.Refresher{
		KeyPrefix: "ocspxy_",
		Store:     ds,
		Queue:     q,
		Fetcher:   fetcher.New(http.DefaultClient),
		Clock:     clock.NewFake(),
		Log:       log,
		Metrics:   m,
	}

	s := &Supervisor{
		BindAddr:   "127.0.0.1:0",
		Handler:    h,
		Refresher:  r,
		Queue:      q,
		Metrics:    m,
		Registerer: prometheus.NewRegistry(),
		Log:        log,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	err := s.Run(ctx)
	if err != nil && err != http.ErrServerClosed {
		t.Fatalf("Run returned unexpected error: %s", err)
	}
}
