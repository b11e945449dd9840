// Command ocsp-proxy runs the caching OCSP forward proxy.
package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/jmhodges/clock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/augenblickliebhaber/ocsp-proxy/internal/config"
	"github.com/augenblickliebhaber/ocsp-proxy/internal/fetcher"
	"github.com/augenblickliebhaber/ocsp-proxy/internal/handler"
	"github.com/augenblickliebhaber/ocsp-proxy/internal/log"
	"github.com/augenblickliebhaber/ocsp-proxy/internal/metrics"
	"github.com/augenblickliebhaber/ocsp-proxy/internal/refresher"
	"github.com/augenblickliebhaber/ocsp-proxy/internal/store"
	"github.com/augenblickliebhaber/ocsp-proxy/internal/supervisor"
	"github.com/augenblickliebhaber/ocsp-proxy/internal/writequeue"
)

func main() {
	conf, err := config.Load(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %s\n", err)
		os.Exit(1)
	}

	logger, err := log.New(conf.Verbose, conf.Syslog.Network, conf.Syslog.Addr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %s\n", err)
		os.Exit(1)
	}

	backend, err := buildStore(conf)
	if err != nil {
		logger.WithError(err).Fatal("failed to initialize store backend")
	}

	clk := clock.Default()

	client := &http.Client{
		Transport: &http.Transport{
			Dial: (&net.Dialer{
				Timeout:   30 * time.Second,
				KeepAlive: 30 * time.Second,
			}).Dial,
			TLSHandshakeTimeout: 10 * time.Second,
		},
		Timeout: conf.Fetcher.Timeout.Duration,
	}
	if len(conf.Fetcher.Proxies) > 0 {
		// a single configured proxy covers every upstream responder, the
		// way the teacher's common.ProxyFunc wires a fixed proxy list into
		// the shared client's Transport.
		proxyURL := conf.Fetcher.Proxies[0]
		proxyFunc, perr := proxyFuncFor(proxyURL)
		if perr != nil {
			logger.WithError(perr).Fatal("failed to parse proxy URL")
		}
		client.Transport.(*http.Transport).Proxy = proxyFunc
	}

	m := metrics.New()
	f := fetcher.New(client)
	f.Metrics = m

	q := writequeue.New(backend, logger, conf.WriteQueueCapacity)
	q.Metrics = m

	h := &handler.Handler{
		KeyPrefix: conf.KeyPrefix,
		Store:     backend,
		Queue:     q,
		Fetcher:   f,
		Clock:     clk,
		Log:       logger,
		Metrics:   m,
	}

	r := &refresher.Refresher{
		KeyPrefix: conf.KeyPrefix,
		Store:     backend,
		Queue:     q,
		Fetcher:   f,
		Clock:     clk,
		Log:       logger,
		Metrics:   m,
	}

	s := &supervisor.Supervisor{
		BindAddr:    fmt.Sprintf("%s:%d", conf.BindHost, conf.BindPort),
		MetricsAddr: conf.MetricsAddr,
		Handler:     h,
		Refresher:   r,
		Queue:       q,
		Metrics:     m,
		Registerer:  prometheus.DefaultRegisterer,
		Log:         logger,
	}

	if err := s.Run(context.Background()); err != nil {
		logger.WithError(err).Fatal("ocsp-proxy exited")
	}
}

func buildStore(conf *config.Configuration) (store.Store, error) {
	switch conf.Store.Backend {
	case "disk":
		return store.NewDiskStore(conf.Store.Endpoint), nil
	case "redis", "":
		opts := &redis.Options{Addr: conf.Store.Endpoint}
		if strings.HasPrefix(conf.Store.Endpoint, "/") {
			opts.Network = "unix"
		}
		return store.NewRedisStore(redis.NewClient(opts)), nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", conf.Store.Backend)
	}
}

func proxyFuncFor(rawURL string) (func(*http.Request) (*url.URL, error), error) {
	proxyURL, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parsing proxy URL %q: %w", rawURL, err)
	}
	return http.ProxyURL(proxyURL), nil
}
