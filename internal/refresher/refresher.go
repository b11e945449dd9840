// Package refresher implements the periodic background revalidation loop
// (spec §4.6): a fixed 30-minute cycle that keeps the store's entries
// ahead of their nextUpdate.
package refresher

import (
	"context"
	"time"

	"github.com/jmhodges/clock"
	"github.com/sirupsen/logrus"

	"github.com/augenblickliebhaber/ocsp-proxy/internal/fetcher"
	"github.com/augenblickliebhaber/ocsp-proxy/internal/metrics"
	"github.com/augenblickliebhaber/ocsp-proxy/internal/ocsppdu"
	"github.com/augenblickliebhaber/ocsp-proxy/internal/store"
	"github.com/augenblickliebhaber/ocsp-proxy/internal/writequeue"
)

// CycleInterval is the fixed sleep between refresh cycles.
const CycleInterval = 30 * time.Minute

const (
	dailyInterval  = 24 * time.Hour
	hourlyInterval = time.Hour
)

// Refresher periodically walks every stored entry and refetches it from
// upstream once its revalidation interval has elapsed.
type Refresher struct {
	KeyPrefix string

	Store   store.Store
	Queue   *writequeue.Queue
	Fetcher *fetcher.Fetcher
	Clock   clock.Clock
	Log     logrus.FieldLogger
	Metrics *metrics.Metrics
}

// Run drives the fixed-interval loop until ctx is done, grounded in the
// teacher's own ticker-driven Entry.monitor/EntryCache.monitor loops.
func (r *Refresher) Run(ctx context.Context) {
	ticker := r.Clock.NewTicker(CycleInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.runCycle(ctx)
		}
	}
}

// runCycle performs one pass over every key under KeyPrefix. A ListKeys or
// Get failure aborts the cycle; the next cycle retries from scratch.
func (r *Refresher) runCycle(ctx context.Context) {
	keys, err := r.Store.ListKeys(ctx, r.KeyPrefix)
	if err != nil {
		r.Log.WithError(err).Error("refresher: ListKeys failed, aborting cycle")
		return
	}

	now := r.Clock.Now().Unix()
	for _, key := range keys {
		entry, found, err := r.Store.Get(ctx, key)
		if err != nil {
			r.Log.WithError(err).WithField("key", key).Error("refresher: Get failed, aborting cycle")
			return
		}
		if found {
			r.refreshOne(ctx, key, entry, now)
		}
	}
}

func (r *Refresher) refreshOne(ctx context.Context, key string, entry *store.Entry, now int64) {
	if entry.OCSPResponder == "" || len(entry.Request) == 0 {
		r.Queue.Enqueue(writequeue.Intent{Op: writequeue.Delete, Class: writequeue.RefreshClass, Key: key})
		r.record("invalid")
		return
	}

	midpoint := entry.ThisUpdate + (entry.NextUpdate-entry.ThisUpdate)/2
	interval := hourlyInterval
	if midpoint > now {
		interval = dailyInterval
	}

	if entry.LastChecked+int64(interval/time.Second) >= now {
		r.record("skipped")
		return
	}

	resp, err := r.Fetcher.Fetch(ctx, entry.OCSPResponder, entry.Request)
	if err != nil {
		r.Log.WithError(err).WithField("key", key).Warn("refresher: upstream fetch failed, leaving entry in place")
		r.record("fetch_failed")
		return
	}

	decoded, err := ocsppdu.DecodeResponse(resp)
	if err != nil {
		r.Log.WithError(err).WithField("key", key).Warn("refresher: response decode failed, leaving entry in place")
		r.record("decode_failed")
		return
	}
	if decoded.NonceCount != 0 {
		r.Log.WithField("key", key).Debug("refresher: refreshed response carries a nonce, leaving prior entry in place")
		r.record("uncacheable")
		return
	}

	updated := &store.Entry{
		CacheKey:      key,
		OCSPResponder: entry.OCSPResponder,
		Request:       entry.Request,
		Response:      resp,
		ThisUpdate:    decoded.ThisUpdate,
		NextUpdate:    decoded.NextUpdate,
		LastChecked:   now,
		Status:        decoded.CertStatus,
		NonceCount:    decoded.NonceCount,
	}
	r.Queue.Enqueue(writequeue.Intent{Op: writequeue.Upsert, Class: writequeue.RefreshClass, Key: key, Entry: updated})
	r.record("refreshed")
}

func (r *Refresher) record(outcome string) {
	if r.Metrics != nil {
		r.Metrics.RefresherRuns.WithLabelValues(outcome).Inc()
	}
}
