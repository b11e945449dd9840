// Package handler implements the request-path state machine: the HTTP
// surface clients POST OCSP requests to (spec §4.5).
package handler

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/jmhodges/clock"
	"github.com/sirupsen/logrus"

	"github.com/augenblickliebhaber/ocsp-proxy/internal/fetcher"
	"github.com/augenblickliebhaber/ocsp-proxy/internal/metrics"
	"github.com/augenblickliebhaber/ocsp-proxy/internal/ocsperr"
	"github.com/augenblickliebhaber/ocsp-proxy/internal/ocsppdu"
	"github.com/augenblickliebhaber/ocsp-proxy/internal/store"
	"github.com/augenblickliebhaber/ocsp-proxy/internal/writequeue"
)

const (
	requestContentType = "application/ocsp-request"
	pruneHeader        = "X-prune-from-cache"
)

// Handler is the http.Handler mounted at "/" (spec §4.5), so the stdlib
// http.Server's keep-alive connection handling covers the one-task-per-
// connection requirement without a hand-rolled accept loop.
type Handler struct {
	KeyPrefix string

	Store   store.Store
	Queue   *writequeue.Queue
	Fetcher *fetcher.Fetcher
	Clock   clock.Clock
	Log     logrus.FieldLogger
	Metrics *metrics.Metrics
}

// ServeHTTP implements the request state machine described in spec §4.5.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	log := h.Log.WithField("remote", r.RemoteAddr)
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		log = log.WithField("x-forwarded-for", xff)
	}

	// 1. Method check.
	if r.Method != http.MethodPost {
		h.record(metrics.ResultInvalid)
		w.WriteHeader(http.StatusForbidden)
		return
	}

	host := r.Host
	prune := r.Header.Get(pruneHeader)

	// 2. Header check.
	if host == "" && prune == "" {
		h.record(metrics.ResultInvalid)
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	// 3. Content-Type check.
	if r.Header.Get("Content-Type") != requestContentType {
		h.record(metrics.ResultInvalid)
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		h.record(metrics.ResultInvalid)
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	// 4. Decode.
	decoded, err := ocsppdu.DecodeRequest(body)
	if err != nil {
		log.WithError(err).Debug("handler: failed to decode OCSP request")
		h.record(metrics.ResultInvalid)
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	// 5. Multi-request bypass: forward verbatim, never cache.
	if decoded.RequestCount > 1 {
		h.bypass(w, r.Context(), host, body, log)
		return
	}

	// 6. Compute cache key.
	cacheKey := store.Key(h.KeyPrefix, decoded.FirstReqCert.IssuerKeyHash, decoded.FirstReqCert.SerialNumber)
	log = log.WithField("cache_key", cacheKey)

	// 7. Purge path.
	if prune != "" {
		h.Queue.Enqueue(writequeue.Intent{Op: writequeue.Delete, Class: writequeue.HandlerClass, Key: cacheKey})
		h.record(metrics.ResultPurge)
		w.WriteHeader(http.StatusGone)
		return
	}

	now := h.Clock.Now().Unix()

	// 8. Lookup.
	entry, found, err := h.Store.Get(r.Context(), cacheKey)
	if err != nil {
		log.WithError(err).Error("handler: store lookup failed")
	}
	if found && entry.Fresh(now) {
		h.record(metrics.ResultHit)
		h.serve(w, entry)
		return
	}

	// 9. Miss path.
	h.miss(w, r.Context(), cacheKey, host, body, log)
}

// bypass relays a multi-request response unchanged: status, headers and
// body, per spec §4.5 step 5. It never caches, so it skips Fetch's
// status/content-type validation in favor of FetchRaw.
func (h *Handler) bypass(w http.ResponseWriter, ctx context.Context, host string, body []byte, log logrus.FieldLogger) {
	status, header, resp, err := h.Fetcher.FetchRaw(ctx, host, body)
	if err != nil {
		log.WithError(err).Warn("handler: multi-request bypass fetch failed")
		h.record(metrics.ResultInvalid)
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	h.record(metrics.ResultBypass)
	for key, values := range header {
		for _, v := range values {
			w.Header().Add(key, v)
		}
	}
	w.WriteHeader(status)
	w.Write(resp)
}

func (h *Handler) miss(w http.ResponseWriter, ctx context.Context, cacheKey, host string, body []byte, log logrus.FieldLogger) {
	resp, err := h.Fetcher.Fetch(ctx, host, body)
	if err == nil {
		var decoded *ocsppdu.DecodedResponse
		decoded, err = ocsppdu.DecodeResponse(resp)
		if err == nil {
			h.handleFetchSuccess(w, cacheKey, host, body, resp, decoded, log)
			return
		}
	}

	// Every error Fetch/DecodeResponse can return classifies as an upstream
	// failure; IsUpstreamFailure is checked explicitly so a future error
	// path that doesn't (e.g. a store error finding its way in here) gets
	// flagged loudly instead of silently taking the same evict-and-503
	// treatment.
	if ocsperr.IsUpstreamFailure(err) {
		log.WithError(err).Warn("handler: miss-path fetch/decode failed, evicting any stale entry")
	} else {
		log.WithError(err).Error("handler: miss-path failed with an unclassified error, evicting any stale entry")
	}
	h.Queue.Enqueue(writequeue.Intent{Op: writequeue.Delete, Class: writequeue.HandlerClass, Key: cacheKey})
	h.record(metrics.ResultMiss)
	w.WriteHeader(http.StatusServiceUnavailable)
}

func (h *Handler) handleFetchSuccess(w http.ResponseWriter, cacheKey, host string, body, resp []byte, decoded *ocsppdu.DecodedResponse, log logrus.FieldLogger) {
	entry := &store.Entry{
		CacheKey:      cacheKey,
		OCSPResponder: host,
		Request:       body,
		Response:      resp,
		ThisUpdate:    decoded.ThisUpdate,
		NextUpdate:    decoded.NextUpdate,
		LastChecked:   h.Clock.Now().Unix(),
		Status:        decoded.CertStatus,
		NonceCount:    decoded.NonceCount,
	}

	if entry.Cacheable() {
		h.Queue.Enqueue(writequeue.Intent{Op: writequeue.Upsert, Class: writequeue.HandlerClass, Key: cacheKey, Entry: entry})
	} else {
		log.Debug("handler: response carries a nonce, skipping persistence")
	}

	h.record(metrics.ResultMiss)
	h.serve(w, entry)
}

// serve writes step 10's response headers and body.
func (h *Handler) serve(w http.ResponseWriter, entry *store.Entry) {
	w.Header().Set("Content-Type", "application/ocsp-response")
	w.Header().Set("Content-Length", fmt.Sprintf("%d", len(entry.Response)))
	w.Header().Set("Date", h.Clock.Now().Format(time.RFC1123))
	w.Header().Set("Expires", time.Unix(entry.NextUpdate, 0).UTC().Format(time.RFC1123))
	w.Header().Set("Last-Modified", time.Unix(entry.ThisUpdate, 0).UTC().Format(time.RFC1123))
	w.WriteHeader(http.StatusOK)
	w.Write(entry.Response)
}

func (h *Handler) record(result string) {
	if h.Metrics != nil {
		h.Metrics.Lookups.WithLabelValues(result).Inc()
	}
}
