// Package fetcher issues OCSP requests to upstream responders on behalf of
// the handler's miss path and the refresher.
package fetcher

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/augenblickliebhaber/ocsp-proxy/internal/metrics"
	"github.com/augenblickliebhaber/ocsp-proxy/internal/ocsperr"
)

const (
	requestContentType  = "application/ocsp-request"
	responseContentType = "application/ocsp-response"
	userAgent           = "ocsp_proxy"
)

// Fetcher issues OCSP POSTs against upstream responders. The zero value is
// not usable; construct with New.
type Fetcher struct {
	client  *http.Client
	Metrics *metrics.Metrics
}

// New builds a Fetcher around an injected *http.Client, so the supervisor
// can configure proxying and dial/TLS timeouts in one place (the way the
// teacher's common.ProxyFunc configures its shared client's Transport).
func New(client *http.Client) *Fetcher {
	if client == nil {
		client = http.DefaultClient
	}
	return &Fetcher{client: client}
}

// Fetch POSTs requestBytes to http://responderHost/ with the Host header
// set to responderHost, and returns the upstream's DER-encoded OCSP
// response body unchanged.
//
// The upstream request is bound to ctx and is cancelled with it; Fetch adds
// no deadline of its own, so any time limit comes from ctx or from the
// configured *http.Client's own timeout.
func (f *Fetcher) Fetch(ctx context.Context, responderHost string, requestBytes []byte) ([]byte, error) {
	start := time.Now()
	body, err := f.fetch(ctx, responderHost, requestBytes)
	f.observe(responderHost, time.Since(start), err)
	return body, err
}

func (f *Fetcher) fetch(ctx context.Context, responderHost string, requestBytes []byte) ([]byte, error) {
	resp, err := f.do(ctx, responderHost, requestBytes)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, ocsperr.UpstreamStatus(
			fmt.Sprintf("upstream %q returned status %d", responderHost, resp.StatusCode), nil)
	}
	if ct := resp.Header.Get("Content-Type"); ct != responseContentType {
		return nil, ocsperr.UpstreamContentType(
			fmt.Sprintf("upstream %q returned content-type %q, want %q", responderHost, ct, responseContentType), nil)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, ocsperr.UpstreamTransport(fmt.Sprintf("reading body from %q", responderHost), err)
	}
	return body, nil
}

// do issues the upstream POST shared by Fetch and FetchRaw. Callers own
// closing resp.Body.
func (f *Fetcher) do(ctx context.Context, responderHost string, requestBytes []byte) (*http.Response, error) {
	url := fmt.Sprintf("http://%s/", responderHost)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(requestBytes))
	if err != nil {
		return nil, ocsperr.UpstreamTransport("failed to build upstream request", err)
	}
	req.Host = responderHost
	req.Header.Set("Host", responderHost)
	req.Header.Set("Content-Type", requestContentType)
	req.Header.Set("User-Agent", userAgent)
	req.ContentLength = int64(len(requestBytes))

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, ocsperr.UpstreamTransport(fmt.Sprintf("request to %q failed", responderHost), err)
	}
	return resp, nil
}

// FetchRaw POSTs requestBytes to http://responderHost/ like Fetch, but
// returns the upstream's status code and headers alongside the body
// instead of validating and discarding them. The multi-request bypass
// path relays a responder's reply unchanged (spec §4.5 step 5) rather
// than deciding whether to cache it, so it has no use for Fetch's
// status/content-type checks.
func (f *Fetcher) FetchRaw(ctx context.Context, responderHost string, requestBytes []byte) (status int, header http.Header, body []byte, err error) {
	start := time.Now()
	status, header, body, err = f.fetchRaw(ctx, responderHost, requestBytes)
	f.observe(responderHost, time.Since(start), err)
	return status, header, body, err
}

func (f *Fetcher) fetchRaw(ctx context.Context, responderHost string, requestBytes []byte) (int, http.Header, []byte, error) {
	resp, err := f.do(ctx, responderHost, requestBytes)
	if err != nil {
		return 0, nil, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, nil, ocsperr.UpstreamTransport(fmt.Sprintf("reading body from %q", responderHost), err)
	}
	return resp.StatusCode, resp.Header, body, nil
}

// observe records fetch latency against the outcome's error Kind, so the
// histogram separates transport/status/content-type failures from clean
// fetches without string-matching errors.
func (f *Fetcher) observe(responderHost string, elapsed time.Duration, err error) {
	if f.Metrics == nil {
		return
	}
	outcome := "success"
	if k, ok := ocsperr.KindOf(err); ok {
		outcome = k.String()
	} else if err != nil {
		outcome = "error"
	}
	f.Metrics.UpstreamFetch.WithLabelValues(responderHost, outcome).Observe(elapsed.Seconds())
}

