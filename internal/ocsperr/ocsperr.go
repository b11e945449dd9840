// Package ocsperr defines the error kinds shared across the proxy's
// request path and refresh loop, per the error handling design.
package ocsperr

import "errors"

// Kind classifies a proxy error so callers can decide on an HTTP status or
// a log-and-continue without string matching.
type Kind int

const (
	// KindDecode covers malformed OCSP request or response ASN.1.
	KindDecode Kind = iota
	// KindUpstreamTransport covers connection/I-O failures talking to the
	// upstream responder.
	KindUpstreamTransport
	// KindUpstreamStatus covers a non-200 HTTP status from the upstream.
	KindUpstreamStatus
	// KindUpstreamContentType covers an unexpected upstream Content-Type.
	KindUpstreamContentType
	// KindResponderStatusNonSuccess covers OCSPResponse.responseStatus != 0.
	KindResponderStatusNonSuccess
	// KindStoreUnavailable covers lost connectivity to the shared store.
	KindStoreUnavailable
	// KindStoreCorrupt covers a store entry that decoded but broke invariants.
	KindStoreCorrupt
)

func (k Kind) String() string {
	switch k {
	case KindDecode:
		return "decode"
	case KindUpstreamTransport:
		return "upstream_transport"
	case KindUpstreamStatus:
		return "upstream_status"
	case KindUpstreamContentType:
		return "upstream_content_type"
	case KindResponderStatusNonSuccess:
		return "responder_status_non_success"
	case KindStoreUnavailable:
		return "store_unavailable"
	case KindStoreCorrupt:
		return "store_corrupt"
	default:
		return "unknown"
	}
}

// Error is a typed proxy error carrying a Kind for errors.As dispatch and an
// underlying cause for logging.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Msg + ": " + e.Err.Error()
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is makes errors.Is match any *Error of the same Kind, so a value built by
// a constructor works as a kind sentinel: errors.Is(err, ocsperr.Decode("", nil)).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

func new_(k Kind, msg string, cause error) *Error {
	return &Error{Kind: k, Msg: msg, Err: cause}
}

func Decode(msg string, cause error) *Error            { return new_(KindDecode, msg, cause) }
func UpstreamTransport(msg string, cause error) *Error { return new_(KindUpstreamTransport, msg, cause) }
func UpstreamStatus(msg string, cause error) *Error    { return new_(KindUpstreamStatus, msg, cause) }
func UpstreamContentType(msg string, cause error) *Error {
	return new_(KindUpstreamContentType, msg, cause)
}
func ResponderStatusNonSuccess(msg string, cause error) *Error {
	return new_(KindResponderStatusNonSuccess, msg, cause)
}
func StoreUnavailable(msg string, cause error) *Error { return new_(KindStoreUnavailable, msg, cause) }
func StoreCorrupt(msg string, cause error) *Error     { return new_(KindStoreCorrupt, msg, cause) }

// Of returns ok=true and the *Error if err (or something it wraps) is an
// *Error, mirroring errors.As without requiring callers to allocate a target.
func Of(err error) (*Error, bool) {
	var e *Error
	ok := errors.As(err, &e)
	return e, ok
}

// KindOf returns the Kind of err, or a zero value and false if err isn't a
// *Error.
func KindOf(err error) (Kind, bool) {
	e, ok := Of(err)
	if !ok {
		return 0, false
	}
	return e.Kind, true
}

// IsUpstreamFailure reports whether err represents any flavor of upstream
// fetch/decode failure that the handler and refresher both treat as
// equivalent to a 503 / skip-and-retry-later condition.
func IsUpstreamFailure(err error) bool {
	k, ok := KindOf(err)
	if !ok {
		return false
	}
	switch k {
	case KindUpstreamTransport, KindUpstreamStatus, KindUpstreamContentType, KindResponderStatusNonSuccess, KindDecode:
		return true
	default:
		return false
	}
}
