package store

import "github.com/augenblickliebhaber/ocsp-proxy/internal/ocsperr"

// Unavailable wraps a lost-connectivity error from the backing store.
func Unavailable(msg string, cause error) error {
	return ocsperr.StoreUnavailable(msg, cause)
}

// Corrupt wraps an error raised when a stored entry cannot be decoded or
// encoded: a numeric field that is not an integer, or malformed JSON. An
// entry that decodes but lacks request, response or responder is not an
// error; Get returns it as is.
func Corrupt(msg string, cause error) error {
	return ocsperr.StoreCorrupt(msg, cause)
}
