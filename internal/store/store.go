// Package store defines the cache store adapter: a narrow interface over
// the shared key-value store, plus the CacheEntry record that is
// serialized into and out of it.
package store

import (
	"context"
	"encoding/hex"
	"fmt"
	"math/big"
)

// Entry is the record persisted under a computed cache key (spec §3).
type Entry struct {
	CacheKey      string
	OCSPResponder string
	Request       []byte
	Response      []byte
	ThisUpdate    int64
	NextUpdate    int64
	LastChecked   int64
	Status        string
	NonceCount    int
}

// Valid reports the persistence invariant: a persisted entry always has
// non-empty request, response, ocsp_responder, and thisupd > 0.
func (e *Entry) Valid() bool {
	return e != nil &&
		len(e.Request) > 0 &&
		len(e.Response) > 0 &&
		e.OCSPResponder != "" &&
		e.ThisUpdate > 0
}

// Fresh reports whether e may be served without an upstream fetch: nextupd
// is strictly after now, thisupd is set, and both request and response are
// present. now and nextupd are both Unix seconds.
func (e *Entry) Fresh(now int64) bool {
	return e != nil &&
		e.NextUpdate > now &&
		e.ThisUpdate > 0 &&
		len(e.Request) > 0 &&
		len(e.Response) > 0
}

// Cacheable reports whether e is safe to persist: nonced responses are
// one-shot and must never be cached (spec §3 invariant).
func (e *Entry) Cacheable() bool {
	return e.NonceCount == 0
}

// Key derives the cache key for a (prefix, issuerKeyHash, serial) triple:
// <prefix><lowercase-hex issuerKeyHash>_<lowercase-hex serial, unpadded>.
// The issuer name hash is deliberately excluded (spec §3). serial.Text(16)
// already produces lowercase hex with no leading-zero padding and no "0x"
// prefix, exactly as required.
func Key(prefix string, issuerKeyHash []byte, serial *big.Int) string {
	return fmt.Sprintf("%s%s_%s", prefix, hex.EncodeToString(issuerKeyHash), serial.Text(16))
}

// Store is the narrow interface the handler and refresher use to talk to
// the shared key-value store. Get returns (nil, false, nil) for an absent
// key, distinct from a store error.
type Store interface {
	Get(ctx context.Context, key string) (*Entry, bool, error)
	Put(ctx context.Context, entry *Entry) error
	Delete(ctx context.Context, key string) error
	ListKeys(ctx context.Context, prefix string) ([]string, error)
}
