package store

import (
	"context"
	"strconv"

	"github.com/redis/go-redis/v9"
)

// Redis hash field names, matching spec §6's persisted-state layout (values
// stored as strings, times as decimal Unix seconds).
const (
	fieldResponder   = "ocsp_responder"
	fieldRequest     = "request"
	fieldResponse    = "response"
	fieldThisUpdate  = "thisupd"
	fieldNextUpdate  = "nextupd"
	fieldLastChecked = "lastchecked"
	fieldStatus      = "status"
	fieldNonce       = "nonce"
)

// RedisStore is a Store backed by Redis, with each CacheEntry held as a
// hash under its cache_key (HSET) and enumeration done via SCAN rather
// than KEYS, since KEYS blocks the server for O(N) keys in production.
type RedisStore struct {
	client redis.Cmdable
}

// NewRedisStore wraps an already-configured redis.Cmdable (typically a
// *redis.Client built from the store endpoint in the proxy's
// configuration).
func NewRedisStore(client redis.Cmdable) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Get(ctx context.Context, key string) (*Entry, bool, error) {
	fields, err := s.client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, false, Unavailable("redis HGETALL failed", err)
	}
	if len(fields) == 0 {
		return nil, false, nil
	}

	entry, err := decodeEntry(key, fields)
	if err != nil {
		return nil, false, err
	}
	return entry, true, nil
}

func (s *RedisStore) Put(ctx context.Context, entry *Entry) error {
	values := map[string]interface{}{
		fieldResponder:   entry.OCSPResponder,
		fieldRequest:     string(entry.Request),
		fieldResponse:    string(entry.Response),
		fieldThisUpdate:  strconv.FormatInt(entry.ThisUpdate, 10),
		fieldNextUpdate:  strconv.FormatInt(entry.NextUpdate, 10),
		fieldLastChecked: strconv.FormatInt(entry.LastChecked, 10),
		fieldStatus:      entry.Status,
		fieldNonce:       strconv.Itoa(entry.NonceCount),
	}
	if err := s.client.HSet(ctx, entry.CacheKey, values).Err(); err != nil {
		return Unavailable("redis HSET failed", err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, key).Err(); err != nil {
		return Unavailable("redis DEL failed", err)
	}
	return nil
}

func (s *RedisStore) ListKeys(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	iter := s.client.Scan(ctx, 0, prefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, Unavailable("redis SCAN failed", err)
	}
	return keys, nil
}

func decodeEntry(key string, fields map[string]string) (*Entry, error) {
	thisUpdate, err := parseIntField(fields, fieldThisUpdate)
	if err != nil {
		return nil, err
	}
	nextUpdate, err := parseIntField(fields, fieldNextUpdate)
	if err != nil {
		return nil, err
	}
	lastChecked, err := parseIntField(fields, fieldLastChecked)
	if err != nil {
		return nil, err
	}
	nonce, err := parseIntField(fields, fieldNonce)
	if err != nil {
		return nil, err
	}
	return &Entry{
		CacheKey:      key,
		OCSPResponder: fields[fieldResponder],
		Request:       []byte(fields[fieldRequest]),
		Response:      []byte(fields[fieldResponse]),
		ThisUpdate:    thisUpdate,
		NextUpdate:    nextUpdate,
		LastChecked:   lastChecked,
		Status:        fields[fieldStatus],
		NonceCount:    nonce,
	}, nil
}

func parseIntField(fields map[string]string, name string) (int64, error) {
	raw, present := fields[name]
	if !present || raw == "" {
		return 0, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, Corrupt("field "+name+" is not an integer", err)
	}
	return v, nil
}
