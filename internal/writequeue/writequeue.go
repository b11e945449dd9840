// Package writequeue implements the write serializer: a single-consumer
// queue that is the only path through which the store is ever mutated, so
// that for any key, intents apply in exactly the order they were enqueued
// (spec §4.4, §5).
package writequeue

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/augenblickliebhaber/ocsp-proxy/internal/metrics"
	"github.com/augenblickliebhaber/ocsp-proxy/internal/store"
)

// Op identifies the kind of mutation an Intent carries.
type Op int

const (
	// Upsert writes Entry in full as a single atomic hash write.
	Upsert Op = iota
	// Delete removes Key from the store. Entry is unused for this op.
	Delete
)

// Class determines eviction priority when the queue is bounded: a
// Handler-class intent must never be dropped, while a Refresh-class intent
// may be evicted to make room for new work.
type Class int

const (
	HandlerClass Class = iota
	RefreshClass
)

// Intent is a single pending mutation.
type Intent struct {
	Op    Op
	Class Class
	Key   string
	Entry *store.Entry
}

// Queue is a bounded, mutex-guarded FIFO of Intents with a single
// background consumer applying them to a Store in strict enqueue order.
// Producers (handler tasks, the refresher) never block: Enqueue always
// appends, evicting the oldest RefreshClass intent first if the queue is
// at capacity; if every pending intent is HandlerClass the queue grows
// past capacity rather than drop one, per spec §4.4.
type Queue struct {
	mu       sync.Mutex
	items    []Intent
	notEmpty chan struct{}
	capacity int

	store   store.Store
	log     logrus.FieldLogger
	Metrics *metrics.Metrics
}

// New builds a Queue that applies intents to s. A capacity <= 0 means
// unbounded (the queue never evicts).
func New(s store.Store, log logrus.FieldLogger, capacity int) *Queue {
	return &Queue{
		notEmpty: make(chan struct{}, 1),
		capacity: capacity,
		store:    s,
		log:      log,
	}
}

// Enqueue appends an intent, evicting the oldest refresh-class intent if
// the queue is full and a refresh-class intent is present. It never
// blocks and never drops a handler-class intent.
func (q *Queue) Enqueue(intent Intent) {
	q.mu.Lock()
	if q.capacity > 0 && len(q.items) >= q.capacity {
		q.evictOldestRefreshLocked()
	}
	q.items = append(q.items, intent)
	depth := len(q.items)
	q.mu.Unlock()

	q.reportDepth(depth)

	select {
	case q.notEmpty <- struct{}{}:
	default:
	}
}

// reportDepth updates the depth gauge, if metrics are configured.
func (q *Queue) reportDepth(depth int) {
	if q.Metrics != nil {
		q.Metrics.QueueDepth.Set(float64(depth))
	}
}

// evictOldestRefreshLocked drops the oldest RefreshClass intent in the
// queue, if any. Callers must hold q.mu.
func (q *Queue) evictOldestRefreshLocked() {
	for i, it := range q.items {
		if it.Class == RefreshClass {
			q.items = append(q.items[:i], q.items[i+1:]...)
			if q.log != nil {
				q.log.WithField("key", it.Key).Warn("writequeue: dropped refresh-class intent to make room")
			}
			return
		}
	}
}

// Len reports the current queue depth, for metrics/tests.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func (q *Queue) dequeue() (Intent, bool) {
	q.mu.Lock()
	if len(q.items) == 0 {
		q.mu.Unlock()
		return Intent{}, false
	}
	intent := q.items[0]
	q.items = q.items[1:]
	depth := len(q.items)
	q.mu.Unlock()

	q.reportDepth(depth)
	return intent, true
}

// Run is the single consumer: it drains intents strictly in enqueue order
// and applies each to the store, until ctx is done. Per-intent store
// errors are logged and never stop the consumer (spec §4.4).
func (q *Queue) Run(ctx context.Context) {
	for {
		intent, ok := q.dequeue()
		if !ok {
			select {
			case <-ctx.Done():
				return
			case <-q.notEmpty:
				continue
			}
		}
		q.apply(ctx, intent)
	}
}

func (q *Queue) apply(ctx context.Context, intent Intent) {
	var err error
	switch intent.Op {
	case Upsert:
		err = q.store.Put(ctx, intent.Entry)
	case Delete:
		err = q.store.Delete(ctx, intent.Key)
	}
	if err != nil && q.log != nil {
		q.log.WithError(err).WithField("key", intent.Key).Error("writequeue: store mutation failed")
	}
}
