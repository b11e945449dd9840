package writequeue

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/augenblickliebhaber/ocsp-proxy/internal/store"
)

type fakeStore struct {
	mu      sync.Mutex
	applied []string
	puts    map[string]*store.Entry
	deletes map[string]bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{puts: map[string]*store.Entry{}, deletes: map[string]bool{}}
}

func (f *fakeStore) Get(ctx context.Context, key string) (*store.Entry, bool, error) {
	return nil, false, nil
}

func (f *fakeStore) Put(ctx context.Context, entry *store.Entry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.applied = append(f.applied, "put:"+entry.CacheKey)
	f.puts[entry.CacheKey] = entry
	return nil
}

func (f *fakeStore) Delete(ctx context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.applied = append(f.applied, "delete:"+key)
	f.deletes[key] = true
	return nil
}

func (f *fakeStore) ListKeys(ctx context.Context, prefix string) ([]string, error) {
	return nil, nil
}

func (f *fakeStore) sequence() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.applied))
	copy(out, f.applied)
	return out
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("timed out waiting for condition")
}

func TestQueue_AppliesInEnqueueOrder(t *testing.T) {
	fs := newFakeStore()
	q := New(fs, nil, 0)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go q.Run(ctx)

	q.Enqueue(Intent{Op: Upsert, Class: HandlerClass, Key: "a", Entry: &store.Entry{CacheKey: "a"}})
	q.Enqueue(Intent{Op: Upsert, Class: HandlerClass, Key: "b", Entry: &store.Entry{CacheKey: "b"}})
	q.Enqueue(Intent{Op: Delete, Class: HandlerClass, Key: "a"})

	waitFor(t, func() bool { return len(fs.sequence()) == 3 })

	got := fs.sequence()
	want := []string{"put:a", "put:b", "delete:a"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("sequence = %v, want %v", got, want)
		}
	}
}

func TestQueue_EvictsOldestRefreshClassWhenFull(t *testing.T) {
	fs := newFakeStore()
	q := New(fs, nil, 2)

	q.Enqueue(Intent{Op: Upsert, Class: RefreshClass, Key: "r1", Entry: &store.Entry{CacheKey: "r1"}})
	q.Enqueue(Intent{Op: Upsert, Class: HandlerClass, Key: "h1", Entry: &store.Entry{CacheKey: "h1"}})
	if q.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", q.Len())
	}

	// Queue is full; r1 is the only refresh-class intent and must be evicted.
	q.Enqueue(Intent{Op: Upsert, Class: HandlerClass, Key: "h2", Entry: &store.Entry{CacheKey: "h2"}})
	if q.Len() != 2 {
		t.Fatalf("Len() = %d, want 2 after eviction", q.Len())
	}

	q.mu.Lock()
	keys := make([]string, len(q.items))
	for i, it := range q.items {
		keys[i] = it.Key
	}
	q.mu.Unlock()
	if keys[0] != "h1" || keys[1] != "h2" {
		t.Errorf("items = %v, want [h1 h2] (r1 evicted)", keys)
	}
}

func TestQueue_NeverDropsHandlerClass(t *testing.T) {
	fs := newFakeStore()
	q := New(fs, nil, 2)

	q.Enqueue(Intent{Op: Upsert, Class: HandlerClass, Key: "h1", Entry: &store.Entry{CacheKey: "h1"}})
	q.Enqueue(Intent{Op: Upsert, Class: HandlerClass, Key: "h2", Entry: &store.Entry{CacheKey: "h2"}})
	// Full, all handler-class; must grow rather than drop.
	q.Enqueue(Intent{Op: Upsert, Class: HandlerClass, Key: "h3", Entry: &store.Entry{CacheKey: "h3"}})

	if q.Len() != 3 {
		t.Fatalf("Len() = %d, want 3 (queue must grow, not drop a handler-class intent)", q.Len())
	}
}
