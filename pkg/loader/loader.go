// Package loader provides a batching, caching key loader. Load calls
// issued inside one batch window are coalesced into a single batch
// function dispatch with deduplicated keys, turning N synchronous
// lookups into one fetch.
package loader

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sylphx/lens/pkg/telemetry"
)

// ErrBatchLength is returned for every key of a batch whose batch
// function produced a result count different from the key count.
var ErrBatchLength = errors.New("loader: batch function returned wrong number of results")

// Result is one per-key outcome of a batch fetch.
type Result struct {
	Value any
	Err   error
}

// BatchFunc fetches values for a set of keys. It must return exactly one
// Result per key, in key order. Individual failures are expressed as
// Result.Err; returning a slice of the wrong length fails every key in
// the batch.
type BatchFunc func(ctx context.Context, keys []string) []Result

// Options tune a Loader.
type Options struct {
	// Wait is how long a batch collects keys before dispatch. This is
	// the event-loop "tick" boundary expressed as a short window.
	Wait time.Duration
	// MaxBatchSize flushes a batch early once it holds this many keys.
	// Zero means unbounded.
	MaxBatchSize int
	// DisableCache turns off result caching. In-flight batching still
	// coalesces calls into one dispatch, but outcomes are not kept and
	// duplicate keys are not deduplicated.
	DisableCache bool
	// CacheKeyFunc maps a lookup key to its cache key. Identity when nil.
	CacheKeyFunc func(string) string
}

// Loader batches and caches lookups for one key space.
type Loader struct {
	batchFn  BatchFunc
	wait     time.Duration
	maxBatch int
	noCache  bool
	cacheKey func(string) string

	mu      sync.Mutex
	cache   map[string]*thunk
	pending *batch
}

// thunk is the shared future for one requested key.
type thunk struct {
	done  chan struct{}
	value any
	err   error
}

// batch is the set of keys collected during the current window.
type batch struct {
	keys       []string
	thunks     []*thunk
	index      map[string]int // cache key -> position, for dedup
	closed     bool
	dispatched bool
}

// New constructs a Loader around batchFn.
func New(batchFn BatchFunc, opts Options) *Loader {
	if batchFn == nil {
		panic("loader: nil batch function")
	}
	wait := opts.Wait
	if wait <= 0 {
		wait = 2 * time.Millisecond
	}
	keyFn := opts.CacheKeyFunc
	if keyFn == nil {
		keyFn = func(k string) string { return k }
	}
	return &Loader{
		batchFn:  batchFn,
		wait:     wait,
		maxBatch: opts.MaxBatchSize,
		noCache:  opts.DisableCache,
		cacheKey: keyFn,
		cache:    make(map[string]*thunk),
	}
}

// Load returns the value for key, batching the fetch with other Load
// calls issued in the same window and serving repeats from cache.
func (l *Loader) Load(ctx context.Context, key string) (any, error) {
	t := l.loadThunk(key)
	return t.wait(ctx)
}

// LoadMany loads every key and returns per-key results in input order.
// Individual failures appear in place; only a structural batch failure
// affects all keys.
func (l *Loader) LoadMany(ctx context.Context, keys []string) []Result {
	thunks := make([]*thunk, len(keys))
	for i, k := range keys {
		thunks[i] = l.loadThunk(k)
	}
	out := make([]Result, len(keys))
	for i, t := range thunks {
		v, err := t.wait(ctx)
		out[i] = Result{Value: v, Err: err}
	}
	return out
}

// Prime seeds the cache for key with a known value without invoking the
// batch function. No-op when caching is disabled or the key is already
// cached.
func (l *Loader) Prime(key string, value any) {
	if l.noCache {
		return
	}
	ck := l.cacheKey(key)
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.cache[ck]; ok {
		return
	}
	t := &thunk{done: make(chan struct{}), value: value}
	close(t.done)
	l.cache[ck] = t
}

// ForcePrime is Prime but overwrites any existing cache entry. Used
// after mutations to refresh the cached view of an entity.
func (l *Loader) ForcePrime(key string, value any) {
	if l.noCache {
		return
	}
	ck := l.cacheKey(key)
	t := &thunk{done: make(chan struct{}), value: value}
	close(t.done)
	l.mu.Lock()
	l.cache[ck] = t
	l.mu.Unlock()
}

// Clear evicts one key from the cache.
func (l *Loader) Clear(key string) {
	ck := l.cacheKey(key)
	l.mu.Lock()
	delete(l.cache, ck)
	l.mu.Unlock()
}

// ClearAll evicts the entire cache.
func (l *Loader) ClearAll() {
	l.mu.Lock()
	l.cache = make(map[string]*thunk)
	l.mu.Unlock()
}

// loadThunk registers key in the current batch (or returns the cached /
// in-flight thunk) without blocking. Callers wait on the result
// afterwards so that LoadMany registers all keys before any block.
func (l *Loader) loadThunk(key string) *thunk {
	ck := l.cacheKey(key)
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.noCache {
		if t, ok := l.cache[ck]; ok {
			telemetry.LoaderCacheHits.Inc()
			return t
		}
	}

	b := l.pending
	if b == nil || b.closed {
		b = &batch{index: make(map[string]int)}
		l.pending = b
		time.AfterFunc(l.wait, func() { l.flush(b) })
	}

	// Dedup within the window: repeats share the first thunk. With the
	// cache disabled every call gets its own slot, matching re-fetch
	// semantics.
	if !l.noCache {
		if i, ok := b.index[ck]; ok {
			return b.thunks[i]
		}
	}

	t := &thunk{done: make(chan struct{})}
	b.keys = append(b.keys, key)
	b.thunks = append(b.thunks, t)
	b.index[ck] = len(b.keys) - 1
	if !l.noCache {
		l.cache[ck] = t
	}

	if l.maxBatch > 0 && len(b.keys) >= l.maxBatch {
		b.closed = true
		l.pending = nil
		go l.flush(b)
	}
	return t
}

// flush dispatches one batch. Exactly one dispatch happens per batch:
// either the window timer or the max-size trigger wins.
func (l *Loader) flush(b *batch) {
	l.mu.Lock()
	if b.dispatched {
		l.mu.Unlock()
		return
	}
	b.dispatched = true
	b.closed = true
	if l.pending == b {
		l.pending = nil
	}
	l.mu.Unlock()

	if len(b.keys) == 0 {
		return
	}

	telemetry.LoaderBatches.Inc()
	telemetry.LoaderBatchedKeys.Add(float64(len(b.keys)))

	results := l.runBatch(b.keys)
	for i, t := range b.thunks {
		t.value = results[i].Value
		t.err = results[i].Err
		close(t.done)
	}
	// Error thunks stay cached too (until cleared); they were installed
	// at registration time, so nothing further to do here.
}

// runBatch invokes the batch function, converting panics and
// length-mismatched responses into a structural error for every key.
func (l *Loader) runBatch(keys []string) (results []Result) {
	defer func() {
		if r := recover(); r != nil {
			telemetry.LoaderBatchErrors.Inc()
			err := fmt.Errorf("loader: batch function panicked: %v", r)
			results = errorResults(len(keys), err)
		}
	}()
	results = l.batchFn(context.Background(), keys)
	if len(results) != len(keys) {
		telemetry.LoaderBatchErrors.Inc()
		err := fmt.Errorf("%w: got %d results for %d keys", ErrBatchLength, len(results), len(keys))
		results = errorResults(len(keys), err)
	}
	return results
}

func errorResults(n int, err error) []Result {
	out := make([]Result, n)
	for i := range out {
		out[i] = Result{Err: err}
	}
	return out
}

func (t *thunk) wait(ctx context.Context) (any, error) {
	select {
	case <-t.done:
		return t.value, t.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
