// Package querycache is a keyed store of query results. Entries are replaced
// wholesale on every fetch; observers of a key are told about each
// replacement synchronously, from the goroutine that performed it.
package querycache

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rivaldorose/konsensi-workspace/internal/metrics"
	"golang.org/x/sync/singleflight"
)

// Key identifies a query: its name plus its parameters.
type Key struct {
	name   string
	params string
}

func NewKey(name string, params ...string) Key {
	return Key{name: name, params: strings.Join(params, "\x1f")}
}

func (k Key) Name() string { return k.name }

func (k Key) String() string {
	if k.params == "" {
		return k.name
	}
	return k.name + "[" + strings.ReplaceAll(k.params, "\x1f", ",") + "]"
}

// MessagesKey identifies the message list of one channel.
func MessagesKey(channelID int64) Key {
	return NewKey("chat_messages", strconv.FormatInt(channelID, 10))
}

// ChannelsKey identifies the channel directory as seen by one user.
func ChannelsKey(userID int64) Key {
	return NewKey("chat_channels", strconv.FormatInt(userID, 10))
}

type Fetcher func(ctx context.Context) (any, error)

type Observer func(value any)

type entry struct {
	value     any
	hasValue  bool
	fetchedAt time.Time
	stale     bool
	fetcher   Fetcher

	// started counts fetches begun for this key; applied is the sequence of
	// the fetch whose result is currently stored. A result older than the one
	// stored is discarded.
	started uint64
	applied uint64

	observers map[uint64]Observer
}

type Cache struct {
	mu        sync.Mutex
	entries   map[Key]*entry
	nextObs   uint64
	staleTime time.Duration
	now       func() time.Time
	flight    singleflight.Group
}

type Option func(*Cache)

// WithStaleTime sets how long a fetched value is served without re-running
// its fetcher. Zero means every Fetch goes to the source.
func WithStaleTime(d time.Duration) Option {
	return func(c *Cache) { c.staleTime = d }
}

func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

func New(opts ...Option) *Cache {
	c := &Cache{
		entries: make(map[Key]*entry),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Cache) entryLocked(key Key) *entry {
	e, ok := c.entries[key]
	if !ok {
		e = &entry{observers: make(map[uint64]Observer)}
		c.entries[key] = e
	}
	return e
}

// Peek returns the stored value for key without fetching.
func (c *Cache) Peek(key Key) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok || !e.hasValue {
		return nil, false
	}
	return e.value, true
}

// Fetch returns the stored value when it is fresh, otherwise runs fetcher and
// replaces the stored value with its result. Concurrent fetches of one key
// share a single fetcher call. On error the stored value is left untouched.
func (c *Cache) Fetch(ctx context.Context, key Key, fetcher Fetcher) (any, error) {
	c.mu.Lock()
	e := c.entryLocked(key)
	e.fetcher = fetcher
	if e.hasValue && !e.stale && c.now().Sub(e.fetchedAt) < c.staleTime {
		v := e.value
		c.mu.Unlock()
		metrics.CacheRequests.WithLabelValues(key.name, "hit").Inc()
		return v, nil
	}
	c.mu.Unlock()

	metrics.CacheRequests.WithLabelValues(key.name, "miss").Inc()
	return c.run(ctx, key, fetcher)
}

// Refetch re-runs the last fetcher used for key and replaces the stored
// value. It never joins a fetch already in flight, since that one may have
// read the source before the change being reacted to. It does nothing for
// keys that were never fetched.
func (c *Cache) Refetch(ctx context.Context, key Key) error {
	c.mu.Lock()
	e, ok := c.entries[key]
	if !ok || e.fetcher == nil {
		c.mu.Unlock()
		return nil
	}
	fetcher := e.fetcher
	c.mu.Unlock()

	c.flight.Forget(key.String())
	_, err := c.run(ctx, key, fetcher)
	return err
}

// Invalidate marks key stale so the next Fetch goes to the source.
func (c *Cache) Invalidate(key Key) {
	c.mu.Lock()
	if e, ok := c.entries[key]; ok {
		e.stale = true
	}
	c.mu.Unlock()
	metrics.CacheInvalidations.WithLabelValues(key.name).Inc()
}

// Set replaces the stored value for key and notifies its observers.
func (c *Cache) Set(key Key, value any) {
	c.mu.Lock()
	e := c.entryLocked(key)
	e.started++
	c.storeLocked(e, e.started, value)
	observers := snapshot(e)
	c.mu.Unlock()

	notify(observers, value)
}

// Observe registers fn for replacements of key. The returned func removes it.
func (c *Cache) Observe(key Key, fn Observer) (cancel func()) {
	c.mu.Lock()
	e := c.entryLocked(key)
	c.nextObs++
	id := c.nextObs
	e.observers[id] = fn
	c.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			if e, ok := c.entries[key]; ok {
				delete(e.observers, id)
			}
			c.mu.Unlock()
		})
	}
}

func (c *Cache) run(ctx context.Context, key Key, fetcher Fetcher) (any, error) {
	v, err, _ := c.flight.Do(key.String(), func() (any, error) {
		c.mu.Lock()
		e := c.entryLocked(key)
		e.started++
		seq := e.started
		c.mu.Unlock()

		value, err := fetcher(ctx)
		if err != nil {
			metrics.CacheRefetches.WithLabelValues(key.name, "error").Inc()
			return nil, err
		}
		metrics.CacheRefetches.WithLabelValues(key.name, "ok").Inc()

		c.mu.Lock()
		e = c.entryLocked(key)
		if !c.storeLocked(e, seq, value) {
			value = e.value
			c.mu.Unlock()
			return value, nil
		}
		observers := snapshot(e)
		c.mu.Unlock()

		notify(observers, value)
		return value, nil
	})
	return v, err
}

// storeLocked applies a result from fetch number seq. It reports false when a
// newer result is already stored.
func (c *Cache) storeLocked(e *entry, seq uint64, value any) bool {
	if seq < e.applied {
		return false
	}
	e.applied = seq
	e.value = value
	e.hasValue = true
	e.fetchedAt = c.now()
	e.stale = false
	return true
}

func snapshot(e *entry) []Observer {
	out := make([]Observer, 0, len(e.observers))
	for _, fn := range e.observers {
		out = append(out, fn)
	}
	return out
}

func notify(observers []Observer, value any) {
	for _, fn := range observers {
		fn(value)
	}
}

// FetchAs is Fetch with a typed fetcher and result.
func FetchAs[V any](ctx context.Context, c *Cache, key Key, fetch func(ctx context.Context) (V, error)) (V, error) {
	v, err := c.Fetch(ctx, key, func(ctx context.Context) (any, error) {
		return fetch(ctx)
	})
	if err != nil {
		var zero V
		return zero, err
	}
	typed, _ := v.(V)
	return typed, nil
}
