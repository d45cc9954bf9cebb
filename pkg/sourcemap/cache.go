package sourcemap

import (
	"context"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/singleflight"

	"github.com/matzehuels/stackmap/pkg/content"
	"github.com/matzehuels/stackmap/pkg/errors"
	"github.com/matzehuels/stackmap/pkg/observability"
	"github.com/matzehuels/stackmap/pkg/results"
)

// DefaultFetchTimeout bounds a single resource fetch.
const DefaultFetchTimeout = 30 * time.Second

// State tags a cache entry.
type State int

const (
	// Unchecked means the URL was never resolved by this cache.
	Unchecked State = iota

	// Unmapped means the URL was resolved but has no usable map.
	Unmapped

	// Mapped means the URL carries a valid inline map.
	Mapped
)

func (s State) String() string {
	switch s {
	case Unmapped:
		return "unmapped"
	case Mapped:
		return "mapped"
	}
	return "unchecked"
}

// Entry is the outcome of resolving one URL.
type Entry struct {
	State State

	// Map is set when State is Mapped.
	Map *Map

	// Err records why a map could not be used. A resource without a marker
	// is Unmapped with a nil Err.
	Err error
}

// Stats counts cache activity.
type Stats struct {
	Fetches  int64
	Hits     int64
	Mapped   int64
	Unmapped int64
}

// Cache resolves URLs to source maps, once per URL. Concurrent Resolve calls
// for the same URL share one fetch. The zero value is not usable; create
// one with [NewCache].
type Cache struct {
	store   content.Store
	sink    results.Sink
	logger  *log.Logger
	timeout time.Duration

	group singleflight.Group

	mu      sync.Mutex
	entries map[string]Entry

	fetches  atomic.Int64
	hits     atomic.Int64
	mapped   atomic.Int64
	unmapped atomic.Int64
}

// Option configures a Cache.
type Option func(*Cache)

// WithLogger sets the logger warnings are written to.
func WithLogger(l *log.Logger) Option {
	return func(c *Cache) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithFetchTimeout bounds each resource fetch. Zero disables the bound.
func WithFetchTimeout(d time.Duration) Option {
	return func(c *Cache) { c.timeout = d }
}

// NewCache creates a cache reading resources from store and registering
// original source text with sink.
func NewCache(store content.Store, sink results.Sink, opts ...Option) *Cache {
	c := &Cache{
		store:   store,
		sink:    sink,
		logger:  log.NewWithOptions(io.Discard, log.Options{}),
		timeout: DefaultFetchTimeout,
		entries: make(map[string]Entry),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Resolve returns the entry for url, fetching and decoding the resource on
// first use. Map problems never produce an error; they yield an Unmapped
// entry. The returned error is set only when the sink rejects a source file
// or ctx is done, and nothing is cached in that case.
func (c *Cache) Resolve(ctx context.Context, url string) (Entry, error) {
	if e, ok := c.cached(url); ok {
		c.hits.Add(1)
		return e, nil
	}

	v, err, _ := c.group.Do(url, func() (any, error) {
		if e, ok := c.cached(url); ok {
			return e, nil
		}
		e, err := c.load(ctx, url)
		if err != nil {
			return Entry{}, err
		}
		c.mu.Lock()
		c.entries[url] = e
		c.mu.Unlock()
		if e.State == Mapped {
			c.mapped.Add(1)
		} else {
			c.unmapped.Add(1)
		}
		observability.SourceMap().OnLoaded(ctx, url, e.State.String(), e.Err)
		return e, nil
	})
	if err != nil {
		return Entry{}, err
	}
	return v.(Entry), nil
}

// Lookup returns the cached entry for url without fetching. The entry is
// Unchecked when url was never resolved.
func (c *Cache) Lookup(url string) Entry {
	e, _ := c.cached(url)
	return e
}

// Map returns the map cached for url, or nil.
func (c *Cache) Map(url string) *Map {
	return c.Lookup(url).Map
}

// Len returns the number of resolved URLs.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Failures returns the error recorded for each URL whose map could not be
// used.
func (c *Cache) Failures() map[string]error {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]error)
	for url, e := range c.entries {
		if e.Err != nil {
			out[url] = e.Err
		}
	}
	return out
}

// Stats returns a snapshot of the cache counters.
func (c *Cache) Stats() Stats {
	return Stats{
		Fetches:  c.fetches.Load(),
		Hits:     c.hits.Load(),
		Mapped:   c.mapped.Load(),
		Unmapped: c.unmapped.Load(),
	}
}

func (c *Cache) cached(url string) (Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[url]
	return e, ok
}

func (c *Cache) load(ctx context.Context, url string) (Entry, error) {
	if err := errors.ValidateResourceURL(url); err != nil {
		return c.fail(url, errors.Wrap(errors.ErrCodeMapFetch, err, "source map for %s", url)), nil
	}

	res, err := c.fetch(ctx, url)
	if err != nil {
		if ctx.Err() != nil {
			return Entry{}, ctx.Err()
		}
		return c.fail(url, errors.Wrap(errors.ErrCodeMapFetch, err, "fetch %s", url)), nil
	}

	payload, found, err := Extract(res.Data)
	if !found {
		c.logger.Debug("no inline source map", "url", url)
		return Entry{State: Unmapped}, c.addRaw(ctx, url, res)
	}
	var m *Map
	if err == nil {
		m, err = Parse(url, payload)
	}
	if err != nil {
		e := c.fail(url, errors.Wrap(errors.ErrCodeMapParse, err, "source map for %s", url))
		return e, c.addRaw(ctx, url, res)
	}

	kind := res.Kind()
	for i, text := range m.SourcesContent {
		if text == nil {
			continue
		}
		f := results.SourceFile{URL: url, MIMEType: kind, Text: *text}
		if i < len(m.Sources) {
			f.Source = m.Sources[i]
		}
		if err := c.sink.AddSourceFile(ctx, f); err != nil {
			return Entry{}, errors.Wrap(errors.ErrCodeSink, err, "record source %s", f.Source)
		}
	}
	c.logger.Debug("source map loaded", "url", url, "sources", len(m.Sources))
	return Entry{State: Mapped, Map: m}, nil
}

func (c *Cache) fetch(ctx context.Context, url string) (*content.Resource, error) {
	c.fetches.Add(1)
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	start := time.Now()
	res, err := c.store.Get(ctx, url)
	observability.SourceMap().OnFetch(ctx, url, time.Since(start), err)
	return res, err
}

func (c *Cache) fail(url string, err error) Entry {
	c.logger.Warn("source map unavailable", "url", url, "err", err)
	return Entry{State: Unmapped, Err: err}
}

func (c *Cache) addRaw(ctx context.Context, url string, res *content.Resource) error {
	f := results.SourceFile{URL: url, MIMEType: res.Kind(), Text: string(res.Data)}
	if err := c.sink.AddSourceFile(ctx, f); err != nil {
		return errors.Wrap(errors.ErrCodeSink, err, "record source file %s", f.URL)
	}
	return nil
}
