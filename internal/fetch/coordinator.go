// Package fetch coordinates reads into the entity cache: request
// de-duplication, stale-while-revalidate and revalidation of observed keys.
package fetch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/varunkrunch/opennotebook/internal/cache"
)

// Loader fetches the authoritative value of one key.
type Loader func(ctx context.Context) (interface{}, error)

type observer struct {
	count  int
	loader Loader
	unsub  func()
}

// Coordinator is the only component besides the mutation coordinator that
// writes to the cache.
type Coordinator struct {
	cache     *cache.EntityCache
	group     singleflight.Group
	logger    *zap.Logger
	timeout   time.Duration
	staleTime time.Duration
	now       func() time.Time

	mu        sync.Mutex
	observers map[cache.Key]*observer
	bg        sync.WaitGroup
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithLogger sets a logger for fetch lifecycle debug output.
func WithLogger(l *zap.Logger) Option {
	return func(c *Coordinator) { c.logger = l }
}

// WithTimeout bounds every loader call. Zero disables the bound.
func WithTimeout(d time.Duration) Option {
	return func(c *Coordinator) { c.timeout = d }
}

// WithStaleTime makes data stale once it is older than d, in addition to
// explicit invalidation. Zero keeps data fresh until invalidated.
func WithStaleTime(d time.Duration) Option {
	return func(c *Coordinator) { c.staleTime = d }
}

// WithClock overrides the time source used for freshness checks.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) { c.now = now }
}

// NewCoordinator returns a coordinator writing to store.
func NewCoordinator(store *cache.EntityCache, opts ...Option) *Coordinator {
	c := &Coordinator{
		cache:     store,
		logger:    zap.NewNop(),
		now:       time.Now,
		observers: make(map[cache.Key]*observer),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// flightKey ties a shared request to the key's invalidation generation, so a
// request started before an invalidation is not reused after it.
func (c *Coordinator) flightKey(key cache.Key) string {
	e, _ := c.cache.Get(key)
	return fmt.Sprintf("%s#%d", key, e.Invalidations)
}

func (c *Coordinator) start(ctx context.Context, key cache.Key, loader Loader) <-chan singleflight.Result {
	detached := context.WithoutCancel(ctx)
	return c.group.DoChan(c.flightKey(key), func() (interface{}, error) {
		return c.load(detached, key, loader)
	})
}

func (c *Coordinator) load(ctx context.Context, key cache.Key, loader Loader) (interface{}, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	c.cache.SetLoading(key)
	c.logger.Debug("fetch started", zap.String("key", key.String()))
	data, err := loader(ctx)
	if err != nil {
		c.cache.SetError(key, err)
		c.logger.Debug("fetch failed", zap.String("key", key.String()), zap.Error(err))
		return nil, err
	}
	c.cache.Set(key, data)
	c.logger.Debug("fetch finished", zap.String("key", key.String()))
	return data, nil
}

// Ensure loads key, sharing an in-flight request for the same key when there
// is one. If ctx ends first the caller gets ctx.Err(), but the request keeps
// running and its result is still written to the cache.
func (c *Coordinator) Ensure(ctx context.Context, key cache.Key, loader Loader) (interface{}, error) {
	ch := c.start(ctx, key, loader)
	select {
	case res := <-ch:
		return res.Val, res.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Fresh reports whether e can be served without revalidation.
func (c *Coordinator) Fresh(e cache.Entry) bool {
	if !e.HasData || e.Stale {
		return false
	}
	if c.staleTime > 0 && c.now().Sub(e.UpdatedAt) > c.staleTime {
		return false
	}
	return true
}

// Query serves key stale-while-revalidate: fresh data is returned as is,
// stale data is returned immediately while a background fetch refreshes it,
// and a key without data is fetched before returning.
func (c *Coordinator) Query(ctx context.Context, key cache.Key, loader Loader) (interface{}, error) {
	e, ok := c.cache.Get(key)
	if ok && e.HasData {
		if !c.Fresh(e) {
			c.background(key, loader)
		}
		return e.Data, nil
	}
	return c.Ensure(ctx, key, loader)
}

func (c *Coordinator) background(key cache.Key, loader Loader) {
	c.bg.Add(1)
	go func() {
		defer c.bg.Done()
		if _, err := c.Ensure(context.Background(), key, loader); err != nil {
			c.logger.Debug("background revalidation failed", zap.String("key", key.String()), zap.Error(err))
		}
	}()
}

// Observe registers a consumer of key. The listener receives every cache event
// for key. While at least one consumer remains, invalidations of key schedule
// a background revalidation with loader; the most recently registered loader
// is used. Missing or stale data is fetched right away.
func (c *Coordinator) Observe(key cache.Key, loader Loader, listener cache.Listener) func() {
	var unsubListener func()
	if listener != nil {
		unsubListener = c.cache.Subscribe(key, listener)
	}

	c.mu.Lock()
	obs, ok := c.observers[key]
	if !ok {
		obs = &observer{}
		c.observers[key] = obs
		obs.unsub = c.cache.Subscribe(key, func(ev cache.Event) {
			if ev.Kind == cache.EventInvalidated {
				c.revalidateObserved(key)
			}
		})
	}
	obs.count++
	obs.loader = loader
	c.mu.Unlock()

	if e, ok := c.cache.Get(key); !ok || !c.Fresh(e) {
		if !ok || e.Status != cache.StatusLoading {
			c.background(key, loader)
		}
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			if unsubListener != nil {
				unsubListener()
			}
			c.release(key)
		})
	}
}

func (c *Coordinator) release(key cache.Key) {
	c.mu.Lock()
	defer c.mu.Unlock()
	obs, ok := c.observers[key]
	if !ok {
		return
	}
	obs.count--
	if obs.count > 0 {
		return
	}
	obs.unsub()
	delete(c.observers, key)
	c.logger.Debug("last observer left", zap.String("key", key.String()))
}

func (c *Coordinator) revalidateObserved(key cache.Key) {
	c.mu.Lock()
	obs, ok := c.observers[key]
	var loader Loader
	if ok {
		loader = obs.loader
	}
	c.mu.Unlock()
	if loader != nil {
		c.background(key, loader)
	}
}

// Revalidate schedules a background fetch for each observed key among keys.
// Keys without consumers are left stale until their next access.
func (c *Coordinator) Revalidate(keys ...cache.Key) {
	for _, key := range keys {
		c.revalidateObserved(key)
	}
}

// Observed reports whether key has at least one consumer.
func (c *Coordinator) Observed(key cache.Key) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.observers[key]
	return ok
}

// Wait blocks until every background fetch started so far has finished.
func (c *Coordinator) Wait() {
	c.bg.Wait()
}
