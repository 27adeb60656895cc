package titles

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/pypydance/roomlog/internal/logging"
	"github.com/pypydance/roomlog/pkg/metrics"
)

// Resolver resolves video identifiers through a cache and a lookup.
//
// An identifier triggers at most one lookup per Resolver. Concurrent callers
// share one call and a success is written to the cache. A video the API
// does not know is cached with its id as the title, so it is never looked up
// again and keeps resolving to the id. Other failures, and results the cache
// could not store, are remembered in memory for the life of the Resolver.
type Resolver struct {
	cache   Cache
	lookup  Lookup
	metrics *metrics.Metrics

	group singleflight.Group

	mu         sync.Mutex
	remembered map[string]resolution
}

// NewResolver creates a resolver. lookup may be nil, in which case only
// cached titles resolve. m may be nil.
func NewResolver(cache Cache, lookup Lookup, m *metrics.Metrics) *Resolver {
	if cache == nil {
		cache = NewMemoryCache()
	}
	return &Resolver{
		cache:      cache,
		lookup:     lookup,
		metrics:    m,
		remembered: make(map[string]resolution),
	}
}

type resolution struct {
	title    string
	resolved bool
}

// Resolve returns the title for id, or id itself with resolved false.
func (r *Resolver) Resolve(ctx context.Context, id string) (string, bool) {
	if title, ok := r.cached(ctx, id); ok {
		r.metrics.CacheLookup(true)
		return title, title != id
	}
	r.metrics.CacheLookup(false)

	if res, ok := r.recall(id); ok {
		return res.title, res.resolved
	}
	if r.lookup == nil {
		return id, false
	}

	v, _, _ := r.group.Do(id, func() (any, error) {
		// Another caller may have finished between the miss and Do.
		if title, ok := r.cached(ctx, id); ok {
			return resolution{title: title, resolved: title != id}, nil
		}
		if res, ok := r.recall(id); ok {
			return res, nil
		}

		title, err := r.lookup.LookupTitle(ctx, id)
		if errors.Is(err, ErrVideoNotFound) {
			// Removed or private videos stay gone; cache the id itself.
			logging.Warn().Str("video_id", id).Msg("Video not found, using video id")
			title, err = id, nil
		}
		if err != nil {
			logging.Warn().Err(err).Str("video_id", id).Msg("Title lookup failed, using video id")
			res := resolution{title: id}
			r.remember(id, res)
			return res, nil
		}

		res := resolution{title: title, resolved: title != id}
		if err := r.cache.Put(ctx, id, title); err != nil {
			logging.Warn().Err(err).Str("video_id", id).Msg("Title not persisted to cache")
			r.remember(id, res)
		}
		return res, nil
	})

	res := v.(resolution)
	return res.title, res.resolved
}

func (r *Resolver) cached(ctx context.Context, id string) (string, bool) {
	title, ok, err := r.cache.Get(ctx, id)
	if err != nil {
		logging.Warn().Err(err).Str("video_id", id).Msg("Title cache read failed")
		return "", false
	}
	return title, ok
}

func (r *Resolver) recall(id string) (resolution, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	res, ok := r.remembered[id]
	return res, ok
}

func (r *Resolver) remember(id string, res resolution) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.remembered[id] = res
}
