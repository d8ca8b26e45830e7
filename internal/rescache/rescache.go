// Package rescache deduplicates concurrent identical extraction requests and
// reuses recent outcomes. Extraction costs seconds of decoder time, and the
// common production pattern is a burst of requests for the same window and
// source, so at most one extraction per key may ever be in flight.
package rescache

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/sells-group/mrms-extract/internal/model"
)

// ComputeFunc runs the actual extraction on a cache miss.
type ComputeFunc func(ctx context.Context) model.Outcome

// Cache is a TTL result cache fronted by a singleflight group. Entries are
// immutable once stored and evicted lazily on lookup; there is no sweeper.
type Cache struct {
	mu      sync.Mutex
	entries map[string]*entry
	group   singleflight.Group

	ttl        time.Duration
	partialTTL time.Duration

	hits   atomic.Int64
	misses atomic.Int64
}

type entry struct {
	outcome   model.Outcome
	createdAt time.Time
	ttl       time.Duration
}

// Stats is a point-in-time view of cache performance.
type Stats struct {
	Entries int     `json:"entries"`
	Hits    int64   `json:"hits"`
	Misses  int64   `json:"misses"`
	HitRate float64 `json:"hit_rate"`
}

// New creates a cache. Partial (budget-degraded) outcomes get partialTTL so a
// consistently slow source is not hammered, but a fresh attempt happens soon.
func New(ttl, partialTTL time.Duration) *Cache {
	return &Cache{
		entries:    make(map[string]*entry),
		ttl:        ttl,
		partialTTL: partialTTL,
	}
}

// Get returns the cached outcome for key or runs compute exactly once,
// sharing the result with every concurrent caller for the same key. Failed
// outcomes are never stored, so the next request retries immediately.
func (c *Cache) Get(ctx context.Context, key string, compute ComputeFunc) model.Outcome {
	if out, ok := c.lookup(key); ok {
		c.hits.Add(1)
		return out
	}

	v, _, shared := c.group.Do(key, func() (any, error) {
		// Re-check under the flight: a previous flight may have filled the
		// entry between our lookup and this callback.
		if out, ok := c.lookup(key); ok {
			return out, nil
		}
		c.misses.Add(1)

		// The flight outlives whichever caller happened to start it. Its
		// lifetime is bounded by the extraction budget inside compute, not by
		// the leader's request; a leader hanging up must not degrade the
		// outcome delivered to the waiters.
		out := compute(context.WithoutCancel(ctx))
		if out.Cacheable() {
			c.store(key, out)
		}
		return out, nil
	})
	if shared {
		c.hits.Add(1)
	}
	return v.(model.Outcome)
}

// lookup fetches a live entry, lazily evicting it when expired. Entry
// payloads are immutable after insert, so no lock is held while the caller
// reads the returned outcome.
func (c *Cache) lookup(key string) (model.Outcome, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return model.Outcome{}, false
	}
	if time.Since(e.createdAt) > e.ttl {
		delete(c.entries, key)
		return model.Outcome{}, false
	}
	return e.outcome, true
}

func (c *Cache) store(key string, out model.Outcome) {
	ttl := c.ttl
	if out.Status == model.StatusPartialTimeout {
		ttl = c.partialTTL
	}

	c.mu.Lock()
	c.entries[key] = &entry{outcome: out, createdAt: time.Now(), ttl: ttl}
	c.mu.Unlock()
}

// Stats reports hit/miss counters and the live entry count.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	n := len(c.entries)
	c.mu.Unlock()

	hits := c.hits.Load()
	misses := c.misses.Load()
	s := Stats{Entries: n, Hits: hits, Misses: misses}
	if total := hits + misses; total > 0 {
		s.HitRate = float64(hits) / float64(total)
	}
	return s
}
