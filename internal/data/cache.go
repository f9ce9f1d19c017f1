package data

import (
	"sort"
	"sync"
	"time"

	"energy-mca/internal/analysis"
	"energy-mca/internal/mca"
	"energy-mca/internal/results"

	"github.com/google/uuid"
)

// DefaultTTL is how long a finished simulation stays retrievable.
const DefaultTTL = time.Hour

// Simulation is a finished run together with its flattened outputs.
type Simulation struct {
	Run     *mca.Run
	Tables  *results.Tables
	Summary *analysis.RunSummary
	// Weights are the timeslice weights of the run.
	Weights []float64
	// Err is set when the run stopped early; Run then holds the partial state.
	Err error
}

// CacheEntry is a cached simulation.
type CacheEntry struct {
	Simulation *Simulation
	ExpiresAt  time.Time
}

// ResultCache keeps finished simulations in memory keyed by run ID.
type ResultCache struct {
	mu    sync.RWMutex
	store map[uuid.UUID]*CacheEntry
	ttl   time.Duration
	now   func() time.Time

	stop chan struct{}
	once sync.Once
}

// NewResultCache starts a cache whose expired entries are swept every
// interval. A non-positive ttl uses DefaultTTL; a non-positive interval
// disables the sweeper.
func NewResultCache(ttl, interval time.Duration) *ResultCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	c := &ResultCache{
		store: make(map[uuid.UUID]*CacheEntry),
		ttl:   ttl,
		now:   time.Now,
		stop:  make(chan struct{}),
	}
	if interval > 0 {
		go c.cleanup(interval)
	}
	return c
}

// Get retrieves a simulation if present and not expired.
func (c *ResultCache) Get(id uuid.UUID) (*Simulation, bool) {
	if c == nil {
		return nil, false
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, exists := c.store[id]
	if !exists || c.now().After(entry.ExpiresAt) {
		return nil, false
	}
	return entry.Simulation, true
}

// Set stores a simulation under id.
func (c *ResultCache) Set(id uuid.UUID, sim *Simulation) {
	if c == nil {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.store[id] = &CacheEntry{Simulation: sim, ExpiresAt: c.now().Add(c.ttl)}
}

// IDs lists the live entries, most recently stored last.
func (c *ResultCache) IDs() []uuid.UUID {
	if c == nil {
		return nil
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	now := c.now()
	type live struct {
		id  uuid.UUID
		exp time.Time
	}
	var all []live
	for id, e := range c.store {
		if !now.After(e.ExpiresAt) {
			all = append(all, live{id, e.ExpiresAt})
		}
	}
	sort.Slice(all, func(i, j int) bool {
		if !all[i].exp.Equal(all[j].exp) {
			return all[i].exp.Before(all[j].exp)
		}
		return all[i].id.String() < all[j].id.String()
	})
	out := make([]uuid.UUID, len(all))
	for i, l := range all {
		out[i] = l.id
	}
	return out
}

// Clear removes all entries.
func (c *ResultCache) Clear() {
	if c == nil {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.store = make(map[uuid.UUID]*CacheEntry)
}

// Close stops the sweeper.
func (c *ResultCache) Close() {
	if c == nil {
		return
	}
	c.once.Do(func() { close(c.stop) })
}

// Sweep removes expired entries and reports how many were dropped.
func (c *ResultCache) Sweep() int {
	if c == nil {
		return 0
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	n := 0
	for id, entry := range c.store {
		if now.After(entry.ExpiresAt) {
			delete(c.store, id)
			n++
		}
	}
	return n
}

func (c *ResultCache) cleanup(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.Sweep()
		case <-c.stop:
			return
		}
	}
}
