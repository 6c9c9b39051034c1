package domain

import (
	"sync"
	"time"
)

// Pool is a thread-safe, ordered collection of proxies with an auxiliary
// id index. Every public operation is serialised by a single exclusive
// section; operations returning collections return independent snapshots so
// callers never observe a torn read or hold a lock while iterating (spec
// §4.1). Insertion order is preserved and used as the round-robin tie-break.
type Pool struct {
	mu sync.Mutex

	proxies  []*Proxy
	idIndex  map[string]*Proxy
	urlSeen  map[string]struct{}
	maxSize  int

	updatedAt time.Time
}

// DefaultMaxPoolSize is used when NewPool is given a non-positive bound.
const DefaultMaxPoolSize = 10000

func NewPool(maxSize int) *Pool {
	if maxSize <= 0 {
		maxSize = DefaultMaxPoolSize
	}
	return &Pool{
		idIndex:   make(map[string]*Proxy),
		urlSeen:   make(map[string]struct{}),
		maxSize:   maxSize,
		updatedAt: time.Now(),
	}
}

// AddProxy appends p to the pool. Duplicate URLs are silently ignored (the
// first proxy with a given URL wins); the capacity bound returns a distinct
// error instead of silently dropping the add.
func (pool *Pool) AddProxy(p *Proxy) error {
	pool.mu.Lock()
	defer pool.mu.Unlock()

	if _, exists := pool.urlSeen[p.URL()]; exists {
		return nil
	}
	if len(pool.proxies) >= pool.maxSize {
		return &PoolCapacityError{MaxSize: pool.maxSize}
	}

	pool.proxies = append(pool.proxies, p)
	pool.idIndex[p.ID()] = p
	pool.urlSeen[p.URL()] = struct{}{}
	pool.updatedAt = time.Now()
	return nil
}

// RemoveProxy is idempotent: removing an absent id is a no-op, not an error.
func (pool *Pool) RemoveProxy(id string) {
	pool.mu.Lock()
	defer pool.mu.Unlock()

	p, ok := pool.idIndex[id]
	if !ok {
		return
	}

	for i, candidate := range pool.proxies {
		if candidate.ID() == id {
			pool.proxies = append(pool.proxies[:i], pool.proxies[i+1:]...)
			break
		}
	}
	delete(pool.idIndex, id)
	delete(pool.urlSeen, p.URL())
	pool.updatedAt = time.Now()
}

// GetProxyByID is an O(1) lookup via the id index.
func (pool *Pool) GetProxyByID(id string) (*Proxy, bool) {
	pool.mu.Lock()
	defer pool.mu.Unlock()
	p, ok := pool.idIndex[id]
	return p, ok
}

// Size returns the current proxy count.
func (pool *Pool) Size() int {
	pool.mu.Lock()
	defer pool.mu.Unlock()
	return len(pool.proxies)
}

// UpdatedAt returns the timestamp of the last mutating operation.
func (pool *Pool) UpdatedAt() time.Time {
	pool.mu.Lock()
	defer pool.mu.Unlock()
	return pool.updatedAt
}

// GetAllProxies returns an independent snapshot slice in insertion order; a
// caller mutating the returned slice never affects the pool.
func (pool *Pool) GetAllProxies() []*Proxy {
	pool.mu.Lock()
	defer pool.mu.Unlock()
	out := make([]*Proxy, len(pool.proxies))
	copy(out, pool.proxies)
	return out
}

// GetHealthyProxies returns proxies whose status is healthy, degraded or
// unknown and which are not expired. Strategies apply finer filtering (geo,
// tags, failed-set) on top of this.
func (pool *Pool) GetHealthyProxies() []*Proxy {
	pool.mu.Lock()
	defer pool.mu.Unlock()

	out := make([]*Proxy, 0, len(pool.proxies))
	for _, p := range pool.proxies {
		if p.HealthStatus().Selectable() && !p.IsExpired() {
			out = append(out, p)
		}
	}
	return out
}

// FilterByTags returns every proxy (regardless of health) that carries every
// tag in required (AND semantics). An empty/nil required set matches all.
func (pool *Pool) FilterByTags(required map[string]struct{}) []*Proxy {
	pool.mu.Lock()
	defer pool.mu.Unlock()

	out := make([]*Proxy, 0, len(pool.proxies))
	for _, p := range pool.proxies {
		if p.HasTags(required) {
			out = append(out, p)
		}
	}
	return out
}

// FilterBySource returns every proxy (regardless of health) from source.
func (pool *Pool) FilterBySource(source Source) []*Proxy {
	pool.mu.Lock()
	defer pool.mu.Unlock()

	out := make([]*Proxy, 0, len(pool.proxies))
	for _, p := range pool.proxies {
		if p.Source() == source {
			out = append(out, p)
		}
	}
	return out
}

// ClearUnhealthy removes every proxy whose status is unhealthy or dead,
// rebuilds the id/url indices and returns the number removed.
func (pool *Pool) ClearUnhealthy() int {
	return pool.clearMatching(func(p *Proxy) bool {
		return p.HealthStatus().IsUnhealthy()
	})
}

// ClearExpired removes every expired proxy and returns the number removed.
func (pool *Pool) ClearExpired() int {
	return pool.clearMatching(func(p *Proxy) bool {
		return p.IsExpired()
	})
}

func (pool *Pool) clearMatching(matches func(*Proxy) bool) int {
	pool.mu.Lock()
	defer pool.mu.Unlock()

	kept := pool.proxies[:0:0]
	removed := 0
	for _, p := range pool.proxies {
		if matches(p) {
			removed++
			delete(pool.idIndex, p.ID())
			delete(pool.urlSeen, p.URL())
			continue
		}
		kept = append(kept, p)
	}
	pool.proxies = kept
	if removed > 0 {
		pool.updatedAt = time.Now()
	}
	return removed
}

// Stats is a point-in-time aggregate computed under the pool lock so every
// field is mutually consistent with the others.
type Stats struct {
	Size             int
	HealthyCount     int
	UnhealthyCount   int
	DegradedCount    int
	UnknownCount     int
	TotalRequests    int64
	TotalSuccesses   int64
	TotalFailures    int64
	OverallSuccessRate float64
	BySource         map[Source]int
}

// Stats scans the pool once under the lock and returns internally consistent
// aggregates (spec §4.1 "derived stats").
func (pool *Pool) Stats() Stats {
	pool.mu.Lock()
	defer pool.mu.Unlock()

	stats := Stats{
		Size:     len(pool.proxies),
		BySource: make(map[Source]int),
	}

	for _, p := range pool.proxies {
		snap := p.Snapshot()
		switch snap.HealthStatus {
		case HealthHealthy:
			stats.HealthyCount++
		case HealthDegraded:
			stats.DegradedCount++
		case HealthUnknown:
			stats.UnknownCount++
		case HealthUnhealthy, HealthDead:
			stats.UnhealthyCount++
		}
		stats.TotalRequests += snap.TotalRequests
		stats.TotalSuccesses += snap.TotalSuccesses
		stats.TotalFailures += snap.TotalFailures
		stats.BySource[snap.Source]++
	}

	if stats.TotalRequests > 0 {
		stats.OverallSuccessRate = float64(stats.TotalSuccesses) / float64(stats.TotalRequests)
	}

	return stats
}
