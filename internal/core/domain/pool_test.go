package domain

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

func newTestPoolProxy(t *testing.T, url string) *Proxy {
	t.Helper()
	p, err := NewProxy(NewProxyOptions{URL: url})
	if err != nil {
		t.Fatalf("NewProxy(%q): %v", url, err)
	}
	return p
}

func TestPool_AddProxy_RejectsDuplicateURL(t *testing.T) {
	pool := NewPool(10)
	a := newTestPoolProxy(t, "http://10.0.0.1:8080")
	b := newTestPoolProxy(t, "http://10.0.0.1:8080")

	if err := pool.AddProxy(a); err != nil {
		t.Fatalf("AddProxy(a): %v", err)
	}
	if err := pool.AddProxy(b); err != nil {
		t.Fatalf("AddProxy(b) (duplicate should be silently ignored): %v", err)
	}
	if pool.Size() != 1 {
		t.Fatalf("expected size 1 after duplicate add, got %d", pool.Size())
	}
	if got, _ := pool.GetProxyByID(a.ID()); got != a {
		t.Fatal("expected the first proxy with this URL to win")
	}
}

func TestPool_AddProxy_RespectsCapacity(t *testing.T) {
	pool := NewPool(1)
	if err := pool.AddProxy(newTestPoolProxy(t, "http://10.0.0.1:8080")); err != nil {
		t.Fatalf("AddProxy: %v", err)
	}

	err := pool.AddProxy(newTestPoolProxy(t, "http://10.0.0.2:8080"))
	if err == nil {
		t.Fatal("expected PoolCapacityError once the pool is full")
	}
	if _, ok := err.(*PoolCapacityError); !ok {
		t.Fatalf("expected *PoolCapacityError, got %T", err)
	}
}

func TestPool_RemoveProxy_IsIdempotent(t *testing.T) {
	pool := NewPool(10)
	p := newTestPoolProxy(t, "http://10.0.0.1:8080")
	_ = pool.AddProxy(p)

	pool.RemoveProxy(p.ID())
	pool.RemoveProxy(p.ID()) // must not panic or error

	if pool.Size() != 0 {
		t.Fatalf("expected empty pool, got size %d", pool.Size())
	}
	if _, ok := pool.GetProxyByID(p.ID()); ok {
		t.Fatal("expected the removed proxy to be absent from the id index")
	}
}

func TestPool_RemoveProxy_FreesURLForReAdd(t *testing.T) {
	pool := NewPool(10)
	p := newTestPoolProxy(t, "http://10.0.0.1:8080")
	_ = pool.AddProxy(p)
	pool.RemoveProxy(p.ID())

	again := newTestPoolProxy(t, "http://10.0.0.1:8080")
	if err := pool.AddProxy(again); err != nil {
		t.Fatalf("expected the freed URL to be re-addable, got %v", err)
	}
	if pool.Size() != 1 {
		t.Fatalf("expected size 1, got %d", pool.Size())
	}
}

func TestPool_GetAllProxies_ReturnsIndependentSnapshot(t *testing.T) {
	pool := NewPool(10)
	_ = pool.AddProxy(newTestPoolProxy(t, "http://10.0.0.1:8080"))
	_ = pool.AddProxy(newTestPoolProxy(t, "http://10.0.0.2:8080"))

	first := pool.GetAllProxies()[0]
	snap := pool.GetAllProxies()
	snap[0] = nil   // mutate the caller's copy
	snap = snap[:1] // and truncate it

	if pool.Size() != 2 {
		t.Fatalf("expected pool unaffected by snapshot mutation, got size %d", pool.Size())
	}
	if len(snap) != 1 {
		t.Fatalf("sanity: expected truncated snapshot to have len 1, got %d", len(snap))
	}
	if pool.GetAllProxies()[0] != first {
		t.Fatal("expected the pool's first proxy unaffected by overwriting the snapshot's element")
	}
}

func TestPool_GetHealthyProxies_ExcludesUnhealthyAndExpired(t *testing.T) {
	pool := NewPool(10)

	healthy := newTestPoolProxy(t, "http://10.0.0.1:8080")
	healthy.SetHealthStatus(HealthHealthy)

	dead := newTestPoolProxy(t, "http://10.0.0.2:8080")
	dead.SetHealthStatus(HealthDead)

	past := time.Now().Add(-time.Second)
	expired, err := NewProxy(NewProxyOptions{URL: "http://10.0.0.3:8080", ExpiresAt: &past})
	if err != nil {
		t.Fatalf("NewProxy: %v", err)
	}
	expired.SetHealthStatus(HealthHealthy)

	_ = pool.AddProxy(healthy)
	_ = pool.AddProxy(dead)
	_ = pool.AddProxy(expired)

	got := pool.GetHealthyProxies()
	if len(got) != 1 || got[0] != healthy {
		t.Fatalf("expected only the healthy, non-expired proxy, got %d proxies", len(got))
	}
}

func TestPool_FilterByTags_UsesANDSemantics(t *testing.T) {
	pool := NewPool(10)
	a, err := NewProxy(NewProxyOptions{URL: "http://10.0.0.1:8080", Tags: []string{"fast", "eu"}})
	if err != nil {
		t.Fatalf("NewProxy: %v", err)
	}
	b, err := NewProxy(NewProxyOptions{URL: "http://10.0.0.2:8080", Tags: []string{"fast"}})
	if err != nil {
		t.Fatalf("NewProxy: %v", err)
	}
	_ = pool.AddProxy(a)
	_ = pool.AddProxy(b)

	got := pool.FilterByTags(map[string]struct{}{"fast": {}, "eu": {}})
	if len(got) != 1 || got[0] != a {
		t.Fatalf("expected only the proxy carrying both tags, got %d", len(got))
	}
}

func TestPool_ClearUnhealthy_RebuildsIndexAndReportsCount(t *testing.T) {
	pool := NewPool(10)
	ok := newTestPoolProxy(t, "http://10.0.0.1:8080")
	ok.SetHealthStatus(HealthHealthy)
	bad := newTestPoolProxy(t, "http://10.0.0.2:8080")
	bad.SetHealthStatus(HealthUnhealthy)

	_ = pool.AddProxy(ok)
	_ = pool.AddProxy(bad)

	removed := pool.ClearUnhealthy()
	if removed != 1 {
		t.Fatalf("expected 1 removed, got %d", removed)
	}
	if pool.Size() != 1 {
		t.Fatalf("expected size 1 after clear, got %d", pool.Size())
	}
	if _, ok := pool.GetProxyByID(bad.ID()); ok {
		t.Fatal("expected the unhealthy proxy gone from the id index")
	}
}

func TestPool_Stats_AreInternallyConsistent(t *testing.T) {
	pool := NewPool(10)
	for i := 0; i < 3; i++ {
		p := newTestPoolProxy(t, fmt.Sprintf("http://10.0.0.%d:8080", i))
		p.SetHealthStatus(HealthHealthy)
		p.RecordSuccess(10)
		p.RecordFailure(nil)
		_ = pool.AddProxy(p)
	}

	stats := pool.Stats()
	if stats.Size != 3 {
		t.Fatalf("expected size 3, got %d", stats.Size)
	}
	if stats.TotalRequests != 6 {
		t.Fatalf("expected 6 total requests (2 per proxy), got %d", stats.TotalRequests)
	}
	if stats.HealthyCount+stats.UnhealthyCount > stats.Size {
		t.Fatalf("healthy+unhealthy (%d+%d) exceeds size %d", stats.HealthyCount, stats.UnhealthyCount, stats.Size)
	}
}

// TestPool_ConcurrentMutation_PreservesInvariants exercises the spec's
// thread-safety property (§4.1): size == len(id index), no duplicate URLs,
// no negative counts, across concurrent add/remove/snapshot traffic.
func TestPool_ConcurrentMutation_PreservesInvariants(t *testing.T) {
	pool := NewPool(1000)

	const adders = 8
	const perAdder = 25

	var wg sync.WaitGroup
	for w := 0; w < adders; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			for i := 0; i < perAdder; i++ {
				url := fmt.Sprintf("http://10.%d.%d.1:8080", worker, i)
				p, err := NewProxy(NewProxyOptions{URL: url})
				if err != nil {
					t.Errorf("NewProxy: %v", err)
					return
				}
				if err := pool.AddProxy(p); err != nil {
					t.Errorf("AddProxy: %v", err)
					return
				}
				_ = pool.GetAllProxies()
				if i%5 == 0 {
					pool.RemoveProxy(p.ID())
				}
			}
		}(w)
	}
	wg.Wait()

	size := pool.Size()
	all := pool.GetAllProxies()
	if size != len(all) {
		t.Fatalf("size (%d) disagrees with snapshot length (%d)", size, len(all))
	}

	seenURLs := make(map[string]struct{}, len(all))
	for _, p := range all {
		if _, dup := seenURLs[p.URL()]; dup {
			t.Fatalf("duplicate URL survived concurrent mutation: %s", p.URL())
		}
		seenURLs[p.URL()] = struct{}{}
	}

	maxExpected := adders * perAdder
	if size < 0 || size > maxExpected {
		t.Fatalf("final size %d outside plausible [0,%d]", size, maxExpected)
	}
}
