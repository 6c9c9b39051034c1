package strategy

import (
	"testing"
)

// TestLeastUsed_BalancesWithinOne is the spec's least-used balancing
// invariant (§8.1): after k*N selections with RecordResult called each
// time, every proxy's requests_started differs by at most 1 from every
// other.
func TestLeastUsed_BalancesWithinOne(t *testing.T) {
	pool := newHealthyPool(t, 3)
	lu := NewLeastUsedSelector()

	const k = 7
	for i := 0; i < k*3; i++ {
		p, err := lu.Select(pool, nil)
		if err != nil {
			t.Fatalf("Select: %v", err)
		}
		lu.RecordResult(p, true, 10, nil)
	}

	min, max := -1, -1
	for _, p := range pool.GetAllProxies() {
		used := int(p.RequestsStarted())
		if min == -1 || used < min {
			min = used
		}
		if max == -1 || used > max {
			max = used
		}
	}

	if max-min > 1 {
		t.Fatalf("expected requests_started to differ by at most 1 across proxies, got min=%d max=%d", min, max)
	}
}

func TestLeastUsed_TieBreaksByInsertionOrder(t *testing.T) {
	pool := newHealthyPool(t, 2)
	lu := NewLeastUsedSelector()

	first := pool.GetAllProxies()[0]

	p, err := lu.Select(pool, nil)
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if p.ID() != first.ID() {
		t.Fatalf("expected the first-inserted proxy to win an all-zero tie, got a different one")
	}
}
