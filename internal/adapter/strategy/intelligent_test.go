package strategy

import (
	"testing"

	"github.com/pivotrelay/proxyrotator/internal/core/domain"
)

func TestIntelligentFailover_NewProxyGetsNeutralScore(t *testing.T) {
	fresh, err := domain.NewProxy(domain.NewProxyOptions{URL: "http://10.0.0.1:8080"})
	if err != nil {
		t.Fatalf("NewProxy: %v", err)
	}
	if got := Score(fresh, nil); got != neutralScore {
		t.Fatalf("expected neutral score %v for an untested proxy, got %v", neutralScore, got)
	}
}

func TestIntelligentFailover_RegionMatchAddsBonus(t *testing.T) {
	p, err := domain.NewProxy(domain.NewProxyOptions{URL: "http://10.0.0.1:8080", Region: "eu-west"})
	if err != nil {
		t.Fatalf("NewProxy: %v", err)
	}
	p.RecordSuccess(10)

	without := Score(p, nil)

	ctx := domain.NewSelectionContext()
	ctx.TargetRegion = "eu-west"
	with := Score(p, ctx)

	if with-without < geoMatchBonus-1e-9 {
		t.Fatalf("expected the region match to add ~%v to the score, got delta %v", geoMatchBonus, with-without)
	}
}

func TestIntelligentFailover_PicksHighestScore(t *testing.T) {
	pool := domain.NewPool(10)
	strong := mustWeightedProxy(t, "http://10.0.0.1:8080", 10, 10)
	weak := mustWeightedProxy(t, "http://10.0.0.2:8080", 10, 1)
	_ = pool.AddProxy(strong)
	_ = pool.AddProxy(weak)

	sel := NewIntelligentFailoverSelector()
	p, err := sel.Select(pool, nil)
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if p.ID() != strong.ID() {
		t.Fatalf("expected the higher success-rate proxy to win, got %s", p.URL())
	}
}
