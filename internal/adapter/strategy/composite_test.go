package strategy

import (
	"testing"

	"github.com/pivotrelay/proxyrotator/internal/core/domain"
)

func tagFilter(tag string) Filter {
	return func(proxies []*domain.Proxy) []*domain.Proxy {
		out := make([]*domain.Proxy, 0, len(proxies))
		for _, p := range proxies {
			if p.HasTags(map[string]struct{}{tag: {}}) {
				out = append(out, p)
			}
		}
		return out
	}
}

func TestComposite_FiltersNarrowBeforeInnerSelects(t *testing.T) {
	pool := domain.NewPool(10)
	fastEU, err := domain.NewProxy(domain.NewProxyOptions{URL: "http://10.0.0.1:8080", Tags: []string{"fast", "eu"}})
	if err != nil {
		t.Fatalf("NewProxy: %v", err)
	}
	fastEU.SetHealthStatus(domain.HealthHealthy)
	slowEU, err := domain.NewProxy(domain.NewProxyOptions{URL: "http://10.0.0.2:8080", Tags: []string{"eu"}})
	if err != nil {
		t.Fatalf("NewProxy: %v", err)
	}
	slowEU.SetHealthStatus(domain.HealthHealthy)
	_ = pool.AddProxy(fastEU)
	_ = pool.AddProxy(slowEU)

	c := NewCompositeSelector("fast-eu", NewRoundRobinSelector(), tagFilter("fast"), tagFilter("eu"))

	for i := 0; i < 5; i++ {
		p, err := c.Select(pool, nil)
		if err != nil {
			t.Fatalf("Select: %v", err)
		}
		if p.ID() != fastEU.ID() {
			t.Fatalf("expected only the fast+eu proxy to survive both filters, got %s", p.URL())
		}
	}
}

func TestComposite_EmptyAfterFilterReturnsPoolEmpty(t *testing.T) {
	pool := domain.NewPool(10)
	p, err := domain.NewProxy(domain.NewProxyOptions{URL: "http://10.0.0.1:8080", Tags: []string{"eu"}})
	if err != nil {
		t.Fatalf("NewProxy: %v", err)
	}
	p.SetHealthStatus(domain.HealthHealthy)
	_ = pool.AddProxy(p)

	c := NewCompositeSelector("", NewRoundRobinSelector(), tagFilter("us"))

	if _, err := c.Select(pool, nil); err == nil {
		t.Fatal("expected ProxyPoolEmptyError when every candidate is filtered out")
	}
}
