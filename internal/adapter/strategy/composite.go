package strategy

import "github.com/pivotrelay/proxyrotator/internal/core/domain"

// Filter narrows a candidate list before the inner strategy picks from it.
// Filters run in order; a filter returning an empty slice short-circuits the
// remaining filters.
type Filter func(proxies []*domain.Proxy) []*domain.Proxy

// CompositeSelector chains zero or more Filters and delegates the final
// pick to a single inner Strategy (spec §4.2 "Composite": "filters narrow
// the candidate set, one strategy breaks the tie").
type CompositeSelector struct {
	name    string
	filters []Filter
	inner   Strategy
	cfg     Config
}

func NewCompositeSelector(name string, inner Strategy, filters ...Filter) *CompositeSelector {
	if inner == nil {
		inner = NewRoundRobinSelector()
	}
	return &CompositeSelector{name: name, inner: inner, filters: filters}
}

func (c *CompositeSelector) Name() string {
	if c.name != "" {
		return c.name
	}
	return "composite"
}

func (c *CompositeSelector) Select(pool *domain.Pool, selCtx *domain.SelectionContext) (*domain.Proxy, error) {
	eligible := candidates(pool, selCtx)
	for _, filter := range c.filters {
		eligible = filter(eligible)
		if len(eligible) == 0 {
			return nil, poolEmptyErr(c.Name(), 0)
		}
	}

	filtered := domain.NewPool(len(eligible))
	for _, p := range eligible {
		_ = filtered.AddProxy(p)
	}
	return c.inner.Select(filtered, nil)
}

func (c *CompositeSelector) RecordResult(proxy *domain.Proxy, success bool, responseTimeMs float64, err error) {
	recordResult(c.cfg, proxy, success, responseTimeMs, err)
}

func (c *CompositeSelector) Configure(cfg Config) {
	c.cfg = cfg
	c.inner.Configure(cfg)
}
