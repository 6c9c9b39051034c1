package strategy

import "github.com/pivotrelay/proxyrotator/internal/core/domain"

// GeoSelector narrows candidates to those matching SelectionContext's target
// country, falling back to region, then (if GeoFallbackEnabled) to the full
// eligible set, delegating the final pick to an inner strategy
// (spec §4.2 "Geo-targeted": "country match preferred over region match").
type GeoSelector struct {
	cfg   Config
	inner Strategy
}

func NewGeoSelector(inner Strategy) *GeoSelector {
	if inner == nil {
		inner = NewRoundRobinSelector()
	}
	return &GeoSelector{inner: inner}
}

func (g *GeoSelector) Name() string { return "geo" }

func (g *GeoSelector) Select(pool *domain.Pool, selCtx *domain.SelectionContext) (*domain.Proxy, error) {
	eligible := candidates(pool, selCtx)
	if len(eligible) == 0 {
		return nil, poolEmptyErr(g.Name(), len(eligible))
	}

	if selCtx == nil || (selCtx.TargetCountry == "" && selCtx.TargetRegion == "") {
		return g.selectFrom(eligible)
	}

	if selCtx.TargetCountry != "" {
		if matches := filterByCountry(eligible, selCtx.TargetCountry); len(matches) > 0 {
			return g.selectFrom(matches)
		}
	}

	if selCtx.TargetRegion != "" {
		if matches := filterByRegion(eligible, selCtx.TargetRegion); len(matches) > 0 {
			return g.selectFrom(matches)
		}
	}

	fallback := g.cfg.GeoFallbackEnabled
	if g.cfg.Fallback == nil && !fallback {
		// Default behaviour: without an explicit Fallback strategy or
		// opt-in, unmatched geo is still a pool-empty condition so callers
		// notice their geo filter isn't satisfiable rather than silently
		// being served a wrong-region proxy.
		return nil, &domain.ProxyPoolEmptyError{
			Strategy: g.Name(),
			Reason:   "no proxy matched the requested country or region and geo fallback is disabled",
		}
	}

	if g.cfg.Fallback != nil {
		return g.cfg.Fallback.Select(pool, selCtx)
	}

	return g.selectFrom(eligible)
}

func (g *GeoSelector) selectFrom(pool []*domain.Proxy) (*domain.Proxy, error) {
	synthetic := domain.NewPool(len(pool))
	for _, p := range pool {
		_ = synthetic.AddProxy(p)
	}
	return g.inner.Select(synthetic, nil)
}

func filterByCountry(proxies []*domain.Proxy, country string) []*domain.Proxy {
	out := make([]*domain.Proxy, 0, len(proxies))
	for _, p := range proxies {
		if p.CountryCode() == country {
			out = append(out, p)
		}
	}
	return out
}

func filterByRegion(proxies []*domain.Proxy, region string) []*domain.Proxy {
	out := make([]*domain.Proxy, 0, len(proxies))
	for _, p := range proxies {
		if p.Region() == region {
			out = append(out, p)
		}
	}
	return out
}

func (g *GeoSelector) RecordResult(proxy *domain.Proxy, success bool, responseTimeMs float64, err error) {
	recordResult(g.cfg, proxy, success, responseTimeMs, err)
}

func (g *GeoSelector) Configure(cfg Config) {
	g.cfg = cfg
	g.inner.Configure(cfg)
	if cfg.Fallback != nil {
		cfg.Fallback.Configure(cfg)
	}
}
