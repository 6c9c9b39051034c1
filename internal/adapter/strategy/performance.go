package strategy

import "github.com/pivotrelay/proxyrotator/internal/core/domain"

// defaultExplorationThreshold is the total request count a proxy must
// exceed before its EMA is trusted over a fresh, unexercised one.
const defaultExplorationThreshold = 5

// PerformanceSelector picks the lowest EMA response time among candidates
// that have cleared the exploration threshold. When none have, it defers to
// round-robin so brand-new proxies get exercised before being judged
// (spec §4.2 "Performance-based").
//
// Grounded on olla's balancer.PrioritySelector tier logic (skip entries that
// haven't earned trust yet), generalised from static priority tiers to a
// request-count exploration gate over EMA.
type PerformanceSelector struct {
	cfg      Config
	fallback Strategy
}

func NewPerformanceSelector() *PerformanceSelector {
	return &PerformanceSelector{fallback: NewRoundRobinSelector()}
}

func (perf *PerformanceSelector) Name() string { return "performance" }

func (perf *PerformanceSelector) Select(pool *domain.Pool, selCtx *domain.SelectionContext) (*domain.Proxy, error) {
	eligible := candidates(pool, selCtx)
	if len(eligible) == 0 {
		return nil, poolEmptyErr(perf.Name(), len(eligible))
	}

	threshold := perf.cfg.ExplorationThreshold
	if threshold <= 0 {
		threshold = defaultExplorationThreshold
	}

	var best *domain.Proxy
	var bestEMA float64
	for _, p := range eligible {
		if p.TotalRequests() <= threshold {
			continue
		}
		ema := p.EMAResponseMs()
		if best == nil || ema < bestEMA {
			best, bestEMA = p, ema
		}
	}

	if best == nil {
		return perf.fallback.Select(pool, selCtx)
	}

	best.StartRequest()
	return best, nil
}

func (perf *PerformanceSelector) RecordResult(proxy *domain.Proxy, success bool, responseTimeMs float64, err error) {
	recordResult(perf.cfg, proxy, success, responseTimeMs, err)
}

func (perf *PerformanceSelector) Configure(cfg Config) {
	perf.cfg = cfg
	perf.fallback.Configure(cfg)
}
