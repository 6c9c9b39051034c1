package strategy

import "github.com/pivotrelay/proxyrotator/internal/core/domain"

// LeastUsedSelector picks the candidate with the fewest requests_started,
// spreading load toward proxies that have been selected least often
// regardless of their outcome history (spec §4.2).
//
// Grounded on olla's balancer.LeastConnectionsSelector (min-scan over a
// routable list), generalised from in-flight connection counts to
// lifetime requests_started.
type LeastUsedSelector struct {
	cfg Config
}

func NewLeastUsedSelector() *LeastUsedSelector {
	return &LeastUsedSelector{}
}

func (l *LeastUsedSelector) Name() string { return "least-used" }

func (l *LeastUsedSelector) Select(pool *domain.Pool, selCtx *domain.SelectionContext) (*domain.Proxy, error) {
	eligible := candidates(pool, selCtx)
	if len(eligible) == 0 {
		return nil, poolEmptyErr(l.Name(), len(eligible))
	}

	best := eligible[0]
	bestUsed := best.RequestsStarted()
	for _, p := range eligible[1:] {
		if used := p.RequestsStarted(); used < bestUsed {
			best, bestUsed = p, used
		}
	}

	best.StartRequest()
	return best, nil
}

func (l *LeastUsedSelector) RecordResult(proxy *domain.Proxy, success bool, responseTimeMs float64, err error) {
	recordResult(l.cfg, proxy, success, responseTimeMs, err)
}

func (l *LeastUsedSelector) Configure(cfg Config) { l.cfg = cfg }
