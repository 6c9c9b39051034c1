package strategy

import (
	"sync/atomic"

	"github.com/pivotrelay/proxyrotator/internal/core/domain"
)

// RoundRobinSelector cycles through the filtered-healthy list by a monotonic
// counter modulo its length. Deterministic given the same pool snapshot:
// given N healthy proxies, N consecutive selections yield N distinct
// proxies and the pattern repeats after N+k selections (spec §4.2, §8.1).
//
// Grounded on olla's balancer.RoundRobinSelector (atomic.AddUint64 counter
// mod len(routable)).
type RoundRobinSelector struct {
	counter uint64
	cfg     Config
}

func NewRoundRobinSelector() *RoundRobinSelector {
	return &RoundRobinSelector{}
}

func (r *RoundRobinSelector) Name() string { return "round-robin" }

func (r *RoundRobinSelector) Select(pool *domain.Pool, selCtx *domain.SelectionContext) (*domain.Proxy, error) {
	eligible := candidates(pool, selCtx)
	if len(eligible) == 0 {
		return nil, poolEmptyErr(r.Name(), len(eligible))
	}

	idx := atomic.AddUint64(&r.counter, 1) - 1
	p := eligible[idx%uint64(len(eligible))]
	p.StartRequest()
	return p, nil
}

func (r *RoundRobinSelector) RecordResult(proxy *domain.Proxy, success bool, responseTimeMs float64, err error) {
	recordResult(r.cfg, proxy, success, responseTimeMs, err)
}

func (r *RoundRobinSelector) Configure(cfg Config) { r.cfg = cfg }
