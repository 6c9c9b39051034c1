package strategy

import "github.com/pivotrelay/proxyrotator/internal/core/domain"

// RandomSelector picks uniformly over the filtered-healthy list.
type RandomSelector struct {
	cfg Config
}

func NewRandomSelector() *RandomSelector {
	return &RandomSelector{}
}

func (r *RandomSelector) Name() string { return "random" }

func (r *RandomSelector) Select(pool *domain.Pool, selCtx *domain.SelectionContext) (*domain.Proxy, error) {
	eligible := candidates(pool, selCtx)
	if len(eligible) == 0 {
		return nil, poolEmptyErr(r.Name(), len(eligible))
	}

	p := eligible[randIntn(len(eligible))]
	p.StartRequest()
	return p, nil
}

func (r *RandomSelector) RecordResult(proxy *domain.Proxy, success bool, responseTimeMs float64, err error) {
	recordResult(r.cfg, proxy, success, responseTimeMs, err)
}

func (r *RandomSelector) Configure(cfg Config) { r.cfg = cfg }
