package strategy

import "github.com/pivotrelay/proxyrotator/internal/core/domain"

// minWeight is the floor applied to success_rate so a proxy that has failed
// every request so far isn't starved to zero chance forever (spec §4.2).
const minWeight = 0.1

// WeightedSelector draws a candidate with probability proportional to
// max(success_rate, minWeight).
//
// Grounded on olla's balancer.PrioritySelector.weightedSelect (cumulative
// weight walk over a uniform draw), generalised from endpoint traffic-weight
// to per-proxy success rate.
type WeightedSelector struct {
	cfg Config
}

func NewWeightedSelector() *WeightedSelector {
	return &WeightedSelector{}
}

func (w *WeightedSelector) Name() string { return "weighted" }

func (w *WeightedSelector) Select(pool *domain.Pool, selCtx *domain.SelectionContext) (*domain.Proxy, error) {
	eligible := candidates(pool, selCtx)
	if len(eligible) == 0 {
		return nil, poolEmptyErr(w.Name(), len(eligible))
	}

	weights := make([]float64, len(eligible))
	var total float64
	for i, p := range eligible {
		weight := p.SuccessRate()
		if weight < minWeight {
			weight = minWeight
		}
		weights[i] = weight
		total += weight
	}

	draw := randFloat64() * total
	cumulative := 0.0
	for i, weight := range weights {
		cumulative += weight
		if draw <= cumulative {
			eligible[i].StartRequest()
			return eligible[i], nil
		}
	}

	// Floating point rounding can leave draw just past the last cumulative
	// bucket; fall back to the last candidate rather than erroring.
	last := eligible[len(eligible)-1]
	last.StartRequest()
	return last, nil
}

func (w *WeightedSelector) RecordResult(proxy *domain.Proxy, success bool, responseTimeMs float64, err error) {
	recordResult(w.cfg, proxy, success, responseTimeMs, err)
}

func (w *WeightedSelector) Configure(cfg Config) { w.cfg = cfg }
