package strategy

import "github.com/pivotrelay/proxyrotator/internal/core/domain"

// neutralScore is used for a proxy with no completed requests yet, so a
// fresh proxy competes on equal footing with a proven one rather than
// being scored at zero (spec §4.4 "intelligent failover").
const neutralScore = 0.5

// geoMatchBonus rewards a proxy whose region matches the selection
// context's target region.
const geoMatchBonus = 0.1

// IntelligentFailoverSelector scores every eligible candidate by
// success_rate, inverse EMA response time and a geo-match bonus, and picks
// the highest scorer. It's the alternate-proxy picker the retry executor
// reaches for on failover rather than the primary strategy. The score is
// the mean of success_rate and the normalised inverse EMA, plus
// geoMatchBonus on a region match (see Score).
//
// Grounded on olla's balancer.PrioritySelector (score-then-pick shape),
// generalised from static endpoint priority to a composite runtime score.
type IntelligentFailoverSelector struct {
	cfg Config
}

func NewIntelligentFailoverSelector() *IntelligentFailoverSelector {
	return &IntelligentFailoverSelector{}
}

func (i *IntelligentFailoverSelector) Name() string { return "intelligent-failover" }

func (i *IntelligentFailoverSelector) Select(pool *domain.Pool, selCtx *domain.SelectionContext) (*domain.Proxy, error) {
	eligible := candidates(pool, selCtx)
	if len(eligible) == 0 {
		return nil, poolEmptyErr(i.Name(), len(eligible))
	}

	var best *domain.Proxy
	var bestScore float64
	for _, p := range eligible {
		score := Score(p, selCtx)
		if best == nil || score > bestScore {
			best, bestScore = p, score
		}
	}

	best.StartRequest()
	return best, nil
}

// Score computes a proxy's composite failover score. Proxies with zero
// completed requests get neutralScore rather than being penalised for
// being untested.
func Score(p *domain.Proxy, selCtx *domain.SelectionContext) float64 {
	var score float64
	if p.TotalRequests() == 0 {
		score = neutralScore
	} else {
		score = p.SuccessRate()

		ema := p.EMAResponseMs()
		if ema > 0 {
			// Normalise to (0,1]: fast proxies approach 1, slow ones
			// approach 0, without needing a fleet-wide max to compare
			// against.
			score += 1.0 / (1.0 + ema/1000.0)
			score /= 2
		}
	}

	if selCtx != nil && selCtx.TargetRegion != "" && p.Region() == selCtx.TargetRegion {
		score += geoMatchBonus
	}

	return score
}

func (i *IntelligentFailoverSelector) RecordResult(proxy *domain.Proxy, success bool, responseTimeMs float64, err error) {
	recordResult(i.cfg, proxy, success, responseTimeMs, err)
}

func (i *IntelligentFailoverSelector) Configure(cfg Config) { i.cfg = cfg }
