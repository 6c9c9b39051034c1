// Package strategy implements the pluggable proxy selection policies (spec
// §4.2): round-robin, random, weighted, least-used, performance-based,
// session-persistence, geo-targeted and composite, plus the process-wide
// registry that lets callers register their own.
//
// Grounded on github.com/thushan/olla's internal/adapter/balancer package
// (RoundRobinSelector/PrioritySelector/LeastConnectionsSelector + Factory):
// same shape (Name/Select, a registry keyed by name), generalised from
// endpoint load-balancing to proxy rotation with the context-aware
// filtering and weighting the spec asks for.
package strategy

import (
	"math/rand"

	"github.com/pivotrelay/proxyrotator/internal/core/domain"
)

// Strategy is the contract every selection policy implements.
type Strategy interface {
	// Name identifies the strategy for the registry and logs.
	Name() string

	// Select returns a healthy, context-eligible proxy from pool, or
	// ProxyPoolEmptyError if none qualify. On success it calls
	// proxy.StartRequest() before returning.
	Select(pool *domain.Pool, selCtx *domain.SelectionContext) (*domain.Proxy, error)

	// RecordResult is called exactly once per selection once the attempt
	// finishes; it delegates to proxy.CompleteRequest so every EMA update
	// goes through one code path.
	RecordResult(proxy *domain.Proxy, success bool, responseTimeMs float64, err error)

	// Configure injects strategy-level settings, notably EMAAlpha.
	Configure(cfg Config)
}

// Config carries the tunables a strategy may care about. Not every field
// applies to every strategy; each implementation only reads what it needs.
type Config struct {
	// EMAAlpha, if > 0, is copied into every proxy this strategy touches
	// from this point on, so a strategy swap can retune smoothing without
	// rewriting history (spec §4.2).
	EMAAlpha float64

	// ExplorationThreshold is the total_requests count a proxy must exceed
	// before the performance-based strategy trusts its EMA over round-robin.
	ExplorationThreshold int64

	// SessionTTLSeconds is how long a session-persistence mapping lives.
	SessionTTLSeconds int64

	// GeoFallbackEnabled lets the geo-targeted strategy defer to Fallback
	// over the full healthy set when no proxy matches the geo filter.
	GeoFallbackEnabled bool

	// Fallback is the strategy session-persistence and geo-targeted use
	// when they can't satisfy their own criterion. Defaults to
	// round-robin when nil.
	Fallback Strategy
}

func candidates(pool *domain.Pool, selCtx *domain.SelectionContext) []*domain.Proxy {
	healthy := pool.GetHealthyProxies()
	if selCtx == nil {
		return healthy
	}

	out := make([]*domain.Proxy, 0, len(healthy))
	for _, p := range healthy {
		if selCtx.HasFailed(p.ID()) {
			continue
		}
		if !p.HasTags(selCtx.RequiredTags) {
			continue
		}
		out = append(out, p)
	}
	return out
}

func applyEMAAlpha(cfg Config, p *domain.Proxy) {
	if cfg.EMAAlpha > 0 {
		p.SetEMAAlpha(cfg.EMAAlpha)
	}
}

// recordResult is the shared RecordResult body every strategy delegates to.
func recordResult(cfg Config, proxy *domain.Proxy, success bool, responseTimeMs float64, err error) {
	applyEMAAlpha(cfg, proxy)
	proxy.CompleteRequest(success, responseTimeMs, err)
}

func poolEmptyErr(name string, candidateCount int) *domain.ProxyPoolEmptyError {
	reason := "pool has no healthy proxies"
	if candidateCount == 0 {
		reason = "every healthy proxy was excluded by context (failed set, tags or geo filter)"
	}
	return &domain.ProxyPoolEmptyError{Strategy: name, Reason: reason}
}

// randFloat64 is split out so tests can substitute a deterministic source if
// ever needed; production code always uses the package-level generator.
var randFloat64 = rand.Float64
var randIntn = rand.Intn
