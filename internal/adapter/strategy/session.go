package strategy

import (
	"sync"
	"time"

	"github.com/pivotrelay/proxyrotator/internal/core/domain"
)

const defaultSessionTTLSeconds = 300

type sessionEntry struct {
	proxyID   string
	expiresAt time.Time
}

// SessionSelector pins a SelectionContext.SessionID to the same proxy for
// the configured TTL, falling back to another strategy the first time a
// session is seen or once its mapping expires or its proxy is no longer
// eligible (spec §4.2 "Session-persistence").
//
// Grounded on olla's internal/adapter/registry sync.Map-backed lookup
// pattern, generalised from endpoint identity to a TTL'd session map; the
// registry itself is a plain mutex-guarded map per the pool's own
// exclusive-lock design (spec §9).
type SessionSelector struct {
	mu       sync.Mutex
	sessions map[string]sessionEntry

	cfg      Config
	fallback Strategy
}

func NewSessionSelector(fallback Strategy) *SessionSelector {
	if fallback == nil {
		fallback = NewRoundRobinSelector()
	}
	return &SessionSelector{
		sessions: make(map[string]sessionEntry),
		fallback: fallback,
	}
}

func (s *SessionSelector) Name() string { return "session" }

func (s *SessionSelector) Select(pool *domain.Pool, selCtx *domain.SelectionContext) (*domain.Proxy, error) {
	if selCtx == nil || selCtx.SessionID == "" {
		return s.fallback.Select(pool, selCtx)
	}

	now := time.Now()
	eligible := candidates(pool, selCtx)
	if len(eligible) == 0 {
		return nil, poolEmptyErr(s.Name(), len(eligible))
	}

	s.mu.Lock()
	entry, ok := s.sessions[selCtx.SessionID]
	s.mu.Unlock()

	if ok && now.Before(entry.expiresAt) {
		for _, p := range eligible {
			if p.ID() == entry.proxyID {
				p.StartRequest()
				s.touch(selCtx.SessionID, entry.proxyID, now)
				return p, nil
			}
		}
		// Pinned proxy no longer eligible (removed, unhealthy, excluded);
		// fall through and re-pin.
	}

	p, err := s.fallback.Select(pool, selCtx)
	if err != nil {
		return nil, err
	}

	s.touch(selCtx.SessionID, p.ID(), now)
	return p, nil
}

func (s *SessionSelector) touch(sessionID, proxyID string, now time.Time) {
	ttl := s.cfg.SessionTTLSeconds
	if ttl <= 0 {
		ttl = defaultSessionTTLSeconds
	}

	s.mu.Lock()
	s.sessions[sessionID] = sessionEntry{
		proxyID:   proxyID,
		expiresAt: now.Add(time.Duration(ttl) * time.Second),
	}
	s.mu.Unlock()
}

// Forget removes any pinning for a proxy, so a rotator can deregister a
// session mapping immediately when the proxy is removed from the pool
// rather than waiting out the TTL.
func (s *SessionSelector) Forget(proxyID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for sessionID, entry := range s.sessions {
		if entry.proxyID == proxyID {
			delete(s.sessions, sessionID)
		}
	}
}

func (s *SessionSelector) RecordResult(proxy *domain.Proxy, success bool, responseTimeMs float64, err error) {
	recordResult(s.cfg, proxy, success, responseTimeMs, err)
}

func (s *SessionSelector) Configure(cfg Config) {
	s.cfg = cfg
	s.fallback.Configure(cfg)
}
