// Package ports declares the collaborator contracts the core consumes but
// does not implement: the outbound HTTP client that actually dials through a
// proxy, and the source loader that seeds the pool. Both are external to the
// data plane described by the spec (§6); the core only depends on these
// interfaces.
package ports

import (
	"context"
	"net/http"
	"time"

	"github.com/pivotrelay/proxyrotator/internal/core/domain"
)

// Response is what an outbound HTTP client hands back to the retry executor.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// HTTPClient is the outbound collaborator the retry executor drives
// requests through. proxyDialURL is scheme://[user:pass@]host:port; the core
// never logs it, only passes it through.
type HTTPClient interface {
	Do(ctx context.Context, method, url string, headers http.Header, body []byte, proxyDialURL string, timeout time.Duration) (*Response, error)
}

// SourceLoader produces zero or more proxies per call; the rotator
// subscribes the results via Pool.AddProxy. Periodic fetching/seeding is the
// loader's own concern, not the core's.
type SourceLoader interface {
	Load(ctx context.Context) ([]*domain.Proxy, error)
}
