package retry

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/pivotrelay/proxyrotator/internal/adapter/breaker"
	"github.com/pivotrelay/proxyrotator/internal/adapter/strategy"
	"github.com/pivotrelay/proxyrotator/internal/core/domain"
	"github.com/pivotrelay/proxyrotator/internal/core/ports"
)

type fakeClient struct {
	mu    sync.Mutex
	calls int
	// script returns (status, err) for each successive call; the last
	// entry repeats once exhausted.
	script []fakeCall
}

type fakeCall struct {
	status int
	err    error
}

func (f *fakeClient) Do(ctx context.Context, method, url string, headers http.Header, body []byte, proxyDialURL string, timeout time.Duration) (*ports.Response, error) {
	f.mu.Lock()
	idx := f.calls
	f.calls++
	f.mu.Unlock()

	call := f.script[len(f.script)-1]
	if idx < len(f.script) {
		call = f.script[idx]
	}
	if call.err != nil {
		return nil, call.err
	}
	return &ports.Response{StatusCode: call.status}, nil
}

type fakeBreakers struct {
	mu       sync.Mutex
	breakers map[string]*breaker.CircuitBreaker
}

func newFakeBreakers() *fakeBreakers {
	return &fakeBreakers{breakers: make(map[string]*breaker.CircuitBreaker)}
}

func (f *fakeBreakers) Breaker(proxyID string) *breaker.CircuitBreaker {
	f.mu.Lock()
	defer f.mu.Unlock()
	cb, ok := f.breakers[proxyID]
	if !ok {
		cb = breaker.NewCircuitBreaker(breaker.Config{})
		f.breakers[proxyID] = cb
	}
	return cb
}

func newTestPool(t *testing.T, n int) *domain.Pool {
	t.Helper()
	pool := domain.NewPool(10)
	for i := 0; i < n; i++ {
		p, err := domain.NewProxy(domain.NewProxyOptions{URL: "http://127.0.0.1:800" + string(rune('0'+i))})
		if err != nil {
			t.Fatalf("NewProxy: %v", err)
		}
		if err := pool.AddProxy(p); err != nil {
			t.Fatalf("AddProxy: %v", err)
		}
	}
	return pool
}

func TestExecutor_SucceedsFirstTry(t *testing.T) {
	pool := newTestPool(t, 2)
	client := &fakeClient{script: []fakeCall{{status: 200}}}
	exec := NewExecutor(pool, strategy.NewRoundRobinSelector(), newFakeBreakers(), client)

	resp, err := exec.Execute(context.Background(), "GET", "http://example.com", nil, nil, DefaultPolicy(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if client.calls != 1 {
		t.Fatalf("expected exactly 1 call, got %d", client.calls)
	}
}

func TestExecutor_RetriesOnTransportErrorThenSucceeds(t *testing.T) {
	pool := newTestPool(t, 2)
	client := &fakeClient{script: []fakeCall{
		{err: &domain.ProxyConnectionError{ProxyURL: "x", ErrorType: "refused"}},
		{status: 200},
	}}
	exec := NewExecutor(pool, strategy.NewRoundRobinSelector(), newFakeBreakers(), client)

	policy := DefaultPolicy()
	policy.BaseDelay = time.Millisecond
	resp, err := exec.Execute(context.Background(), "GET", "http://example.com", nil, nil, policy, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != 200 {
		t.Fatalf("expected eventual 200, got %d", resp.StatusCode)
	}
	if client.calls != 2 {
		t.Fatalf("expected 2 calls, got %d", client.calls)
	}
}

func TestExecutor_NonIdempotentNotRetried(t *testing.T) {
	pool := newTestPool(t, 2)
	client := &fakeClient{script: []fakeCall{
		{err: &domain.ProxyConnectionError{ProxyURL: "x", ErrorType: "refused"}},
		{status: 200},
	}}
	exec := NewExecutor(pool, strategy.NewRoundRobinSelector(), newFakeBreakers(), client)

	policy := DefaultPolicy()
	_, err := exec.Execute(context.Background(), "POST", "http://example.com", nil, nil, policy, nil)
	if err == nil {
		t.Fatal("expected the non-idempotent POST to fail without retry")
	}
	if client.calls != 1 {
		t.Fatalf("expected exactly 1 call (no retry), got %d", client.calls)
	}
}

func TestExecutor_ExhaustsAttempts(t *testing.T) {
	pool := newTestPool(t, 2)
	client := &fakeClient{script: []fakeCall{
		{err: &domain.ProxyConnectionError{ProxyURL: "x", ErrorType: "refused"}},
	}}
	exec := NewExecutor(pool, strategy.NewRoundRobinSelector(), newFakeBreakers(), client)

	policy := DefaultPolicy()
	policy.MaxAttempts = 2
	policy.BaseDelay = time.Millisecond
	_, err := exec.Execute(context.Background(), "GET", "http://example.com", nil, nil, policy, nil)
	if err == nil {
		t.Fatal("expected RetryExhaustedError")
	}
	if _, ok := err.(*domain.RetryExhaustedError); !ok {
		t.Fatalf("expected *domain.RetryExhaustedError, got %T", err)
	}
	if client.calls != 2 {
		t.Fatalf("expected 2 attempts, got %d", client.calls)
	}
}

func TestExecutor_RetriableStatusCodeRetries(t *testing.T) {
	pool := newTestPool(t, 2)
	client := &fakeClient{script: []fakeCall{{status: 503}, {status: 200}}}
	exec := NewExecutor(pool, strategy.NewRoundRobinSelector(), newFakeBreakers(), client)

	policy := DefaultPolicy()
	policy.BaseDelay = time.Millisecond
	resp, err := exec.Execute(context.Background(), "GET", "http://example.com", nil, nil, policy, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != 200 {
		t.Fatalf("expected eventual 200, got %d", resp.StatusCode)
	}
}
