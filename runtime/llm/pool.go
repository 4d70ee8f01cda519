package llm

import (
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// EndpointPool round-robins across multiple configured endpoints,
// soft-disabling a failing endpoint for a cooldown window governed by
// cenkalti/backoff's exponential curve (spec.md §4.3, SPEC_FULL.md §4.3).
type EndpointPool struct {
	mu        sync.Mutex
	endpoints []string
	next      int
	cooldowns map[string]*backoff.ExponentialBackOff
	disabledUntil map[string]time.Time
}

// NewEndpointPool constructs a pool over endpoints. A single-endpoint pool
// never soft-disables (there is nowhere else to route).
func NewEndpointPool(endpoints []string) *EndpointPool {
	return &EndpointPool{
		endpoints:     endpoints,
		cooldowns:     make(map[string]*backoff.ExponentialBackOff),
		disabledUntil: make(map[string]time.Time),
	}
}

// Next returns the next available endpoint in round-robin order, skipping
// any still within its cooldown window. Returns "" if every endpoint is
// currently cooling down (callers should fall back to the sole configured
// endpoint or return a transient error).
func (p *EndpointPool) Next() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.endpoints) == 0 {
		return ""
	}
	if len(p.endpoints) == 1 {
		return p.endpoints[0]
	}
	now := time.Now()
	for i := 0; i < len(p.endpoints); i++ {
		idx := (p.next + i) % len(p.endpoints)
		ep := p.endpoints[idx]
		if until, ok := p.disabledUntil[ep]; ok && now.Before(until) {
			continue
		}
		p.next = (idx + 1) % len(p.endpoints)
		return ep
	}
	return ""
}

// MarkFailure soft-disables endpoint for its next backoff interval.
func (p *EndpointPool) MarkFailure(endpoint string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	b, ok := p.cooldowns[endpoint]
	if !ok {
		b = backoff.NewExponentialBackOff()
		b.InitialInterval = 2 * time.Second
		b.MaxInterval = 2 * time.Minute
		b.MaxElapsedTime = 0 // never stop producing intervals
		p.cooldowns[endpoint] = b
	}
	p.disabledUntil[endpoint] = time.Now().Add(b.NextBackOff())
}

// MarkSuccess resets endpoint's cooldown curve after a successful call.
func (p *EndpointPool) MarkSuccess(endpoint string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.cooldowns, endpoint)
	delete(p.disabledUntil, endpoint)
}
