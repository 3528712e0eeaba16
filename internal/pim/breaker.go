package pim

import (
	"context"
	"net/url"
	"slices"
	"strings"
	"sync"
	"time"
)

// Circuit states reported through telemetry
const (
	CircuitClosed = "closed"
	CircuitOpen   = "open"
)

const restPrefix = "/api/rest/v1/"

// ResourceOf returns the PIM resource a request targets: the first path
// segment below the REST prefix ("products", "product-models",
// "asset-families"...). Other paths are returned whole.
func ResourceOf(target string) string {
	p := target
	if u, err := url.Parse(target); err == nil {
		p = u.Path
	}
	rest, ok := strings.CutPrefix(p, restPrefix)
	if !ok {
		return p
	}
	resource, _, _ := strings.Cut(rest, "/")
	return resource
}

// circuit is the failure history of one resource.
type circuit struct {
	failures  []time.Time
	openUntil time.Time
}

// Breaker fails requests fast per PIM resource once threshold requests to it
// exhausted their retries within window. A resource stays open for cooldown;
// other resources are unaffected. A nil or zero-threshold Breaker never opens.
type Breaker struct {
	mu        sync.Mutex
	threshold int
	window    time.Duration
	cooldown  time.Duration
	circuits  map[string]*circuit
	now       func() time.Time
}

// NewBreaker creates a breaker from the PIM failure settings.
func NewBreaker(threshold int, window, cooldown time.Duration) *Breaker {
	return &Breaker{
		threshold: threshold,
		window:    window,
		cooldown:  cooldown,
		circuits:  make(map[string]*circuit),
		now:       time.Now,
	}
}

// Open reports whether requests to resource must fail fast.
func (b *Breaker) Open(resource string) bool {
	return b.State(resource) == CircuitOpen
}

// State returns the circuit state of resource.
func (b *Breaker) State(resource string) string {
	if b == nil {
		return CircuitClosed
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	c, ok := b.circuits[resource]
	if ok && b.now().Before(c.openUntil) {
		return CircuitOpen
	}
	return CircuitClosed
}

// Failure records an exhausted request to resource. The transition to open
// is emitted as a telemetry measure.
func (b *Breaker) Failure(ctx context.Context, resource string) {
	if b == nil || b.threshold <= 0 {
		return
	}
	b.mu.Lock()
	now := b.now()
	c := b.circuits[resource]
	if c == nil {
		c = &circuit{}
		b.circuits[resource] = c
	}
	cutoff := now.Add(-b.window)
	c.failures = slices.DeleteFunc(c.failures, func(t time.Time) bool { return !t.After(cutoff) })
	c.failures = append(c.failures, now)

	opened := false
	if len(c.failures) >= b.threshold && !now.Before(c.openUntil) {
		c.openUntil = now.Add(b.cooldown)
		opened = true
	}
	failures := len(c.failures)
	b.mu.Unlock()

	if opened {
		EmitCircuitState(ctx, resource, CircuitOpen, failures)
	}
}

// Success forgets the failure history of resource. A circuit that had
// opened reports its return to closed.
func (b *Breaker) Success(ctx context.Context, resource string) {
	if b == nil {
		return
	}
	b.mu.Lock()
	c, ok := b.circuits[resource]
	delete(b.circuits, resource)
	b.mu.Unlock()

	if ok && !c.openUntil.IsZero() {
		EmitCircuitState(ctx, resource, CircuitClosed, 0)
	}
}
