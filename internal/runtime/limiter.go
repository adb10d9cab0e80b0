package runtime

import (
	"context"
	"sync"
	"sync/atomic"
)

// Limits bounds how many conversation turns run at once.
type Limits struct {
	GlobalMax int
	PerTenant int
}

// tenantSlots is a tenant's semaphore. refs counts holders and waiters so
// the entry is dropped once the tenant goes idle.
type tenantSlots struct {
	sem  chan struct{}
	refs int
}

// Limiter controls how many turns can execute simultaneously. It uses
// channel-based counting semaphores at two levels: global and per-tenant.
type Limiter struct {
	global      chan struct{}
	perTenant   map[string]*tenantSlots
	mu          sync.Mutex
	limits      Limits
	activeCount atomic.Int64
}

// NewLimiter creates a limiter with the given limits.
func NewLimiter(limits Limits) *Limiter {
	if limits.GlobalMax <= 0 {
		limits.GlobalMax = 64
	}
	if limits.PerTenant <= 0 {
		limits.PerTenant = 8
	}
	return &Limiter{
		global:    make(chan struct{}, limits.GlobalMax),
		perTenant: make(map[string]*tenantSlots),
		limits:    limits,
	}
}

// Acquire blocks until both a global and a tenant slot are available, or
// returns an error if the context is cancelled.
func (l *Limiter) Acquire(ctx context.Context, tenantID string) error {
	select {
	case l.global <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}

	ts := l.tenantSlots(tenantID)
	select {
	case ts.sem <- struct{}{}:
		l.activeCount.Add(1)
		return nil
	case <-ctx.Done():
		l.unref(tenantID)
		<-l.global
		return ctx.Err()
	}
}

// Release returns both slots taken by Acquire.
func (l *Limiter) Release(tenantID string) {
	l.activeCount.Add(-1)

	l.mu.Lock()
	if ts, ok := l.perTenant[tenantID]; ok {
		select {
		case <-ts.sem:
		default:
		}
	}
	l.mu.Unlock()
	l.unref(tenantID)

	select {
	case <-l.global:
	default:
	}
}

// LimiterStats reports current usage.
type LimiterStats struct {
	ActiveTurns int `json:"active_turns"`
	GlobalMax   int `json:"global_max"`
	PerTenant   int `json:"per_tenant"`
}

func (l *Limiter) Stats() LimiterStats {
	return LimiterStats{
		ActiveTurns: int(l.activeCount.Load()),
		GlobalMax:   l.limits.GlobalMax,
		PerTenant:   l.limits.PerTenant,
	}
}

func (l *Limiter) tenantSlots(tenantID string) *tenantSlots {
	l.mu.Lock()
	defer l.mu.Unlock()
	ts, ok := l.perTenant[tenantID]
	if !ok {
		ts = &tenantSlots{sem: make(chan struct{}, l.limits.PerTenant)}
		l.perTenant[tenantID] = ts
	}
	ts.refs++
	return ts
}

func (l *Limiter) unref(tenantID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if ts, ok := l.perTenant[tenantID]; ok {
		ts.refs--
		if ts.refs <= 0 {
			delete(l.perTenant, tenantID)
		}
	}
}

func (l *Limiter) tenants() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.perTenant)
}
