package auth

import (
	"sync"
	"time"

	"chatrelay/pkg/timeutil"

	"golang.org/x/time/rate"
)

// limiterPool keeps one token bucket per API key (or client ip for
// anonymous callers). Idle buckets are dropped after ttl.
type limiterPool struct {
	rps   rate.Limit
	burst int
	ttl   time.Duration

	mu sync.Mutex
	m  map[string]*limiterEntry

	cleanupOnce sync.Once
	stopOnce    sync.Once
	stopCh      chan struct{}
}

type limiterEntry struct {
	l        *rate.Limiter
	lastSeen time.Time
}

func newLimiterPool(rps float64, burst int, ttl time.Duration) *limiterPool {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &limiterPool{
		rps:    rate.Limit(rps),
		burst:  burst,
		ttl:    ttl,
		m:      make(map[string]*limiterEntry),
		stopCh: make(chan struct{}),
	}
}

// Allow reports whether a request under key may proceed now. A pool
// without a positive rate allows everything.
func (p *limiterPool) Allow(key string) bool {
	if p.rps <= 0 {
		return true
	}
	p.cleanupOnce.Do(func() { go p.cleanupLoop(time.Minute) })

	p.mu.Lock()
	e, ok := p.m[key]
	if !ok {
		e = &limiterEntry{l: rate.NewLimiter(p.rps, p.burst)}
		p.m[key] = e
	}
	e.lastSeen = timeutil.Now()
	p.mu.Unlock()
	return e.l.Allow()
}

func (p *limiterPool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.m)
}

// Shutdown stops the cleanup goroutine.
func (p *limiterPool) Shutdown() {
	p.stopOnce.Do(func() { close(p.stopCh) })
}

func (p *limiterPool) evictIdle() {
	cutoff := timeutil.Now().Add(-p.ttl)
	p.mu.Lock()
	for k, e := range p.m {
		if e.lastSeen.Before(cutoff) {
			delete(p.m, k)
		}
	}
	p.mu.Unlock()
}

func (p *limiterPool) cleanupLoop(period time.Duration) {
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			p.evictIdle()
		case <-p.stopCh:
			return
		}
	}
}
