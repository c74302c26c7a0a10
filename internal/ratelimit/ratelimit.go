// Package ratelimit is the admission-control boundary between the engine and
// its untrusted, high-frequency IPC callers. Each endpoint class gets its
// own token bucket; a separate semaphore bounds concurrently in-flight scans.
package ratelimit

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/emberbrowser/sentinel/internal/config"
	"github.com/emberbrowser/sentinel/internal/logger"
	"github.com/emberbrowser/sentinel/internal/metrics"
)

// Class names an endpoint class with its own token bucket.
type Class string

const (
	ClassScan   Class = "scan"
	ClassPolicy Class = "policy"
)

// ErrRejected reports that admission was refused outright (fail-closed).
var ErrRejected = errors.New("rate limit exceeded")

// ErrScanSlots reports that no concurrent scan slot is available.
var ErrScanSlots = errors.New("concurrent scan limit reached")

// Decision is the outcome of an admission check.
type Decision int

const (
	// Admitted: within the limit.
	Admitted Decision = iota
	// AdmittedDegraded: over the limit but fail_closed is false, so the
	// request proceeds; the near-limit event is still counted and logged.
	AdmittedDegraded
	// Rejected: over the limit with fail_closed set.
	Rejected
)

// Limiter applies per-class token buckets and the scan-slot semaphore.
// Safe for concurrent use.
type Limiter struct {
	cfg   config.RateLimitConfig
	now   func() time.Time
	slots *semaphore.Weighted

	mu      sync.Mutex
	buckets map[Class]*rate.Limiter

	rejected map[Class]uint64
	nearMiss map[Class]uint64
}

// New builds a limiter from configuration.
func New(cfg config.RateLimitConfig) *Limiter {
	l := &Limiter{
		cfg:      cfg,
		now:      time.Now,
		slots:    semaphore.NewWeighted(int64(cfg.MaxConcurrentScans)),
		buckets:  make(map[Class]*rate.Limiter),
		rejected: make(map[Class]uint64),
		nearMiss: make(map[Class]uint64),
	}
	l.buckets[ClassScan] = rate.NewLimiter(rate.Limit(cfg.ScanRequestsPerSecond), cfg.ScanBurstCapacity)
	l.buckets[ClassPolicy] = rate.NewLimiter(rate.Limit(cfg.PolicyQueriesPerSecond), cfg.PolicyBurstCapacity)
	return l
}

// Admit checks admission for one request in the given class.
func (l *Limiter) Admit(class Class) Decision {
	if !l.cfg.Enabled {
		return Admitted
	}

	l.mu.Lock()
	bucket, ok := l.buckets[class]
	l.mu.Unlock()
	if !ok {
		// Unknown classes fall back to the stricter scan bucket.
		bucket = l.buckets[ClassScan]
	}

	if bucket.AllowN(l.now(), 1) {
		return Admitted
	}

	metrics.IncRateLimitRejected(string(class))
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.cfg.FailClosed {
		l.rejected[class]++
		return Rejected
	}
	l.nearMiss[class]++
	logger.WithFields(map[string]interface{}{
		"class": string(class),
	}).Warn("rate limit exceeded, admitting anyway (fail-open)")
	return AdmittedDegraded
}

// AcquireScanSlot reserves a concurrent-scan slot, blocking until one frees
// up or the context ends. Callers must ReleaseScanSlot when the scan is done.
func (l *Limiter) AcquireScanSlot(ctx context.Context) error {
	if !l.cfg.Enabled {
		return nil
	}
	if err := l.slots.Acquire(ctx, 1); err != nil {
		return err
	}
	return nil
}

// TryAcquireScanSlot reserves a slot without blocking.
func (l *Limiter) TryAcquireScanSlot() error {
	if !l.cfg.Enabled {
		return nil
	}
	if !l.slots.TryAcquire(1) {
		l.mu.Lock()
		l.rejected[ClassScan]++
		l.mu.Unlock()
		return ErrScanSlots
	}
	return nil
}

// ReleaseScanSlot returns a slot reserved by AcquireScanSlot.
func (l *Limiter) ReleaseScanSlot() {
	if !l.cfg.Enabled {
		return
	}
	l.slots.Release(1)
}

// Telemetry is a snapshot of rejection counters.
type Telemetry struct {
	Rejected  map[Class]uint64 `json:"rejected"`
	NearLimit map[Class]uint64 `json:"nearLimit"`
}

// Stats returns the rejection counters.
func (l *Limiter) Stats() Telemetry {
	l.mu.Lock()
	defer l.mu.Unlock()

	t := Telemetry{Rejected: make(map[Class]uint64), NearLimit: make(map[Class]uint64)}
	for c, n := range l.rejected {
		t.Rejected[c] = n
	}
	for c, n := range l.nearMiss {
		t.NearLimit[c] = n
	}
	return t
}

// SetClock overrides the limiter's time source. Tests only.
func (l *Limiter) SetClock(now func() time.Time) {
	l.now = now
}
