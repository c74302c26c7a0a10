// Package scan hands resource payloads to the external malware scanner
// without blocking the calling connection. The scanner itself is an opaque
// collaborator; this package only manages the asynchronous hand-off and the
// delivery-time liveness check.
package scan

import (
	"context"
	"sync"

	"github.com/emberbrowser/sentinel/internal/logger"
	"github.com/emberbrowser/sentinel/internal/metrics"
	"github.com/emberbrowser/sentinel/internal/ratelimit"
)

// Request identifies one payload to scan. TargetID names the originating
// page or download so late results can be discarded when it goes away.
type Request struct {
	TargetID string
	URL      string
	Filename string
	FileHash string
	MimeType string
	FileSize uint64
}

// Verdict is the scanner's answer.
type Verdict struct {
	Clean    bool
	RuleName string
	Severity string
	Detail   string
}

// Scanner is the external malware-scanning collaborator.
type Scanner interface {
	Scan(ctx context.Context, req Request) (Verdict, error)
}

// Result pairs a request with its verdict.
type Result struct {
	Request Request
	Verdict Verdict
	Err     error
}

// Dispatcher runs scans on background goroutines bounded by the limiter's
// concurrent-scan slots. Scans run to completion even when their target
// navigates away; the liveness check happens at delivery time so the audit
// trail stays consistent and no scanning work is wasted mid-flight.
type Dispatcher struct {
	scanner Scanner
	limiter *ratelimit.Limiter
	alive   func(targetID string) bool
	wg      sync.WaitGroup
}

// NewDispatcher builds a dispatcher. alive reports whether a target still
// exists; a nil alive treats every target as live.
func NewDispatcher(scanner Scanner, limiter *ratelimit.Limiter, alive func(string) bool) *Dispatcher {
	if alive == nil {
		alive = func(string) bool { return true }
	}
	return &Dispatcher{scanner: scanner, limiter: limiter, alive: alive}
}

// Submit queues one scan and returns immediately. onResult runs on the
// worker goroutine once the scan completes, unless the target is gone by
// then, in which case the result is discarded.
func (d *Dispatcher) Submit(req Request, onResult func(Result)) {
	d.wg.Add(1)
	metrics.IncScanStarted()

	go func() {
		defer d.wg.Done()

		// The scan is deliberately not tied to the request's lifetime:
		// navigation must not cancel it.
		ctx := context.Background()
		if err := d.limiter.AcquireScanSlot(ctx); err != nil {
			onResult(Result{Request: req, Err: err})
			return
		}
		defer d.limiter.ReleaseScanSlot()

		verdict, err := d.scanner.Scan(ctx, req)

		if !d.alive(req.TargetID) {
			metrics.IncScanDiscarded()
			logger.WithFields(map[string]interface{}{
				"target": req.TargetID,
				"url":    req.URL,
			}).Debug("discarding scan result for departed target")
			return
		}
		onResult(Result{Request: req, Verdict: verdict, Err: err})
	}()
}

// Wait blocks until every submitted scan has completed. Tests and shutdown.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}
