// Package notify pushes threat alerts to external channels via shoutrrr.
package notify

import (
	"fmt"
	"sync"

	"github.com/containrrr/shoutrrr"
	"github.com/containrrr/shoutrrr/pkg/router"
	"github.com/containrrr/shoutrrr/pkg/types"

	"github.com/emberbrowser/sentinel/internal/config"
	"github.com/emberbrowser/sentinel/internal/logger"
	"github.com/emberbrowser/sentinel/internal/models"
)

// Notifier delivers threat notifications on a background goroutine so the
// decision path never waits on a network hop. The queue is bounded by
// max_queue_size; alerts beyond that are dropped with a warning.
type Notifier struct {
	cfg    config.NotificationConfig
	sender *router.ServiceRouter

	mu      sync.Mutex
	queue   chan string
	done    chan struct{}
	closed  bool
	dropped uint64
}

// New builds a notifier from config. A disabled config or an empty URL list
// yields a notifier whose methods are no-ops.
func New(cfg config.NotificationConfig) *Notifier {
	n := &Notifier{cfg: cfg}
	if !cfg.Enabled || len(cfg.ServiceURLs) == 0 {
		return n
	}

	sender, err := shoutrrr.CreateSender(cfg.ServiceURLs...)
	if err != nil {
		logger.WithFields(map[string]interface{}{"error": err}).Warn("notification URLs invalid, notifications disabled")
		return n
	}
	n.sender = sender
	n.queue = make(chan string, cfg.MaxQueueSize)
	n.done = make(chan struct{})
	go n.run()
	return n
}

// ThreatDetected enqueues an alert for a recorded threat.
func (n *Notifier) ThreatDetected(rec *models.ThreatRecord) {
	if n.sender == nil {
		return
	}
	msg := fmt.Sprintf("Sentinel: %s severity threat %q at %s", rec.Severity, rec.RuleName, rec.URL)

	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return
	}
	select {
	case n.queue <- msg:
	default:
		n.dropped++
		logger.Log().Warn("notification queue full, dropping alert")
	}
}

// Dropped reports how many alerts were discarded due to a full queue.
func (n *Notifier) Dropped() uint64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.dropped
}

// Close drains the queue and stops the worker. Alerts arriving after Close
// are dropped rather than panicking on the closed channel.
func (n *Notifier) Close() {
	if n.sender == nil {
		return
	}
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return
	}
	n.closed = true
	close(n.queue)
	n.mu.Unlock()
	<-n.done
}

func (n *Notifier) run() {
	defer close(n.done)
	for msg := range n.queue {
		for _, err := range n.sender.Send(msg, &types.Params{}) {
			if err != nil {
				logger.WithFields(map[string]interface{}{"error": err}).Warn("notification send failed")
			}
		}
	}
}
