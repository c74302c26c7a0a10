// Package enforcer ties the decision pipeline together: admission control,
// stored-policy matching, heuristic scoring for unmatched resources, threat
// recording, and the audit trail around each verdict.
package enforcer

import (
	"fmt"
	"net/url"

	"github.com/emberbrowser/sentinel/internal/audit"
	"github.com/emberbrowser/sentinel/internal/config"
	"github.com/emberbrowser/sentinel/internal/logger"
	"github.com/emberbrowser/sentinel/internal/metrics"
	"github.com/emberbrowser/sentinel/internal/models"
	"github.com/emberbrowser/sentinel/internal/notify"
	"github.com/emberbrowser/sentinel/internal/ratelimit"
	"github.com/emberbrowser/sentinel/internal/scorer"
	"github.com/emberbrowser/sentinel/internal/store"
)

// Decision sources.
const (
	SourcePolicy = "policy"
	SourceScore  = "score"
)

// Decision is the verdict for one evaluated resource.
type Decision struct {
	Action      models.PolicyAction `json:"action"`
	Source      string              `json:"source"`
	PolicyID    *int64              `json:"policyId,omitempty"`
	RuleName    string              `json:"ruleName,omitempty"`
	Score       *float64            `json:"score,omitempty"`
	Level       scorer.ThreatLevel  `json:"level,omitempty"`
	Signals     map[string]float64  `json:"signals,omitempty"`
	Explanation string              `json:"explanation,omitempty"`

	// Degraded marks a decision made while the policy store was
	// unreachable: scoring still ran, but stored policies could not be
	// consulted.
	Degraded bool `json:"degraded,omitempty"`
}

// Options carries per-evaluation caller context.
type Options struct {
	// Client names the caller for the audit trail.
	Client string
	// Remember persists a blocking policy when scoring finds a threat, so
	// the next evaluation is a deterministic policy hit.
	Remember bool
}

// Enforcer evaluates resources against stored policies and the URL scorer.
type Enforcer struct {
	cfg      config.Config
	store    *store.PolicyStore
	limiter  *ratelimit.Limiter
	audit    *audit.Logger
	notifier *notify.Notifier
}

// New builds an enforcer. notifier may be nil.
func New(cfg config.Config, st *store.PolicyStore, limiter *ratelimit.Limiter, auditLog *audit.Logger, notifier *notify.Notifier) *Enforcer {
	return &Enforcer{cfg: cfg, store: st, limiter: limiter, audit: auditLog, notifier: notifier}
}

// Evaluate resolves one resource to a decision.
//
// Stored policies take precedence over heuristic scoring. When the policy
// store is unreachable the evaluation degrades to score-only rather than
// failing, and the decision is marked degraded. A rate-limit rejection
// returns ratelimit.ErrRejected without evaluating anything.
func (e *Enforcer) Evaluate(desc models.ResourceDescriptor, opts Options) (Decision, error) {
	switch e.limiter.Admit(ratelimit.ClassScan) {
	case ratelimit.Rejected:
		e.record(audit.Event{
			Type:     audit.EventRateLimited,
			User:     opts.Client,
			Resource: desc.URL,
			Action:   "evaluate",
			Result:   "rejected",
		})
		return Decision{}, ratelimit.ErrRejected
	case ratelimit.AdmittedDegraded:
		// Counted and logged by the limiter; the evaluation proceeds.
	}

	degraded := false
	policy, err := e.store.Match(desc)
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"url":   desc.URL,
			"error": err.Error(),
		}).Warn("policy store unreachable, degrading to score-only evaluation")
		degraded = true
	}

	if policy != nil {
		return e.policyDecision(desc, opts, policy), nil
	}
	return e.scoreDecision(desc, opts, degraded), nil
}

func (e *Enforcer) policyDecision(desc models.ResourceDescriptor, opts Options, policy *models.Policy) Decision {
	metrics.IncPolicyHit()
	metrics.IncEvaluation(string(policy.Action))

	id := policy.ID
	decision := Decision{
		Action:      policy.Action,
		Source:      SourcePolicy,
		PolicyID:    &id,
		RuleName:    policy.RuleName,
		Explanation: fmt.Sprintf("matched policy %q", policy.RuleName),
	}

	e.record(audit.Event{
		Type:     auditTypeFor(policy.Action),
		User:     opts.Client,
		Resource: desc.URL,
		Action:   "evaluate",
		Result:   auditResultFor(policy.Action),
		Reason:   fmt.Sprintf("policy %d (%s)", policy.ID, policy.RuleName),
	})
	return decision
}

func (e *Enforcer) scoreDecision(desc models.ResourceDescriptor, opts Options, degraded bool) Decision {
	result := scorer.Score(desc.URL)
	action := actionForLevel(result.Level)
	metrics.IncEvaluation(string(action))

	total := result.Total
	decision := Decision{
		Action:      action,
		Source:      SourceScore,
		Score:       &total,
		Level:       result.Level,
		Signals:     result.Signals,
		Explanation: result.Explanation,
		Degraded:    degraded,
	}

	if result.Level == scorer.LevelSafe {
		e.record(audit.Event{
			Type:     audit.EventScanCompleted,
			User:     opts.Client,
			Resource: desc.URL,
			Action:   "evaluate",
			Result:   "allowed",
		})
		return decision
	}

	metrics.IncThreatDetected()
	rec := models.ThreatRecord{
		RuleName:    "phishing_url_heuristics",
		URL:         desc.URL,
		Filename:    desc.Filename,
		FileHash:    desc.FileHash,
		MimeType:    desc.MimeType,
		FileSize:    int64(desc.FileSize),
		Severity:    severityFor(result),
		ActionTaken: string(action),
		AlertJSON:   result.AlertJSON(desc.URL),
	}
	if _, err := e.store.RecordThreat(&rec); err != nil {
		// A detection must never be lost to a dying store silently, but it
		// also must not change the verdict.
		logger.WithFields(map[string]interface{}{
			"url":   desc.URL,
			"error": err.Error(),
		}).Warn("recording threat failed")
	}

	e.record(audit.Event{
		Type:     audit.EventThreatDetected,
		User:     opts.Client,
		Resource: desc.URL,
		Action:   "evaluate",
		Result:   auditResultFor(action),
		Reason:   result.Explanation,
		Metadata: map[string]string{"level": string(result.Level)},
	})
	if e.notifier != nil {
		e.notifier.ThreatDetected(&rec)
	}

	if opts.Remember && !degraded {
		e.rememberThreat(desc, opts, result, action)
	}
	return decision
}

// rememberThreat persists a policy for a scored threat so the next
// evaluation of the same origin is a deterministic policy hit.
func (e *Enforcer) rememberThreat(desc models.ResourceDescriptor, opts Options, result scorer.Result, action models.PolicyAction) {
	host := hostOf(desc.URL)
	if host == "" {
		return
	}
	createdBy := opts.Client
	if createdBy == "" {
		createdBy = "sentinel"
	}
	policy := models.Policy{
		RuleName:   fmt.Sprintf("Phishing: %s", host),
		URLPattern: "*://" + host + "/*",
		Action:     action,
		CreatedBy:  createdBy,
	}
	id, err := e.store.CreatePolicy(&policy)
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"host":  host,
			"error": err.Error(),
		}).Warn("persisting remembered threat policy failed")
		return
	}
	e.record(audit.Event{
		Type:     audit.EventPolicyCreated,
		User:     createdBy,
		Resource: desc.URL,
		Action:   "remember_threat",
		Result:   "success",
		Reason:   fmt.Sprintf("policy %d from score %.2f", id, result.Total),
	})
}

// record writes an audit event, surfacing failures as warnings only. The
// audit trail never blocks or reverses a decision.
func (e *Enforcer) record(event audit.Event) {
	if e.audit == nil {
		return
	}
	if err := e.audit.Record(event); err != nil {
		logger.WithFields(map[string]interface{}{"error": err.Error()}).
			Warn("audit record failed")
	}
}

func actionForLevel(level scorer.ThreatLevel) models.PolicyAction {
	switch level {
	case scorer.LevelDangerous:
		return models.ActionBlock
	case scorer.LevelSuspicious:
		return models.ActionWarnUser
	default:
		return models.ActionAllow
	}
}

func severityFor(result scorer.Result) string {
	switch {
	case result.Total >= 0.8:
		return models.SeverityCritical
	case result.Level == scorer.LevelDangerous:
		return models.SeverityHigh
	case result.Level == scorer.LevelSuspicious:
		return models.SeverityMedium
	default:
		return models.SeverityLow
	}
}

func auditTypeFor(action models.PolicyAction) audit.EventType {
	switch action {
	case models.ActionBlock, models.ActionQuarantine, models.ActionBlockAutofill:
		return audit.EventAccessDenied
	default:
		return audit.EventScanCompleted
	}
}

func auditResultFor(action models.PolicyAction) string {
	switch action {
	case models.ActionAllow:
		return "allowed"
	case models.ActionBlock:
		return "blocked"
	case models.ActionQuarantine:
		return "quarantined"
	case models.ActionBlockAutofill:
		return "autofill_blocked"
	case models.ActionWarnUser:
		return "warned"
	default:
		return string(action)
	}
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return u.Hostname()
}
