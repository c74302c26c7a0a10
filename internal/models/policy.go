package models

import "fmt"

// PolicyAction is the closed set of enforcement outcomes a policy can carry.
type PolicyAction string

const (
	ActionAllow         PolicyAction = "Allow"
	ActionBlock         PolicyAction = "Block"
	ActionQuarantine    PolicyAction = "Quarantine"
	ActionBlockAutofill PolicyAction = "BlockAutofill"
	ActionWarnUser      PolicyAction = "WarnUser"
)

// Valid reports whether the action is one of the defined values.
func (a PolicyAction) Valid() bool {
	switch a {
	case ActionAllow, ActionBlock, ActionQuarantine, ActionBlockAutofill, ActionWarnUser:
		return true
	}
	return false
}

// ParseAction converts a wire string into a PolicyAction, rejecting anything
// outside the closed set.
func ParseAction(s string) (PolicyAction, error) {
	a := PolicyAction(s)
	if !a.Valid() {
		return "", fmt.Errorf("unknown policy action %q", s)
	}
	return a, nil
}

// PolicyMatchType names the interaction a policy guards.
type PolicyMatchType string

const (
	MatchDownloadOriginFileType PolicyMatchType = "download_origin_file_type"
	MatchFormActionMismatch     PolicyMatchType = "form_action_mismatch"
	MatchInsecureCredentialPost PolicyMatchType = "insecure_credential_post"
	MatchThirdPartyFormPost     PolicyMatchType = "third_party_form_post"
)

// Severity labels for threat records and template skeletons.
const (
	SeverityLow      = "low"
	SeverityMedium   = "medium"
	SeverityHigh     = "high"
	SeverityCritical = "critical"
)

// Policy is one persisted security rule. At least one of URLPattern,
// FileHash, or MimeType must be set for the policy to be matchable.
type Policy struct {
	ID                int64           `json:"id" gorm:"primaryKey"`
	RuleName          string          `json:"ruleName" gorm:"index;not null"`
	URLPattern        string          `json:"urlPattern"`
	FileHash          string          `json:"fileHash" gorm:"index"`
	MimeType          string          `json:"mimeType"`
	Action            PolicyAction    `json:"action" gorm:"not null"`
	MatchType         PolicyMatchType `json:"matchType,omitempty"`
	EnforcementAction string          `json:"enforcementAction,omitempty"`
	CreatedAt         UnixMillis      `json:"createdAt" gorm:"autoCreateTime:false"`
	CreatedBy         string          `json:"createdBy"`
	ExpiresAt         *UnixMillis     `json:"expiresAt,omitempty"`
	HitCount          int64           `json:"hitCount"`
	LastHit           *UnixMillis     `json:"lastHit,omitempty"`
}

// HasMatchKey reports whether the policy can ever match a resource.
func (p Policy) HasMatchKey() bool {
	return p.URLPattern != "" || p.FileHash != "" || p.MimeType != ""
}

// Expired reports whether the policy's TTL has passed as of now. Policies
// without an ExpiresAt never expire.
func (p Policy) Expired(now UnixMillis) bool {
	if p.ExpiresAt == nil || p.ExpiresAt.IsZero() {
		return false
	}
	return p.ExpiresAt.UnixMilli() <= now.UnixMilli()
}

// Validate checks the structural invariants a policy must hold before it is
// persisted.
func (p Policy) Validate() error {
	if p.RuleName == "" {
		return fmt.Errorf("policy rule name is required")
	}
	if !p.Action.Valid() {
		return fmt.Errorf("unknown policy action %q", string(p.Action))
	}
	if !p.HasMatchKey() {
		return fmt.Errorf("policy %q needs a url pattern, file hash, or mime type", p.RuleName)
	}
	return nil
}

// ResourceDescriptor identifies one resource under evaluation. Any subset of
// the fields may be populated.
type ResourceDescriptor struct {
	URL      string `json:"url"`
	Filename string `json:"filename,omitempty"`
	FileHash string `json:"fileHash,omitempty"`
	MimeType string `json:"mimeType,omitempty"`
	FileSize uint64 `json:"fileSize,omitempty"`
}
