package models

import "fmt"

// Network behavior verdicts.
const (
	NetworkPolicyAllow = "allow"
	NetworkPolicyBlock = "block"
)

// NetworkBehaviorPolicy is a per-domain verdict produced by the traffic
// analyzer or imported by the user. One row per domain.
type NetworkBehaviorPolicy struct {
	ID         int64      `json:"id" gorm:"primaryKey"`
	Domain     string     `json:"domain" gorm:"uniqueIndex;not null"`
	Policy     string     `json:"policy" gorm:"not null"`
	ThreatType string     `json:"threatType"`
	Confidence float64    `json:"confidence"`
	CreatedAt  UnixMillis `json:"createdAt" gorm:"autoCreateTime:false"`
	UpdatedAt  UnixMillis `json:"updatedAt" gorm:"autoUpdateTime:false"`
	Notes      string     `json:"notes,omitempty"`
}

// Validate checks the structural invariants before persistence.
func (p NetworkBehaviorPolicy) Validate() error {
	if p.Domain == "" {
		return fmt.Errorf("network behavior policy needs a domain")
	}
	if p.Policy != NetworkPolicyAllow && p.Policy != NetworkPolicyBlock {
		return fmt.Errorf("network behavior policy must be %q or %q, got %q",
			NetworkPolicyAllow, NetworkPolicyBlock, p.Policy)
	}
	if p.Confidence < 0 || p.Confidence > 1 {
		return fmt.Errorf("confidence must be in [0,1], got %g", p.Confidence)
	}
	return nil
}
