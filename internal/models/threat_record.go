package models

// ThreatRecord is one immutable detection event. Records are only ever
// created and purged by retention, never updated.
type ThreatRecord struct {
	ID          int64      `json:"id" gorm:"primaryKey"`
	RuleName    string     `json:"ruleName" gorm:"index"`
	URL         string     `json:"url"`
	Filename    string     `json:"filename,omitempty"`
	FileHash    string     `json:"fileHash,omitempty"`
	MimeType    string     `json:"mimeType,omitempty"`
	FileSize    int64      `json:"fileSize,omitempty"`
	Severity    string     `json:"severity"`
	ActionTaken string     `json:"actionTaken"`
	DetectedAt  UnixMillis `json:"detectedAt" gorm:"index;autoCreateTime:false"`
	PolicyID    *int64     `json:"policyId,omitempty"`
	AlertJSON   string     `json:"alertJson,omitempty"`
}
