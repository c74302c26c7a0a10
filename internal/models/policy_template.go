package models

import "encoding/json"

// PolicyTemplate is a reusable, parameterized policy skeleton stored as an
// opaque JSON body. Builtin templates are seeded at startup and immutable.
type PolicyTemplate struct {
	ID           int64       `json:"id" gorm:"primaryKey"`
	Name         string      `json:"name" gorm:"uniqueIndex;not null"`
	Description  string      `json:"description"`
	Category     string      `json:"category" gorm:"index"`
	TemplateJSON string      `json:"templateJson" gorm:"type:text;not null"`
	IsBuiltin    bool        `json:"isBuiltin"`
	CreatedAt    UnixMillis  `json:"createdAt" gorm:"autoCreateTime:false"`
	UpdatedAt    *UnixMillis `json:"updatedAt,omitempty" gorm:"autoUpdateTime:false"`
}

// TemplateBody is the decoded form of TemplateJSON.
type TemplateBody struct {
	Policies []PolicySkeleton `json:"policies"`
}

// PolicySkeleton is one templated policy. String fields may contain ${name}
// placeholders that instantiation substitutes.
type PolicySkeleton struct {
	RuleName          string `json:"ruleName"`
	URLPattern        string `json:"urlPattern,omitempty"`
	FileHash          string `json:"fileHash,omitempty"`
	MimeType          string `json:"mimeType,omitempty"`
	Action            string `json:"action"`
	MatchType         string `json:"matchType,omitempty"`
	EnforcementAction string `json:"enforcementAction,omitempty"`
	Severity          string `json:"severity,omitempty"`
	Description       string `json:"description,omitempty"`
}

// Body decodes the template's JSON body.
func (t PolicyTemplate) Body() (TemplateBody, error) {
	var body TemplateBody
	err := json.Unmarshal([]byte(t.TemplateJSON), &body)
	return body, err
}
