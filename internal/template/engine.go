// Package template instantiates policies from reusable, parameterized
// templates. Substitution is a literal map-and-replace over the templated
// string fields; ${name} placeholders without a supplied variable are left
// verbatim, since templates may be partially parameterized.
package template

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/emberbrowser/sentinel/internal/logger"
	"github.com/emberbrowser/sentinel/internal/models"
	"github.com/emberbrowser/sentinel/internal/store"
)

// Engine instantiates and exchanges policy templates via the policy store.
type Engine struct {
	store *store.PolicyStore
}

// NewEngine creates a template engine over the given store.
func NewEngine(s *store.PolicyStore) *Engine {
	return &Engine{store: s}
}

// List returns templates, optionally filtered by category.
func (e *Engine) List(category string) ([]models.PolicyTemplate, error) {
	return e.store.ListTemplates(category)
}

// Instantiate builds a Policy from the template's first skeleton with every
// ${name} occurrence in the templated fields replaced from vars. The result
// is not persisted; the caller decides whether to store it.
func (e *Engine) Instantiate(templateID int64, vars map[string]string) (models.Policy, error) {
	tmpl, err := e.store.GetTemplate(templateID)
	if err != nil {
		return models.Policy{}, err
	}

	body, err := tmpl.Body()
	if err != nil {
		return models.Policy{}, fmt.Errorf("template %d has invalid body: %w", templateID, err)
	}
	if len(body.Policies) == 0 {
		return models.Policy{}, fmt.Errorf("template %d has no policy skeletons", templateID)
	}

	skel := body.Policies[0]
	policy := models.Policy{
		ID:                -1,
		RuleName:          substitute(skel.RuleName, vars),
		URLPattern:        substitute(skel.URLPattern, vars),
		FileHash:          substitute(skel.FileHash, vars),
		MimeType:          substitute(skel.MimeType, vars),
		EnforcementAction: skel.EnforcementAction,
		CreatedAt:         models.Now(),
		CreatedBy:         "template:" + tmpl.Name,
	}

	action, err := models.ParseAction(skel.Action)
	if err != nil {
		return models.Policy{}, fmt.Errorf("template %d: %w", templateID, err)
	}
	policy.Action = action
	if skel.MatchType != "" {
		policy.MatchType = models.PolicyMatchType(skel.MatchType)
	}

	if err := policy.Validate(); err != nil {
		return models.Policy{}, fmt.Errorf("template %d produced an invalid policy: %w", templateID, err)
	}
	return policy, nil
}

// substitute replaces each ${name} with its value. Unknown placeholders are
// left verbatim.
func substitute(s string, vars map[string]string) string {
	if s == "" || len(vars) == 0 {
		return s
	}
	for name, value := range vars {
		s = strings.ReplaceAll(s, "${"+name+"}", value)
	}
	return s
}

// exportDoc is the portable JSON envelope for templates.
type exportDoc struct {
	Version    int               `json:"version"`
	ExportedAt models.UnixMillis `json:"exportedAt"`
	Templates  []exportTemplate  `json:"templates"`
}

type exportTemplate struct {
	Name         string          `json:"name"`
	Description  string          `json:"description"`
	Category     string          `json:"category"`
	TemplateJSON json.RawMessage `json:"templateJson"`
}

// ExportJSON serializes every non-builtin template plus the builtin set, so
// an export is restorable on a fresh profile.
func (e *Engine) ExportJSON() (string, error) {
	templates, err := e.store.ListTemplates("")
	if err != nil {
		return "", err
	}
	doc := exportDoc{Version: 1, ExportedAt: models.Now()}
	for _, t := range templates {
		doc.Templates = append(doc.Templates, exportTemplate{
			Name:         t.Name,
			Description:  t.Description,
			Category:     t.Category,
			TemplateJSON: json.RawMessage(t.TemplateJSON),
		})
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("encode templates: %w", err)
	}
	return string(data), nil
}

// ImportResult reports the outcome of a bulk import.
type ImportResult struct {
	Imported int `json:"imported"`
	Skipped  int `json:"skipped"`
}

// ImportJSON applies an exported template document. Each template is applied
// independently: one malformed entry is skipped and counted while the rest
// still succeed. Entries whose name collides with an existing template are
// skipped rather than overwritten.
func (e *Engine) ImportJSON(doc string) (ImportResult, error) {
	var parsed exportDoc
	if err := json.Unmarshal([]byte(doc), &parsed); err != nil {
		return ImportResult{}, fmt.Errorf("parse template import: %w", err)
	}

	var result ImportResult
	for _, entry := range parsed.Templates {
		if entry.Name == "" || len(entry.TemplateJSON) == 0 || !validBody(entry.TemplateJSON) {
			result.Skipped++
			continue
		}
		if _, err := e.store.GetTemplateByName(entry.Name); err == nil {
			result.Skipped++
			continue
		} else if !errors.Is(err, store.ErrNotFound) {
			return result, err
		}

		t := models.PolicyTemplate{
			Name:         entry.Name,
			Description:  entry.Description,
			Category:     entry.Category,
			TemplateJSON: string(entry.TemplateJSON),
		}
		if _, err := e.store.CreateTemplate(&t); err != nil {
			if errors.Is(err, store.ErrStorage) {
				return result, err
			}
			result.Skipped++
			continue
		}
		result.Imported++
	}

	logger.WithFields(map[string]interface{}{
		"imported": result.Imported,
		"skipped":  result.Skipped,
	}).Info("imported policy templates")
	return result, nil
}

func validBody(raw json.RawMessage) bool {
	var body models.TemplateBody
	if err := json.Unmarshal(raw, &body); err != nil {
		return false
	}
	return len(body.Policies) > 0
}
