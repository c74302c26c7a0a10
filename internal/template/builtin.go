package template

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/emberbrowser/sentinel/internal/models"
	"github.com/emberbrowser/sentinel/internal/store"
)

// builtinTemplates is the seed set shipped with the engine. Builtin
// templates are immutable once created.
func builtinTemplates() []models.PolicyTemplate {
	mustJSON := func(body models.TemplateBody) string {
		data, err := json.Marshal(body)
		if err != nil {
			panic(err)
		}
		return string(data)
	}

	return []models.PolicyTemplate{
		{
			Name:        "Block Downloads From Domain",
			Description: "Blocks every download originating from the given domain. Set the domain variable to the site to block.",
			Category:    "download_protection",
			IsBuiltin:   true,
			TemplateJSON: mustJSON(models.TemplateBody{Policies: []models.PolicySkeleton{{
				RuleName:          "Domain Download Block: ${domain}",
				URLPattern:        "*://*.${domain}/*",
				Action:            string(models.ActionBlock),
				MatchType:         string(models.MatchDownloadOriginFileType),
				EnforcementAction: "block_download",
				Severity:          models.SeverityHigh,
			}}}),
		},
		{
			Name:        "Quarantine File Hash",
			Description: "Quarantines any download whose content hash matches a known-bad sample. Set the hash variable.",
			Category:    "download_protection",
			IsBuiltin:   true,
			TemplateJSON: mustJSON(models.TemplateBody{Policies: []models.PolicySkeleton{{
				RuleName:          "Known Bad Hash: ${hash}",
				FileHash:          "${hash}",
				Action:            string(models.ActionQuarantine),
				MatchType:         string(models.MatchDownloadOriginFileType),
				EnforcementAction: "quarantine_file",
				Severity:          models.SeverityCritical,
			}}}),
		},
		{
			Name:        "Warn On Executable Downloads",
			Description: "Shows a warning before any executable download completes, whatever its origin.",
			Category:    "download_protection",
			IsBuiltin:   true,
			TemplateJSON: mustJSON(models.TemplateBody{Policies: []models.PolicySkeleton{{
				RuleName:          "Executable Download Warning",
				MimeType:          "application/x-executable",
				Action:            string(models.ActionWarnUser),
				MatchType:         string(models.MatchDownloadOriginFileType),
				EnforcementAction: "show_warning",
				Severity:          models.SeverityMedium,
			}}}),
		},
		{
			Name:        "Block Cross-Origin Credentials",
			Description: "Blocks form submissions that send credentials to a different origin, the strongest guard against credential exfiltration.",
			Category:    "credential_protection",
			IsBuiltin:   true,
			TemplateJSON: mustJSON(models.TemplateBody{Policies: []models.PolicySkeleton{{
				RuleName:          "Cross-Origin Credential Block",
				URLPattern:        "*://${form_origin}/*",
				Action:            string(models.ActionBlock),
				MatchType:         string(models.MatchFormActionMismatch),
				EnforcementAction: "block_submission",
				Severity:          models.SeverityHigh,
			}}}),
		},
		{
			Name:        "Block Autofill On Lookalikes",
			Description: "Prevents autofill on domains matching the given lookalike pattern so saved credentials never reach a phishing page.",
			Category:    "credential_protection",
			IsBuiltin:   true,
			TemplateJSON: mustJSON(models.TemplateBody{Policies: []models.PolicySkeleton{{
				RuleName:          "Autofill Block: ${pattern}",
				URLPattern:        "${pattern}",
				Action:            string(models.ActionBlockAutofill),
				MatchType:         string(models.MatchInsecureCredentialPost),
				EnforcementAction: "block_autofill",
				Severity:          models.SeverityMedium,
			}}}),
		},
		{
			Name:        "Block Third-Party Tracking Forms",
			Description: "Blocks form submissions to known tracking and analytics endpoints. Customize the tracking_domain variable.",
			Category:    "tracking_protection",
			IsBuiltin:   true,
			TemplateJSON: mustJSON(models.TemplateBody{Policies: []models.PolicySkeleton{{
				RuleName:          "Third-Party Form Block",
				URLPattern:        "*://*.${tracking_domain}/*",
				Action:            string(models.ActionBlock),
				MatchType:         string(models.MatchThirdPartyFormPost),
				EnforcementAction: "block_submission",
				Severity:          models.SeverityMedium,
			}}}),
		},
	}
}

// SeedBuiltins creates any builtin template that is not already present.
// Existing rows are left untouched, so user edits to non-builtin templates
// and previously seeded rows survive restarts.
func (e *Engine) SeedBuiltins() error {
	for _, tmpl := range builtinTemplates() {
		_, err := e.store.GetTemplateByName(tmpl.Name)
		if err == nil {
			continue
		}
		if !errors.Is(err, store.ErrNotFound) {
			return err
		}
		t := tmpl
		if _, err := e.store.CreateTemplate(&t); err != nil {
			return fmt.Errorf("seed builtin template %q: %w", tmpl.Name, err)
		}
	}
	return nil
}
