package store

import (
	"encoding/json"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/emberbrowser/sentinel/internal/models"
)

// UpsertNetworkBehaviorPolicy creates or refreshes the per-domain verdict.
func (s *PolicyStore) UpsertNetworkBehaviorPolicy(p *models.NetworkBehaviorPolicy) error {
	if err := p.Validate(); err != nil {
		return err
	}
	now := s.now()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now

	err := s.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "domain"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"policy", "threat_type", "confidence", "updated_at", "notes",
		}),
	}).Create(p).Error
	if err != nil {
		return storageErr("upsert network behavior policy", err)
	}
	return nil
}

// GetNetworkBehaviorPolicy returns the verdict for one domain, if any.
func (s *PolicyStore) GetNetworkBehaviorPolicy(domain string) (*models.NetworkBehaviorPolicy, error) {
	var p models.NetworkBehaviorPolicy
	if err := s.db.Where("domain = ?", domain).First(&p).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, storageErr("get network behavior policy", err)
	}
	return &p, nil
}

// ListNetworkBehaviorPolicies returns all domain verdicts, newest first.
func (s *PolicyStore) ListNetworkBehaviorPolicies() ([]models.NetworkBehaviorPolicy, error) {
	var policies []models.NetworkBehaviorPolicy
	if err := s.db.Order("updated_at DESC").Find(&policies).Error; err != nil {
		return nil, storageErr("list network behavior policies", err)
	}
	return policies, nil
}

// DeleteNetworkBehaviorPolicy removes one domain verdict by id.
func (s *PolicyStore) DeleteNetworkBehaviorPolicy(id int64) error {
	res := s.db.Delete(&models.NetworkBehaviorPolicy{}, id)
	if res.Error != nil {
		return storageErr("delete network behavior policy", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("network behavior policy %d: %w", id, ErrNotFound)
	}
	return nil
}

// networkPolicyExport is the portable JSON envelope for domain verdicts.
type networkPolicyExport struct {
	Version    int                      `json:"version"`
	ExportedAt models.UnixMillis        `json:"exportedAt"`
	Policies   []networkPolicyExportRow `json:"policies"`
}

type networkPolicyExportRow struct {
	Domain     string  `json:"domain"`
	Policy     string  `json:"policy"`
	ThreatType string  `json:"threatType"`
	Confidence float64 `json:"confidence"`
	Notes      string  `json:"notes"`
}

// ExportNetworkBehaviorPolicies serializes all domain verdicts.
func (s *PolicyStore) ExportNetworkBehaviorPolicies() (string, error) {
	policies, err := s.ListNetworkBehaviorPolicies()
	if err != nil {
		return "", err
	}
	export := networkPolicyExport{Version: 1, ExportedAt: s.now()}
	for _, p := range policies {
		export.Policies = append(export.Policies, networkPolicyExportRow{
			Domain:     p.Domain,
			Policy:     p.Policy,
			ThreatType: p.ThreatType,
			Confidence: p.Confidence,
			Notes:      p.Notes,
		})
	}
	data, err := json.Marshal(export)
	if err != nil {
		return "", fmt.Errorf("encode network behavior policies: %w", err)
	}
	return string(data), nil
}

// ImportNetworkBehaviorPolicies applies an exported document. Each entry is
// applied independently: a malformed entry is skipped and counted, the rest
// still succeed.
func (s *PolicyStore) ImportNetworkBehaviorPolicies(doc string) (imported, skipped int, err error) {
	var export networkPolicyExport
	if err := json.Unmarshal([]byte(doc), &export); err != nil {
		return 0, 0, fmt.Errorf("parse network behavior policy import: %w", err)
	}
	for _, row := range export.Policies {
		p := models.NetworkBehaviorPolicy{
			Domain:     row.Domain,
			Policy:     row.Policy,
			ThreatType: row.ThreatType,
			Confidence: row.Confidence,
			Notes:      row.Notes,
		}
		if upsertErr := s.UpsertNetworkBehaviorPolicy(&p); upsertErr != nil {
			if errors.Is(upsertErr, ErrStorage) {
				return imported, skipped, upsertErr
			}
			skipped++
			continue
		}
		imported++
	}
	return imported, skipped, nil
}
