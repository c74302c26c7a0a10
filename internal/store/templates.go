package store

import (
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/emberbrowser/sentinel/internal/models"
)

// CreateTemplate persists a policy template.
func (s *PolicyStore) CreateTemplate(t *models.PolicyTemplate) (int64, error) {
	if t.Name == "" || t.TemplateJSON == "" {
		return 0, fmt.Errorf("template needs a name and a body")
	}
	t.ID = 0
	if t.CreatedAt.IsZero() {
		t.CreatedAt = s.now()
	}
	if err := s.db.Create(t).Error; err != nil {
		return 0, storageErr("create template", err)
	}
	return t.ID, nil
}

// GetTemplate returns the template with the given id.
func (s *PolicyStore) GetTemplate(id int64) (models.PolicyTemplate, error) {
	var t models.PolicyTemplate
	if err := s.db.First(&t, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.PolicyTemplate{}, fmt.Errorf("template %d: %w", id, ErrNotFound)
		}
		return models.PolicyTemplate{}, storageErr("get template", err)
	}
	return t, nil
}

// GetTemplateByName returns the template with the given unique name.
func (s *PolicyStore) GetTemplateByName(name string) (models.PolicyTemplate, error) {
	var t models.PolicyTemplate
	if err := s.db.Where("name = ?", name).First(&t).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.PolicyTemplate{}, fmt.Errorf("template %q: %w", name, ErrNotFound)
		}
		return models.PolicyTemplate{}, storageErr("get template by name", err)
	}
	return t, nil
}

// ListTemplates returns templates, optionally restricted to one category.
func (s *PolicyStore) ListTemplates(category string) ([]models.PolicyTemplate, error) {
	q := s.db.Order("created_at DESC")
	if category != "" {
		q = q.Where("category = ?", category)
	}
	var templates []models.PolicyTemplate
	if err := q.Find(&templates).Error; err != nil {
		return nil, storageErr("list templates", err)
	}
	return templates, nil
}

// UpdateTemplate replaces a user template. Builtin templates are immutable.
func (s *PolicyStore) UpdateTemplate(id int64, t models.PolicyTemplate) error {
	existing, err := s.GetTemplate(id)
	if err != nil {
		return err
	}
	if existing.IsBuiltin {
		return fmt.Errorf("template %d is builtin and cannot be modified", id)
	}
	now := s.now()
	t.ID = id
	t.IsBuiltin = false
	t.CreatedAt = existing.CreatedAt
	t.UpdatedAt = &now
	if err := s.db.Save(&t).Error; err != nil {
		return storageErr("update template", err)
	}
	return nil
}

// DeleteTemplate removes a user template. Builtin templates are immutable.
func (s *PolicyStore) DeleteTemplate(id int64) error {
	existing, err := s.GetTemplate(id)
	if err != nil {
		return err
	}
	if existing.IsBuiltin {
		return fmt.Errorf("template %d is builtin and cannot be deleted", id)
	}
	res := s.db.Delete(&models.PolicyTemplate{}, id)
	if res.Error != nil {
		return storageErr("delete template", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("template %d: %w", id, ErrNotFound)
	}
	return nil
}
