package store

import (
	"github.com/emberbrowser/sentinel/internal/logger"
	"github.com/emberbrowser/sentinel/internal/models"
)

// RecordThreat persists an immutable detection event.
func (s *PolicyStore) RecordThreat(rec *models.ThreatRecord) (int64, error) {
	if rec.DetectedAt.IsZero() {
		rec.DetectedAt = s.now()
	}
	rec.ID = 0
	if err := s.db.Create(rec).Error; err != nil {
		return 0, storageErr("record threat", err)
	}
	return rec.ID, nil
}

// ThreatHistory returns detection events, newest first. A nil since means
// unbounded lookback.
func (s *PolicyStore) ThreatHistory(since *models.UnixMillis) ([]models.ThreatRecord, error) {
	q := s.db.Order("detected_at DESC")
	if since != nil {
		q = q.Where("detected_at >= ?", since.UnixMilli())
	}
	var threats []models.ThreatRecord
	if err := q.Find(&threats).Error; err != nil {
		return nil, storageErr("threat history", err)
	}
	return threats, nil
}

// ThreatsByRule returns detection events for one rule, newest first.
func (s *PolicyStore) ThreatsByRule(ruleName string) ([]models.ThreatRecord, error) {
	var threats []models.ThreatRecord
	err := s.db.Where("rule_name = ?", ruleName).Order("detected_at DESC").Find(&threats).Error
	if err != nil {
		return nil, storageErr("threats by rule", err)
	}
	return threats, nil
}

// ThreatCount returns the number of stored detection events.
func (s *PolicyStore) ThreatCount() (int64, error) {
	var n int64
	if err := s.db.Model(&models.ThreatRecord{}).Count(&n).Error; err != nil {
		return 0, storageErr("count threats", err)
	}
	return n, nil
}

// PurgeOldThreats deletes detection events older than the retention window.
func (s *PolicyStore) PurgeOldThreats(retentionDays int) (int64, error) {
	if retentionDays <= 0 {
		return 0, nil
	}
	cutoff := daysAgo(s.now(), retentionDays)
	res := s.db.Where("detected_at < ?", cutoff.UnixMilli()).Delete(&models.ThreatRecord{})
	if res.Error != nil {
		return 0, storageErr("purge old threats", res.Error)
	}
	if res.RowsAffected > 0 {
		logger.WithFields(map[string]interface{}{
			"purged":         res.RowsAffected,
			"retention_days": retentionDays,
		}).Info("purged old threat records")
	}
	return res.RowsAffected, nil
}
