package store

import (
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/emberbrowser/sentinel/internal/logger"
	"github.com/emberbrowser/sentinel/internal/metrics"
	"github.com/emberbrowser/sentinel/internal/models"
)

// PolicyStore is the persistent policy table with a bounded in-memory cache
// in front of it. All mutations invalidate the cache before they are
// acknowledged, so a reader can never observe a cache entry that is stale
// relative to a write another caller has already seen succeed.
type PolicyStore struct {
	db    *gorm.DB
	cache *policyCache
	now   func() models.UnixMillis
}

// NewPolicyStore creates a store over an opened database. cacheSize bounds
// the match cache entry count.
func NewPolicyStore(db *gorm.DB, cacheSize int) *PolicyStore {
	return &PolicyStore{
		db:    db,
		cache: newPolicyCache(cacheSize),
		now:   models.Now,
	}
}

// CreatePolicy validates and persists a new policy, returning its id.
func (s *PolicyStore) CreatePolicy(p *models.Policy) (int64, error) {
	if err := p.Validate(); err != nil {
		return 0, err
	}
	if p.ID < 1 {
		p.ID = 0 // let the backend assign
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = s.now()
	}
	p.HitCount = 0
	p.LastHit = nil

	if err := s.db.Create(p).Error; err != nil {
		return 0, storageErr("create policy", err)
	}
	s.cache.invalidate()
	return p.ID, nil
}

// GetPolicy returns the policy with the given id.
func (s *PolicyStore) GetPolicy(id int64) (models.Policy, error) {
	var p models.Policy
	if err := s.db.First(&p, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Policy{}, fmt.Errorf("policy %d: %w", id, ErrNotFound)
		}
		return models.Policy{}, storageErr("get policy", err)
	}
	return p, nil
}

// UpdatePolicy replaces a policy's fields. CreatedAt, HitCount and LastHit
// are never written, so a hit recorded mid-update is not lost.
func (s *PolicyStore) UpdatePolicy(id int64, p models.Policy) error {
	if err := p.Validate(); err != nil {
		return err
	}

	p.ID = id
	res := s.db.Model(&models.Policy{}).Where("id = ?", id).
		Select("*").Omit("id", "created_at", "hit_count", "last_hit").
		Updates(&p)
	if res.Error != nil {
		return storageErr("update policy", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("policy %d: %w", id, ErrNotFound)
	}
	s.cache.invalidate()
	return nil
}

// DeletePolicy removes a policy. Deleting an unknown id returns ErrNotFound.
func (s *PolicyStore) DeletePolicy(id int64) error {
	res := s.db.Delete(&models.Policy{}, id)
	if res.Error != nil {
		return storageErr("delete policy", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("policy %d: %w", id, ErrNotFound)
	}
	s.cache.invalidate()
	return nil
}

// ListPolicies returns all policies. Ordering is not part of the contract.
func (s *PolicyStore) ListPolicies() ([]models.Policy, error) {
	var policies []models.Policy
	if err := s.db.Order("created_at DESC").Find(&policies).Error; err != nil {
		return nil, storageErr("list policies", err)
	}
	return policies, nil
}

// PolicyCount returns the number of stored policies, expired included.
func (s *PolicyStore) PolicyCount() (int64, error) {
	var n int64
	if err := s.db.Model(&models.Policy{}).Count(&n).Error; err != nil {
		return 0, storageErr("count policies", err)
	}
	return n, nil
}

// Match resolves a resource descriptor against the stored policies.
//
// Precedence: exact file hash, then URL pattern (longest pattern wins on
// tie), then mime-type-only. Expired policies are skipped as if absent. On a
// match the policy's hit count is bumped and last_hit set before returning.
// A nil policy with nil error means no policy matched.
func (s *PolicyStore) Match(desc models.ResourceDescriptor) (*models.Policy, error) {
	key := cacheKey(desc)
	if id, present, _ := s.cache.get(key); present {
		metrics.IncCacheHit()
		if id == nil {
			return nil, nil
		}
		// Re-read the row so the caller sees current fields; the cached id
		// can point at a row that has since expired or been replaced.
		p, err := s.GetPolicy(*id)
		if err == nil && !p.Expired(s.now()) {
			return s.recordHit(p)
		}
		if err != nil && !errors.Is(err, ErrNotFound) {
			return nil, err
		}
		// Cached id went stale inside the same generation; fall through.
	}
	metrics.IncCacheMiss()

	gen := s.cache.genForFill()
	p, err := s.matchUncached(desc)
	if err != nil {
		return nil, err
	}
	if p == nil {
		s.cache.put(key, nil, gen)
		return nil, nil
	}
	id := p.ID
	s.cache.put(key, &id, gen)
	return s.recordHit(*p)
}

// genForFill exposes the current cache generation for a fill cycle.
func (c *policyCache) genForFill() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen
}

func (s *PolicyStore) matchUncached(desc models.ResourceDescriptor) (*models.Policy, error) {
	now := s.now()

	// 1. Exact file hash.
	if desc.FileHash != "" {
		var candidates []models.Policy
		if err := s.db.Where("file_hash = ?", desc.FileHash).Find(&candidates).Error; err != nil {
			return nil, storageErr("match by hash", err)
		}
		for i := range candidates {
			if !candidates[i].Expired(now) {
				return &candidates[i], nil
			}
		}
	}

	// 2. URL pattern, most specific (longest) pattern first.
	if desc.URL != "" {
		var candidates []models.Policy
		if err := s.db.Where("url_pattern <> ''").Find(&candidates).Error; err != nil {
			return nil, storageErr("match by url pattern", err)
		}
		var matched []models.Policy
		for i := range candidates {
			if candidates[i].Expired(now) {
				continue
			}
			if patternMatchesURL(candidates[i].URLPattern, desc.URL) {
				matched = append(matched, candidates[i])
			}
		}
		if len(matched) > 0 {
			sort.SliceStable(matched, func(i, j int) bool {
				return len(matched[i].URLPattern) > len(matched[j].URLPattern)
			})
			return &matched[0], nil
		}
	}

	// 3. Mime-type-only policies.
	if desc.MimeType != "" {
		var candidates []models.Policy
		err := s.db.Where("mime_type = ? AND file_hash = '' AND url_pattern = ''", desc.MimeType).
			Find(&candidates).Error
		if err != nil {
			return nil, storageErr("match by mime type", err)
		}
		for i := range candidates {
			if !candidates[i].Expired(now) {
				return &candidates[i], nil
			}
		}
	}

	return nil, nil
}

// recordHit bumps hit_count and last_hit as a single SQL expression so
// concurrent bumps on the same row never lose updates.
func (s *PolicyStore) recordHit(p models.Policy) (*models.Policy, error) {
	now := s.now()
	err := s.db.Model(&models.Policy{}).Where("id = ?", p.ID).UpdateColumns(map[string]interface{}{
		"hit_count": gorm.Expr("hit_count + 1"),
		"last_hit":  now,
	}).Error
	if err != nil {
		return nil, storageErr("record policy hit", err)
	}
	// The cache maps descriptor keys to policy ids and every cache hit
	// re-reads the row, so the bump is visible to the next lookup without
	// dropping the whole cache here.

	p.HitCount++
	p.LastHit = &now
	return &p, nil
}

// PurgeExpiredPolicies deletes policies whose TTL passed, returning the count.
func (s *PolicyStore) PurgeExpiredPolicies() (int64, error) {
	res := s.db.Where("expires_at IS NOT NULL AND expires_at > 0 AND expires_at <= ?", s.now().UnixMilli()).
		Delete(&models.Policy{})
	if res.Error != nil {
		return 0, storageErr("purge expired policies", res.Error)
	}
	if res.RowsAffected > 0 {
		s.cache.invalidate()
		logger.WithFields(map[string]interface{}{"purged": res.RowsAffected}).
			Info("purged expired policies")
	}
	return res.RowsAffected, nil
}

// CacheMetrics returns a snapshot of the match cache counters.
func (s *PolicyStore) CacheMetrics() CacheMetrics {
	return s.cache.snapshot()
}

// ResetCacheMetrics zeroes the match cache counters.
func (s *PolicyStore) ResetCacheMetrics() {
	s.cache.resetMetrics()
}

// SetClock overrides the store's time source. Tests only.
func (s *PolicyStore) SetClock(now func() models.UnixMillis) {
	s.now = now
}

func cacheKey(desc models.ResourceDescriptor) string {
	return desc.FileHash + "|" + desc.URL + "|" + desc.MimeType
}

// patternMatchesURL reports whether a glob pattern (with * wildcards)
// matches the request URL or its host. A host pattern like *.example.com
// matches any URL on a subdomain of example.com.
func patternMatchesURL(pattern, rawURL string) bool {
	if pattern == "" || rawURL == "" {
		return false
	}
	if globMatch(pattern, rawURL) {
		return true
	}
	if u, err := url.Parse(rawURL); err == nil && u.Hostname() != "" {
		return globMatch(pattern, u.Hostname())
	}
	return false
}

// globMatch matches s against pattern where '*' matches any run of
// characters, case-insensitively. Iterative two-pointer form, no backtracking
// blowup on hostile patterns.
func globMatch(pattern, s string) bool {
	pattern = strings.ToLower(pattern)
	s = strings.ToLower(s)

	var pi, si int
	star := -1
	mark := 0
	for si < len(s) {
		switch {
		case pi < len(pattern) && (pattern[pi] == s[si]):
			pi++
			si++
		case pi < len(pattern) && pattern[pi] == '*':
			star = pi
			mark = si
			pi++
		case star >= 0:
			pi = star + 1
			mark++
			si = mark
		default:
			return false
		}
	}
	for pi < len(pattern) && pattern[pi] == '*' {
		pi++
	}
	return pi == len(pattern)
}

// monotonic helper for retention cutoffs.
func daysAgo(now models.UnixMillis, days int) models.UnixMillis {
	return models.At(now.Add(-time.Duration(days) * 24 * time.Hour))
}
