package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// RateLimitConfig bounds the untrusted IPC callers at the engine boundary.
type RateLimitConfig struct {
	Enabled                bool `json:"enabled"`
	ScanRequestsPerSecond  int  `json:"scan_requests_per_second"`
	ScanBurstCapacity      int  `json:"scan_burst_capacity"`
	PolicyQueriesPerSecond int  `json:"policy_queries_per_second"`
	PolicyBurstCapacity    int  `json:"policy_burst_capacity"`
	MaxConcurrentScans     int  `json:"max_concurrent_scans"`

	// FailClosed controls what a rejection means: false lets the request
	// proceed while counting the near-limit event, true refuses it outright.
	// This is an explicit operator choice, never inferred.
	FailClosed bool `json:"fail_closed"`
}

// NotificationConfig controls user-facing threat notifications.
type NotificationConfig struct {
	Enabled            bool     `json:"enabled"`
	AutoDismissSeconds int      `json:"auto_dismiss_seconds"`
	MaxQueueSize       int      `json:"max_queue_size"`
	ServiceURLs        []string `json:"service_urls,omitempty"`
}

// ScanSizeConfig bounds how much of a file is handed to the scanner.
type ScanSizeConfig struct {
	SmallFileThreshold      uint64 `json:"small_file_threshold"`
	MediumFileThreshold     uint64 `json:"medium_file_threshold"`
	MaxScanSize             uint64 `json:"max_scan_size"`
	ChunkSize               uint64 `json:"chunk_size"`
	ScanLargeFilesPartially bool   `json:"scan_large_files_partially"`
	LargeFileScanBytes      uint64 `json:"large_file_scan_bytes"`
}

// AuditLogConfig controls the append-only audit trail.
type AuditLogConfig struct {
	Enabled       bool   `json:"enabled"`
	LogPath       string `json:"log_path"`
	MaxFileSize   int64  `json:"max_file_size"`
	MaxFiles      int    `json:"max_files"`
	LogCleanScans bool   `json:"log_clean_scans"`
	BufferSize    int    `json:"buffer_size"`
}

// NetworkMonitoringConfig holds the traffic analyzer thresholds.
type NetworkMonitoringConfig struct {
	Enabled               bool    `json:"enabled"`
	DGAThreshold          float64 `json:"dga_threshold"`
	BeaconingThreshold    float64 `json:"beaconing_threshold"`
	ExfiltrationThreshold float64 `json:"exfiltration_threshold"`
}

// Config is the full engine configuration. It is constructed once in main
// and passed by value into each component's constructor; there is no global.
type Config struct {
	Enabled             bool                    `json:"enabled"`
	ListenAddr          string                  `json:"listen_addr"`
	AdminToken          string                  `json:"admin_token,omitempty"`
	YARARulesPath       string                  `json:"yara_rules_path"`
	QuarantinePath      string                  `json:"quarantine_path"`
	DatabasePath        string                  `json:"database_path"`
	PolicyCacheSize     int                     `json:"policy_cache_size"`
	ThreatRetentionDays int                     `json:"threat_retention_days"`
	RateLimit           RateLimitConfig         `json:"rate_limit"`
	Notifications       NotificationConfig      `json:"notifications"`
	ScanSize            ScanSizeConfig          `json:"scan_size"`
	AuditLog            AuditLogConfig          `json:"audit_log"`
	NetworkMonitoring   NetworkMonitoringConfig `json:"network_monitoring"`
}

const mib = 1024 * 1024

// Default returns the documented default configuration rooted at dataDir.
func Default(dataDir string) Config {
	return Config{
		Enabled:             true,
		ListenAddr:          "127.0.0.1:8753",
		YARARulesPath:       filepath.Join(dataDir, "rules"),
		QuarantinePath:      filepath.Join(dataDir, "quarantine"),
		DatabasePath:        filepath.Join(dataDir, "sentinel.db"),
		PolicyCacheSize:     1000,
		ThreatRetentionDays: 30,
		RateLimit: RateLimitConfig{
			Enabled:                true,
			ScanRequestsPerSecond:  10,
			ScanBurstCapacity:      20,
			PolicyQueriesPerSecond: 100,
			PolicyBurstCapacity:    200,
			MaxConcurrentScans:     5,
			FailClosed:             false,
		},
		Notifications: NotificationConfig{
			Enabled:            true,
			AutoDismissSeconds: 5,
			MaxQueueSize:       10,
		},
		ScanSize: ScanSizeConfig{
			SmallFileThreshold:      10 * mib,
			MediumFileThreshold:     100 * mib,
			MaxScanSize:             200 * mib,
			ChunkSize:               1 * mib,
			ScanLargeFilesPartially: true,
			LargeFileScanBytes:      10 * mib,
		},
		AuditLog: AuditLogConfig{
			Enabled:       true,
			LogPath:       filepath.Join(dataDir, "audit.log"),
			MaxFileSize:   100 * mib,
			MaxFiles:      10,
			LogCleanScans: false,
			BufferSize:    100,
		},
		NetworkMonitoring: NetworkMonitoringConfig{
			Enabled:               true,
			DGAThreshold:          0.7,
			BeaconingThreshold:    0.7,
			ExfiltrationThreshold: 0.7,
		},
	}
}

// Load reads the JSON config at path, layering it over the defaults so that
// missing keys keep their documented values. An absent file is not an error:
// it produces the full default configuration.
func Load(path, dataDir string) (Config, error) {
	cfg := Default(dataDir)

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}

	if err := json.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Save writes the configuration as indented JSON.
func (c Config) Save(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("ensure config directory: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

func (c Config) validate() error {
	if c.PolicyCacheSize <= 0 {
		return fmt.Errorf("policy_cache_size must be positive, got %d", c.PolicyCacheSize)
	}
	if c.ThreatRetentionDays < 0 {
		return fmt.Errorf("threat_retention_days cannot be negative, got %d", c.ThreatRetentionDays)
	}
	if c.RateLimit.ScanBurstCapacity <= 0 || c.RateLimit.PolicyBurstCapacity <= 0 {
		return fmt.Errorf("rate limit burst capacities must be positive")
	}
	if c.RateLimit.MaxConcurrentScans <= 0 {
		return fmt.Errorf("max_concurrent_scans must be positive, got %d", c.RateLimit.MaxConcurrentScans)
	}
	if c.AuditLog.MaxFileSize <= 0 || c.AuditLog.MaxFiles <= 0 {
		return fmt.Errorf("audit log max_file_size and max_files must be positive")
	}
	if c.AuditLog.BufferSize <= 0 {
		return fmt.Errorf("audit log buffer_size must be positive, got %d", c.AuditLog.BufferSize)
	}
	return nil
}
