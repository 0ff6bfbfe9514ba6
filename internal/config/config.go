package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Config holds application configuration.
type Config struct {
	// UserID owns the live jar and its archives. Authentication is external;
	// this is the identity the local stores are keyed on.
	UserID string `json:"user_id,omitempty"`

	// ArchiveCapacity is the jar size that must be exceeded before the
	// capacity trigger fires.
	ArchiveCapacity int `json:"archive_capacity,omitempty"`

	// ArchiveWeekday is the English weekday name of the calendar trigger.
	ArchiveWeekday string `json:"archive_weekday,omitempty"`

	// ArchiveTimezone is the IANA zone used for every calendar comparison.
	// Device-local time is never consulted.
	ArchiveTimezone string `json:"archive_timezone,omitempty"`

	// ArchiveCheckSchedule is a cron expression for periodic archive checks
	// while serving.
	ArchiveCheckSchedule string `json:"archive_check_schedule,omitempty"`

	// TapThreshold is the maximum pointer travel, in scene units, that still
	// counts as a tap.
	TapThreshold float64 `json:"tap_threshold,omitempty"`

	// MaxStickerDimension caps the larger side of a sticker body.
	MaxStickerDimension float64 `json:"max_sticker_dimension,omitempty"`

	// ThumbnailMaxSize caps the larger side of uploaded thumbnails, in pixels.
	ThumbnailMaxSize int `json:"thumbnail_max_size,omitempty"`

	// SpecialProbability is the chance (0..1) that a new sticker is special
	// when the caller does not decide.
	SpecialProbability float64 `json:"special_probability,omitempty"`

	// AnalyzerURL is the content analysis endpoint. Empty disables analysis
	// (every sticker gets fallback enrichment).
	AnalyzerURL string `json:"analyzer_url,omitempty"`

	// ReportURL is the report generation endpoint. Empty uses the local
	// markdown reporter.
	ReportURL string `json:"report_url,omitempty"`

	// RemoteTimeoutSeconds bounds each remote HTTP call.
	RemoteTimeoutSeconds int `json:"remote_timeout_seconds,omitempty"`

	// LogLevel is a logrus level name.
	LogLevel string `json:"log_level,omitempty"`

	// DBMaxOpenConns limits the maximum number of open database connections.
	// If set to 1, all database access is serialized (reduces "database is locked" errors).
	// 0 means use sql.DB default (unlimited). Only set if you experience contention.
	DBMaxOpenConns int `json:"db_max_open_conns,omitempty"`

	// DBMaxIdleConns limits the maximum number of idle database connections.
	// 0 means use sql.DB default. Typically set equal to DBMaxOpenConns.
	DBMaxIdleConns int `json:"db_max_idle_conns,omitempty"`

	// DisabledTools is a list of MCP tool names to exclude from registration.
	// Unknown tool names are logged as warnings.
	DisabledTools []string `json:"disabled_tools,omitempty"`

	// DisabledTypes is a list of type names to disable entirely.
	// Known types: "sticker", "jar".
	DisabledTypes []string `json:"disabled_types,omitempty"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		UserID:               "local",
		ArchiveCapacity:      21,
		ArchiveWeekday:       "sunday",
		ArchiveTimezone:      "UTC",
		ArchiveCheckSchedule: "0 * * * *",
		TapThreshold:         15,
		MaxStickerDimension:  80,
		ThumbnailMaxSize:     150,
		RemoteTimeoutSeconds: 60,
		LogLevel:             "info",
	}
}

// Weekday parses ArchiveWeekday.
func (c *Config) Weekday() (time.Weekday, error) {
	name := strings.ToLower(strings.TrimSpace(c.ArchiveWeekday))
	for d := time.Sunday; d <= time.Saturday; d++ {
		if strings.ToLower(d.String()) == name {
			return d, nil
		}
	}
	return time.Sunday, fmt.Errorf("unknown archive_weekday %q", c.ArchiveWeekday)
}

// Location loads ArchiveTimezone.
func (c *Config) Location() (*time.Location, error) {
	tz := strings.TrimSpace(c.ArchiveTimezone)
	if tz == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("invalid archive_timezone %q: %w", tz, err)
	}
	return loc, nil
}

// RemoteTimeout returns RemoteTimeoutSeconds as a duration.
func (c *Config) RemoteTimeout() time.Duration {
	return time.Duration(c.RemoteTimeoutSeconds) * time.Second
}

// Load loads configuration from baseDir/config.json.
// Returns default config if the file doesn't exist.
// The baseDir parameter allows tests to use t.TempDir() instead of ~/.stickerjar.
func Load(baseDir string) (*Config, error) {
	return loadFile(filepath.Join(baseDir, "config.json"))
}

// LoadWithRepo loads configuration from both global (~/.stickerjar) and repo (.stickerjar) directories.
// Repo config is found by walking upward from startDir to find the nearest .stickerjar/config.json.
// Repo config takes precedence for scalar values; arrays are merged (deduplicated).
// Either or both configs may be missing.
func LoadWithRepo(globalDir, startDir string) (*Config, error) {
	global, err := loadFileRaw(filepath.Join(globalDir, "config.json"))
	if err != nil {
		return nil, err
	}

	repo, err := loadFileRaw(FindRepoConfig(startDir))
	if err != nil {
		return nil, err
	}

	// Apply defaults, then global, then repo
	return Merge(Merge(DefaultConfig(), global), repo), nil
}

// FindRepoConfig walks upward from startDir to find the nearest .stickerjar/config.json.
// Returns the path if found, or empty string if not found.
func FindRepoConfig(startDir string) string {
	dir := startDir
	for {
		configPath := filepath.Join(dir, ".stickerjar", "config.json")
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// loadFileRaw loads configuration from a specific file path.
// Returns zero-valued config if the file doesn't exist (not defaults).
func loadFileRaw(configPath string) (*Config, error) {
	if configPath == "" {
		return &Config{}, nil
	}
	data, err := os.ReadFile(configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Config{}, nil
		}
		return nil, err
	}

	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// loadFile loads configuration from a specific file path.
// Returns default config if the file doesn't exist.
func loadFile(configPath string) (*Config, error) {
	cfg, err := loadFileRaw(configPath)
	if err != nil {
		return nil, err
	}
	return Merge(DefaultConfig(), cfg), nil
}

// Merge combines base and overlay configs.
// Overlay values take precedence for scalars; arrays are merged and deduplicated.
func Merge(base, overlay *Config) *Config {
	result := &Config{
		UserID:               pickString(overlay.UserID, base.UserID),
		ArchiveCapacity:      pickInt(overlay.ArchiveCapacity, base.ArchiveCapacity),
		ArchiveWeekday:       pickString(overlay.ArchiveWeekday, base.ArchiveWeekday),
		ArchiveTimezone:      pickString(overlay.ArchiveTimezone, base.ArchiveTimezone),
		ArchiveCheckSchedule: pickString(overlay.ArchiveCheckSchedule, base.ArchiveCheckSchedule),
		TapThreshold:         pickFloat(overlay.TapThreshold, base.TapThreshold),
		MaxStickerDimension:  pickFloat(overlay.MaxStickerDimension, base.MaxStickerDimension),
		ThumbnailMaxSize:     pickInt(overlay.ThumbnailMaxSize, base.ThumbnailMaxSize),
		SpecialProbability:   pickFloat(overlay.SpecialProbability, base.SpecialProbability),
		AnalyzerURL:          pickString(overlay.AnalyzerURL, base.AnalyzerURL),
		ReportURL:            pickString(overlay.ReportURL, base.ReportURL),
		RemoteTimeoutSeconds: pickInt(overlay.RemoteTimeoutSeconds, base.RemoteTimeoutSeconds),
		LogLevel:             pickString(overlay.LogLevel, base.LogLevel),
		DBMaxOpenConns:       pickInt(overlay.DBMaxOpenConns, base.DBMaxOpenConns),
		DBMaxIdleConns:       pickInt(overlay.DBMaxIdleConns, base.DBMaxIdleConns),
	}

	// Arrays: merge and deduplicate
	result.DisabledTools = mergeStringSlice(base.DisabledTools, overlay.DisabledTools)
	result.DisabledTypes = mergeStringSlice(base.DisabledTypes, overlay.DisabledTypes)

	return result
}

func pickString(overlay, base string) string {
	if strings.TrimSpace(overlay) != "" {
		return overlay
	}
	return base
}

func pickInt(overlay, base int) int {
	if overlay != 0 {
		return overlay
	}
	return base
}

func pickFloat(overlay, base float64) float64 {
	if overlay != 0 {
		return overlay
	}
	return base
}

// mergeStringSlice combines two slices, trims whitespace, and removes duplicates.
func mergeStringSlice(a, b []string) []string {
	seen := make(map[string]bool)
	result := make([]string, 0, len(a)+len(b))

	for _, s := range append(append([]string{}, a...), b...) {
		s = strings.TrimSpace(s)
		if s != "" && !seen[s] {
			seen[s] = true
			result = append(result, s)
		}
	}

	if len(result) == 0 {
		return nil
	}
	return result
}
