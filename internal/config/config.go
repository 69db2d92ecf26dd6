package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Thresholds is the immutable-per-run set of named limits driving every
// decision. Loaded once at startup; services never mutate it.
type Thresholds struct {
	// Sliding-window rate limits. Burst is additive headroom on the minute
	// window, not a separate bucket.
	PerIPPerMinute       int `yaml:"per_ip_per_minute" validate:"gt=0"`
	PerIPPerHour         int `yaml:"per_ip_per_hour" validate:"gt=0"`
	PerIPPerDay          int `yaml:"per_ip_per_day" validate:"gt=0"`
	Burst                int `yaml:"burst" validate:"gte=0"`
	PerEndpointPerMinute int `yaml:"per_endpoint_per_minute" validate:"gt=0"`
	PerAPIKeyPerMinute   int `yaml:"per_api_key_per_minute" validate:"gt=0"`

	// Abuse pattern analysis.
	RapidRequests     int `yaml:"rapid_requests" validate:"gt=0"`      // last 10s
	ErrorRatePercent  int `yaml:"error_rate_percent" validate:"gt=0"`  // over 1h
	ExcessiveRequests int `yaml:"excessive_requests" validate:"gt=0"`  // over 1h

	// Abuse behavioral analysis.
	EndpointDiversity  int `yaml:"endpoint_diversity" validate:"gt=0"`   // distinct endpoints, 5m
	UserAgentDiversity int `yaml:"user_agent_diversity" validate:"gt=0"` // distinct agents, 1h

	// DDoS protection.
	DDoSVolumetric   int      `yaml:"ddos_volumetric" validate:"gt=0"` // req per 60s per IP
	ConnectionRate   int      `yaml:"connection_rate" validate:"gt=0"` // concurrent connections
	GeoFilterEnabled bool     `yaml:"geo_filter_enabled"`
	AllowedCountries []string `yaml:"allowed_countries" validate:"dive,iso3166_1_alpha2"`

	// Event retention for housekeeping.
	RetentionHours int `yaml:"retention_hours" validate:"gt=0"`

	// Escalation.
	EscalationLookbackHours int `yaml:"escalation_lookback_hours" validate:"gt=0"`
	Tier1Minutes            int `yaml:"tier1_minutes" validate:"gt=0"`
	Tier2Minutes            int `yaml:"tier2_minutes" validate:"gt=0"`
	Tier3Minutes            int `yaml:"tier3_minutes" validate:"gt=0"`
}

// Config captures runtime configuration sourced from environment variables,
// with thresholds optionally overridden from a YAML file.
type Config struct {
	Environment    string
	HTTPPort       string
	DatabasePath   string
	JWTSecret      string
	ThresholdsFile string
	GeoAPIBaseURL  string
	Thresholds     Thresholds
}

// DefaultThresholds returns the shipped limits.
func DefaultThresholds() Thresholds {
	return Thresholds{
		PerIPPerMinute:          60,
		PerIPPerHour:            1000,
		PerIPPerDay:             10000,
		Burst:                   10,
		PerEndpointPerMinute:    30,
		PerAPIKeyPerMinute:      120,
		RapidRequests:           10,
		ErrorRatePercent:        50,
		ExcessiveRequests:       1000,
		EndpointDiversity:       20,
		UserAgentDiversity:      10,
		DDoSVolumetric:          100,
		ConnectionRate:          500,
		GeoFilterEnabled:        false,
		AllowedCountries:        nil,
		RetentionHours:          720,
		EscalationLookbackHours: 24,
		Tier1Minutes:            15,
		Tier2Minutes:            60,
		Tier3Minutes:            1440,
	}
}

// Load reads env vars and falls back to defaults so the server can boot with
// zero configuration. ARGUS_THRESHOLDS points at an optional YAML overlay.
func Load() (Config, error) {
	cfg := Config{
		Environment:    getEnv("ARGUS_ENV", "development"),
		HTTPPort:       getEnv("ARGUS_HTTP_PORT", "8080"),
		DatabasePath:   getEnv("ARGUS_DB_PATH", filepath.Join("data", "argus.db")),
		JWTSecret:      getEnv("ARGUS_JWT_SECRET", ""),
		ThresholdsFile: getEnv("ARGUS_THRESHOLDS", ""),
		GeoAPIBaseURL:  getEnv("ARGUS_GEO_API_URL", "http://ip-api.com/json"),
		Thresholds:     DefaultThresholds(),
	}

	if cfg.ThresholdsFile != "" {
		if err := loadThresholdsFile(cfg.ThresholdsFile, &cfg.Thresholds); err != nil {
			return Config{}, err
		}
	}

	if err := cfg.Thresholds.Validate(); err != nil {
		return Config{}, err
	}

	if err := os.MkdirAll(filepath.Dir(cfg.DatabasePath), 0o755); err != nil {
		return Config{}, fmt.Errorf("ensure data directory: %w", err)
	}

	return cfg, nil
}

// Validate enforces that every limit is a positive integer (burst may be
// zero), country codes are ISO 3166-1 alpha-2, and escalation tiers are
// monotonically non-decreasing.
func (t *Thresholds) Validate() error {
	for i, code := range t.AllowedCountries {
		t.AllowedCountries[i] = strings.ToUpper(strings.TrimSpace(code))
	}

	if err := validator.New().Struct(t); err != nil {
		return fmt.Errorf("invalid thresholds: %w", err)
	}

	if t.Tier1Minutes > t.Tier2Minutes || t.Tier2Minutes > t.Tier3Minutes {
		return fmt.Errorf("invalid thresholds: escalation tiers must be non-decreasing (%d, %d, %d)",
			t.Tier1Minutes, t.Tier2Minutes, t.Tier3Minutes)
	}

	return nil
}

// AllowsCountry reports whether a resolved country code passes the geo filter.
func (t *Thresholds) AllowsCountry(code string) bool {
	code = strings.ToUpper(strings.TrimSpace(code))
	for _, allowed := range t.AllowedCountries {
		if allowed == code {
			return true
		}
	}
	return false
}

func loadThresholdsFile(path string, into *Thresholds) error {
	data, err := os.ReadFile(path) // #nosec G304 -- operator-supplied path
	if err != nil {
		return fmt.Errorf("read thresholds file: %w", err)
	}
	if err := yaml.Unmarshal(data, into); err != nil {
		return fmt.Errorf("parse thresholds file: %w", err)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}

	return fallback
}
