package app

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/ilyakaznacheev/cleanenv"

	"github.com/yungbote/lakeflow/internal/data/db"
	"github.com/yungbote/lakeflow/internal/observability"
	"github.com/yungbote/lakeflow/internal/platform/gcp"
)

const (
	ProfileLocal  = "local"
	ProfileRemote = "remote"
)

// Config is loaded once per process and passed explicitly to New.
// Environment variables override YAML values. Secrets (REMOTE_CREDENTIALS,
// LOG_HASH_SALT) are env-only.
type Config struct {
	Profile      string `yaml:"profile" env:"LAKE_PROFILE" env-default:"local"`
	LogMode      string `yaml:"log_mode" env:"LOG_MODE" env-default:"development"`
	LogRedaction bool   `yaml:"log_redaction" env:"LOG_REDACTION"`
	LogHashSalt  string `yaml:"-" env:"LOG_HASH_SALT"`

	// Workers bounds engine parallelism (partitions, file reads and writes).
	Workers   int    `yaml:"workers" env:"LAKE_WORKERS" env-default:"8"`
	Timezone  string `yaml:"timezone" env:"LAKE_TIMEZONE" env-default:"UTC"`
	MultiLine bool   `yaml:"multi_line" env:"LAKE_MULTI_LINE" env-default:"false"`

	// LedgerDSN enables the run ledger when set (sqlite:<path> or postgres://...).
	LedgerDSN string `yaml:"ledger_dsn" env:"LEDGER_DSN"`
	// MetricsFile, when set, receives a Prometheus textfile snapshot after each run.
	MetricsFile string `yaml:"metrics_file" env:"LAKE_METRICS_FILE"`

	Otel        observability.OtelConfig        `yaml:"otel"`
	DataQuality observability.DataQualityConfig `yaml:"data_quality"`

	Local  LocalProfile  `yaml:"local" env-prefix:"LOCAL_"`
	Remote RemoteProfile `yaml:"remote" env-prefix:"REMOTE_"`
}

type LocalProfile struct {
	EventsInput  string `yaml:"events_input" env:"EVENTS_INPUT" env-default:"data/log-data/*.json"`
	CatalogInput string `yaml:"catalog_input" env:"CATALOG_INPUT" env-default:"data/song-data/*/*/*/*.json"`
	OutputRoot   string `yaml:"output_root" env:"OUTPUT_ROOT" env-default:"data/output/"`
}

type RemoteProfile struct {
	EventsInput  string `yaml:"events_input" env:"EVENTS_INPUT"`
	CatalogInput string `yaml:"catalog_input" env:"CATALOG_INPUT"`
	OutputRoot   string `yaml:"output_root" env:"OUTPUT_ROOT"`
	StorageMode  string `yaml:"storage_mode" env:"STORAGE_MODE"`
	EmulatorHost string `yaml:"emulator_host" env:"STORAGE_EMULATOR_HOST"`
	Credentials  string `yaml:"-" env:"CREDENTIALS"`
}

// Paths are the three locations of the active profile.
type Paths struct {
	EventsInput  string
	CatalogInput string
	OutputRoot   string
}

// LoadConfig reads path (optional; a missing file falls back to env only),
// applies env overrides and validates the result.
func LoadConfig(path string) (*Config, error) {
	cfg, err := readConfig(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func readConfig(path string) (*Config, error) {
	cfg := &Config{}
	path = strings.TrimSpace(path)
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := cleanenv.ReadConfig(path, cfg); err != nil {
				return nil, fmt.Errorf("failed to read %s: %w", path, err)
			}
			return cfg, nil
		} else if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to stat %s: %w", path, err)
		}
	}
	if err := cleanenv.ReadEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}
	return cfg, nil
}

type ConfigErrorCode string

const (
	ConfigErrorInvalidProfile  ConfigErrorCode = "invalid_profile"
	ConfigErrorMissingLocation ConfigErrorCode = "missing_location"
	ConfigErrorInvalidLocation ConfigErrorCode = "invalid_location"
	ConfigErrorInvalidTimezone ConfigErrorCode = "invalid_timezone"
	ConfigErrorInvalidWorkers  ConfigErrorCode = "invalid_workers"
	ConfigErrorInvalidLedger   ConfigErrorCode = "invalid_ledger_dsn"
)

type ConfigError struct {
	Code    ConfigErrorCode
	Profile string
	Field   string
	Cause   error
}

func (e *ConfigError) Error() string {
	if e == nil {
		return "invalid configuration"
	}
	msg := fmt.Sprintf("invalid configuration (code=%s profile=%q", e.Code, e.Profile)
	if e.Field != "" {
		msg += fmt.Sprintf(" field=%s", e.Field)
	}
	msg += ")"
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *ConfigError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// Validate normalizes the profile and checks the active profile's locations.
func (c *Config) Validate() error {
	c.Profile = strings.ToLower(strings.TrimSpace(c.Profile))
	if c.Profile != ProfileLocal && c.Profile != ProfileRemote {
		return &ConfigError{Code: ConfigErrorInvalidProfile, Profile: c.Profile,
			Cause: fmt.Errorf("profile must be %q or %q", ProfileLocal, ProfileRemote)}
	}
	if c.Workers <= 0 {
		return &ConfigError{Code: ConfigErrorInvalidWorkers, Profile: c.Profile, Field: "workers",
			Cause: fmt.Errorf("workers must be positive, got %d", c.Workers)}
	}
	if _, err := c.Location(); err != nil {
		return &ConfigError{Code: ConfigErrorInvalidTimezone, Profile: c.Profile, Field: "timezone", Cause: err}
	}
	if strings.TrimSpace(c.LedgerDSN) != "" {
		if _, _, err := db.ParseDSN(c.LedgerDSN); err != nil {
			return &ConfigError{Code: ConfigErrorInvalidLedger, Profile: c.Profile, Field: "ledger_dsn", Cause: err}
		}
	}

	p := c.Paths()
	fields := []struct{ name, value string }{
		{"events_input", p.EventsInput},
		{"catalog_input", p.CatalogInput},
		{"output_root", p.OutputRoot},
	}
	remote := c.Profile == ProfileRemote
	for _, f := range fields {
		if strings.TrimSpace(f.value) == "" {
			return &ConfigError{Code: ConfigErrorMissingLocation, Profile: c.Profile, Field: f.name,
				Cause: errors.New("location is required")}
		}
		if remote {
			if _, _, err := gcp.ParseLocation(f.value); err != nil {
				return &ConfigError{Code: ConfigErrorInvalidLocation, Profile: c.Profile, Field: f.name, Cause: err}
			}
		} else if gcp.IsGCSLocation(f.value) {
			return &ConfigError{Code: ConfigErrorInvalidLocation, Profile: c.Profile, Field: f.name,
				Cause: fmt.Errorf("local profile cannot use %q", f.value)}
		}
	}
	return nil
}

func (c *Config) Paths() Paths {
	if c.Profile == ProfileRemote {
		return Paths{EventsInput: c.Remote.EventsInput, CatalogInput: c.Remote.CatalogInput, OutputRoot: c.Remote.OutputRoot}
	}
	return Paths{EventsInput: c.Local.EventsInput, CatalogInput: c.Local.CatalogInput, OutputRoot: c.Local.OutputRoot}
}

// Location is the timezone used for timestamp decomposition.
func (c *Config) Location() (*time.Location, error) {
	tz := strings.TrimSpace(c.Timezone)
	if tz == "" || strings.EqualFold(tz, "UTC") {
		return time.UTC, nil
	}
	return time.LoadLocation(tz)
}
