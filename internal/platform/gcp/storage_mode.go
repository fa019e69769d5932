package gcp

import (
	"fmt"
	"net/url"
	"strings"
)

type ObjectStorageMode string

const (
	ObjectStorageModeGCS         ObjectStorageMode = "gcs"
	ObjectStorageModeGCSEmulator ObjectStorageMode = "gcs_emulator"
)

type ObjectStorageConfig struct {
	Mode         ObjectStorageMode
	EmulatorHost string
	// Credentials is a service account JSON document or a path to one.
	// Empty means application default credentials.
	Credentials           string
	CompatibilityFallback bool
}

func IsSupportedObjectStorageMode(mode ObjectStorageMode) bool {
	switch mode {
	case ObjectStorageModeGCS, ObjectStorageModeGCSEmulator:
		return true
	default:
		return false
	}
}

func IsEmulatorObjectStorageMode(mode ObjectStorageMode) bool {
	return mode == ObjectStorageModeGCSEmulator
}

func (cfg ObjectStorageConfig) IsEmulatorMode() bool {
	return IsEmulatorObjectStorageMode(cfg.Mode)
}

func (cfg ObjectStorageConfig) ModeSource() string {
	if cfg.CompatibilityFallback {
		return "compatibility_fallback"
	}
	return "explicit_or_default"
}

type ObjectStorageConfigErrorCode string

const (
	ObjectStorageConfigErrorInvalidMode         ObjectStorageConfigErrorCode = "invalid_mode"
	ObjectStorageConfigErrorMissingEmulatorHost ObjectStorageConfigErrorCode = "missing_emulator_host"
	ObjectStorageConfigErrorInvalidEmulatorHost ObjectStorageConfigErrorCode = "invalid_emulator_host"
	ObjectStorageConfigErrorInvalidLocation     ObjectStorageConfigErrorCode = "invalid_location"
)

type ObjectStorageConfigError struct {
	Code         ObjectStorageConfigErrorCode
	Mode         string
	EmulatorHost string
	Location     string
	Cause        error
}

func (e *ObjectStorageConfigError) Error() string {
	if e == nil {
		return "invalid object storage config"
	}
	switch e.Code {
	case ObjectStorageConfigErrorInvalidMode:
		return fmt.Sprintf(
			"invalid storage_mode=%q (allowed: %q, %q)",
			e.Mode,
			ObjectStorageModeGCS,
			ObjectStorageModeGCSEmulator,
		)
	case ObjectStorageConfigErrorMissingEmulatorHost:
		return fmt.Sprintf(
			"storage_mode=%q requires emulator_host to be set",
			ObjectStorageModeGCSEmulator,
		)
	case ObjectStorageConfigErrorInvalidEmulatorHost:
		return fmt.Sprintf(
			"invalid emulator_host=%q; expected absolute URL like http://fake-gcs:4443",
			e.EmulatorHost,
		)
	case ObjectStorageConfigErrorInvalidLocation:
		return fmt.Sprintf("invalid object location %q; expected gs://bucket/key", e.Location)
	default:
		return "invalid object storage config"
	}
}

func (e *ObjectStorageConfigError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// ResolveObjectStorageConfig normalizes a configured mode. An empty mode
// falls back to the emulator when a host is given and to GCS otherwise.
func ResolveObjectStorageConfig(rawMode, emulatorHost, credentials string) (ObjectStorageConfig, error) {
	cfg := ObjectStorageConfig{
		EmulatorHost: strings.TrimSpace(emulatorHost),
		Credentials:  strings.TrimSpace(credentials),
	}

	rawMode = strings.TrimSpace(rawMode)
	mode := ObjectStorageMode(strings.ToLower(rawMode))

	switch mode {
	case "":
		if cfg.EmulatorHost != "" {
			cfg.Mode = ObjectStorageModeGCSEmulator
			cfg.CompatibilityFallback = true
		} else {
			cfg.Mode = ObjectStorageModeGCS
		}
	case ObjectStorageModeGCS:
		cfg.Mode = ObjectStorageModeGCS
	case ObjectStorageModeGCSEmulator:
		cfg.Mode = ObjectStorageModeGCSEmulator
	default:
		return cfg, &ObjectStorageConfigError{
			Code: ObjectStorageConfigErrorInvalidMode,
			Mode: rawMode,
		}
	}

	if err := ValidateObjectStorageConfig(cfg); err != nil {
		return cfg, err
	}

	return cfg, nil
}

func ValidateObjectStorageConfig(cfg ObjectStorageConfig) error {
	if !IsSupportedObjectStorageMode(cfg.Mode) {
		return &ObjectStorageConfigError{
			Code: ObjectStorageConfigErrorInvalidMode,
			Mode: string(cfg.Mode),
		}
	}
	if !cfg.IsEmulatorMode() {
		return nil
	}

	if cfg.EmulatorHost == "" {
		return &ObjectStorageConfigError{
			Code: ObjectStorageConfigErrorMissingEmulatorHost,
			Mode: string(cfg.Mode),
		}
	}
	u, err := url.Parse(cfg.EmulatorHost)
	if err != nil || strings.TrimSpace(u.Scheme) == "" || strings.TrimSpace(u.Host) == "" {
		return &ObjectStorageConfigError{
			Code:         ObjectStorageConfigErrorInvalidEmulatorHost,
			Mode:         string(cfg.Mode),
			EmulatorHost: cfg.EmulatorHost,
			Cause:        err,
		}
	}

	return nil
}

const Scheme = "gs://"

// IsGCSLocation reports whether location is a gs:// URI.
func IsGCSLocation(location string) bool {
	return strings.HasPrefix(strings.TrimSpace(location), Scheme)
}

// ParseLocation splits gs://bucket/key into its bucket and key. The key may
// be empty when the location names the bucket root.
func ParseLocation(location string) (bucket, key string, err error) {
	location = strings.TrimSpace(location)
	if !strings.HasPrefix(location, Scheme) {
		return "", "", &ObjectStorageConfigError{Code: ObjectStorageConfigErrorInvalidLocation, Location: location}
	}
	rest := strings.TrimPrefix(location, Scheme)
	bucket, key, _ = strings.Cut(rest, "/")
	if bucket == "" {
		return "", "", &ObjectStorageConfigError{Code: ObjectStorageConfigErrorInvalidLocation, Location: location}
	}
	return bucket, key, nil
}

func formatLocation(bucket, key string) string {
	return Scheme + bucket + "/" + key
}
