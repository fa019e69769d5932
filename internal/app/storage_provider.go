package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/yungbote/lakeflow/internal/lake/store"
	"github.com/yungbote/lakeflow/internal/platform/gcp"
	"github.com/yungbote/lakeflow/internal/platform/logger"
)

// ObjectStore is a store that may hold client resources.
type ObjectStore interface {
	store.Store
	Close() error
}

var newBucketStore = func(ctx context.Context, log *logger.Logger, cfg gcp.ObjectStorageConfig) (ObjectStore, error) {
	return gcp.NewBucketStore(ctx, log, cfg)
}

type localObjectStore struct {
	*store.Local
}

func (localObjectStore) Close() error { return nil }

type StorageProviderBootstrapErrorCode string

const (
	StorageProviderBootstrapErrorInvalidMode         StorageProviderBootstrapErrorCode = "invalid_mode"
	StorageProviderBootstrapErrorMissingEmulatorHost StorageProviderBootstrapErrorCode = "missing_emulator_host"
	StorageProviderBootstrapErrorInvalidEmulatorHost StorageProviderBootstrapErrorCode = "invalid_emulator_host"
	StorageProviderBootstrapErrorConnectFailed       StorageProviderBootstrapErrorCode = "connect_failed"
)

type StorageProviderBootstrapError struct {
	Code         StorageProviderBootstrapErrorCode
	Mode         string
	EmulatorHost string
	Cause        error
}

func (e *StorageProviderBootstrapError) Error() string {
	if e == nil {
		return "object storage bootstrap failed"
	}
	return fmt.Sprintf(
		"object storage bootstrap failed (code=%s mode=%q emulator_host=%q): %v",
		e.Code,
		e.Mode,
		e.EmulatorHost,
		e.Cause,
	)
}

func (e *StorageProviderBootstrapError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// resolveObjectStore returns the local filesystem for the local profile and
// a GCS bucket store for the remote one.
func resolveObjectStore(ctx context.Context, log *logger.Logger, cfg *Config) (ObjectStore, error) {
	if cfg.Profile != ProfileRemote {
		log.Info("Selecting object storage provider", "profile", cfg.Profile, "mode", "local")
		return localObjectStore{Local: store.NewLocal()}, nil
	}

	remote := cfg.Remote
	storageCfg, err := gcp.ResolveObjectStorageConfig(remote.StorageMode, remote.EmulatorHost, remote.Credentials)
	if err != nil {
		classified := classifyStorageProviderBootstrapError(storageCfg, err)
		log.Error(
			"Object storage provider selection failed",
			"mode", remote.StorageMode,
			"emulator_host", remote.EmulatorHost,
			"error_code", storageProviderBootstrapErrorCode(classified),
			"error", classified,
		)
		return nil, classified
	}

	log.Info(
		"Selecting object storage provider",
		"profile", cfg.Profile,
		"mode", storageCfg.Mode,
		"mode_source", storageCfg.ModeSource(),
		"compatibility_fallback", storageCfg.CompatibilityFallback,
		"emulator_host", storageCfg.EmulatorHost,
	)

	bucket, err := newBucketStore(ctx, log, storageCfg)
	if err != nil {
		classified := classifyStorageProviderBootstrapError(storageCfg, err)
		log.Error(
			"Object storage provider bootstrap failed",
			"mode", storageCfg.Mode,
			"emulator_host", storageCfg.EmulatorHost,
			"error_code", storageProviderBootstrapErrorCode(classified),
			"error", classified,
		)
		return nil, classified
	}
	return bucket, nil
}

func classifyStorageProviderBootstrapError(storageCfg gcp.ObjectStorageConfig, err error) error {
	code := StorageProviderBootstrapErrorConnectFailed
	var cfgErr *gcp.ObjectStorageConfigError
	if errors.As(err, &cfgErr) {
		switch cfgErr.Code {
		case gcp.ObjectStorageConfigErrorInvalidMode:
			code = StorageProviderBootstrapErrorInvalidMode
		case gcp.ObjectStorageConfigErrorMissingEmulatorHost:
			code = StorageProviderBootstrapErrorMissingEmulatorHost
		case gcp.ObjectStorageConfigErrorInvalidEmulatorHost:
			code = StorageProviderBootstrapErrorInvalidEmulatorHost
		}
		if storageCfg.Mode == "" {
			storageCfg.Mode = gcp.ObjectStorageMode(cfgErr.Mode)
		}
		if storageCfg.EmulatorHost == "" {
			storageCfg.EmulatorHost = cfgErr.EmulatorHost
		}
	}
	return &StorageProviderBootstrapError{
		Code:         code,
		Mode:         string(storageCfg.Mode),
		EmulatorHost: storageCfg.EmulatorHost,
		Cause:        err,
	}
}

func storageProviderBootstrapErrorCode(err error) StorageProviderBootstrapErrorCode {
	var bootstrapErr *StorageProviderBootstrapError
	if errors.As(err, &bootstrapErr) {
		if bootstrapErr.Code != "" {
			return bootstrapErr.Code
		}
	}
	return StorageProviderBootstrapErrorConnectFailed
}
