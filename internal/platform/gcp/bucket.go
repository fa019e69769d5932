package gcp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"cloud.google.com/go/storage"
	"golang.org/x/sync/errgroup"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/yungbote/lakeflow/internal/lake/store"
	"github.com/yungbote/lakeflow/internal/platform/logger"
)

const deleteConcurrency = 16

// BucketStore serves gs://bucket/key locations from Cloud Storage or a
// storage emulator. A single instance can address any bucket the
// credentials reach.
type BucketStore struct {
	log          *logger.Logger
	client       *storage.Client
	mode         ObjectStorageMode
	emulatorHost string
}

var _ store.Store = (*BucketStore)(nil)

func NewBucketStore(ctx context.Context, log *logger.Logger, cfg ObjectStorageConfig) (*BucketStore, error) {
	if err := ValidateObjectStorageConfig(cfg); err != nil {
		return nil, fmt.Errorf("validate object storage config: %w", err)
	}
	serviceLog := log.With("service", "BucketStore")

	client, err := newStorageClientForMode(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}

	serviceLog.Info(
		"Object storage initialized",
		"mode", cfg.Mode,
		"mode_source", cfg.ModeSource(),
		"emulator_host", cfg.EmulatorHost,
		"explicit_credentials", cfg.Credentials != "",
	)

	return &BucketStore{
		log:          serviceLog,
		client:       client,
		mode:         cfg.Mode,
		emulatorHost: strings.TrimRight(strings.TrimSpace(cfg.EmulatorHost), "/"),
	}, nil
}

func newStorageClientForMode(ctx context.Context, cfg ObjectStorageConfig) (*storage.Client, error) {
	switch cfg.Mode {
	case ObjectStorageModeGCS:
		opts := ClientOptions(cfg.Credentials)
		opts = append(opts, option.WithScopes(storage.ScopeReadWrite))
		return storage.NewClient(ctx, opts...)
	case ObjectStorageModeGCSEmulator:
		return storage.NewClient(ctx,
			option.WithEndpoint(EmulatorEndpoint(cfg.EmulatorHost)),
			option.WithoutAuthentication(),
			storage.WithJSONReads(),
		)
	default:
		return nil, &ObjectStorageConfigError{
			Code: ObjectStorageConfigErrorInvalidMode,
			Mode: string(cfg.Mode),
		}
	}
}

// EmulatorEndpoint is the JSON API endpoint of an emulator host such as
// "http://localhost:4443/".
func EmulatorEndpoint(host string) string {
	return strings.TrimRight(strings.TrimSpace(host), "/") + "/storage/v1/"
}

func (bs *BucketStore) Close() error {
	if bs == nil || bs.client == nil {
		return nil
	}
	return bs.client.Close()
}

func (bs *BucketStore) Glob(ctx context.Context, pattern string) ([]string, error) {
	bucket, keyPattern, err := ParseLocation(pattern)
	if err != nil {
		return nil, err
	}
	if strings.ContainsAny(bucket, "*?[") {
		return nil, fmt.Errorf("glob %q: wildcards are not allowed in the bucket name", pattern)
	}
	if _, err := store.MatchKey(keyPattern, keyPattern); err != nil {
		return nil, fmt.Errorf("glob %q: %w", pattern, err)
	}
	names, err := bs.listNames(ctx, bucket, store.LiteralPrefix(keyPattern))
	if err != nil {
		return nil, fmt.Errorf("glob %q: %w", pattern, err)
	}
	out := make([]string, 0, len(names))
	for _, name := range names {
		ok, err := store.MatchKey(keyPattern, name)
		if err != nil {
			return nil, fmt.Errorf("glob %q: %w", pattern, err)
		}
		if ok {
			out = append(out, formatLocation(bucket, name))
		}
	}
	return out, nil
}

func (bs *BucketStore) List(ctx context.Context, prefix string) ([]string, error) {
	bucket, key, err := ParseLocation(prefix)
	if err != nil {
		return nil, err
	}
	if key != "" {
		key = store.AsDir(key)
	}
	names, err := bs.listNames(ctx, bucket, key)
	if err != nil {
		return nil, fmt.Errorf("list %q: %w", prefix, err)
	}
	out := make([]string, len(names))
	for i, name := range names {
		out[i] = formatLocation(bucket, name)
	}
	return out, nil
}

func (bs *BucketStore) listNames(ctx context.Context, bucket, prefix string) ([]string, error) {
	it := bs.client.Bucket(bucket).Objects(ctx, &storage.Query{Prefix: prefix})
	out := []string{}
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, err
		}
		if strings.HasSuffix(attrs.Name, "/") {
			continue
		}
		out = append(out, attrs.Name)
	}
	sort.Strings(out)
	return out, nil
}

// readCloserWithCancel ties the reader's context to Close so the stream
// outlives the call that opened it.
type readCloserWithCancel struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (r *readCloserWithCancel) Close() error {
	err := r.ReadCloser.Close()
	if r.cancel != nil {
		r.cancel()
	}
	return err
}

func (bs *BucketStore) Open(ctx context.Context, location string) (io.ReadCloser, error) {
	bucket, key, err := ParseLocation(location)
	if err != nil {
		return nil, err
	}
	ctx2, cancel := context.WithCancel(ctx)
	r, err := bs.client.Bucket(bucket).Object(key).NewReader(ctx2)
	if err != nil {
		cancel()
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, fmt.Errorf("%w: %s", store.ErrNotFound, location)
		}
		return nil, fmt.Errorf("failed to open GCS reader: %w", err)
	}
	return &readCloserWithCancel{ReadCloser: r, cancel: cancel}, nil
}

func (bs *BucketStore) Create(ctx context.Context, location string) (io.WriteCloser, error) {
	bucket, key, err := ParseLocation(location)
	if err != nil {
		return nil, err
	}
	if key == "" || strings.HasSuffix(key, "/") {
		return nil, fmt.Errorf("create %q: not an object key", location)
	}
	w := bs.client.Bucket(bucket).Object(key).NewWriter(ctx)
	if ct := contentTypeForKey(key); ct != "" {
		w.ContentType = ct
	}
	return w, nil
}

func contentTypeForKey(key string) string {
	s := strings.ToLower(strings.TrimSpace(key))
	switch {
	case strings.HasSuffix(s, ".parquet"):
		return "application/vnd.apache.parquet"
	case strings.HasSuffix(s, ".json"):
		return "application/json"
	case strings.HasSuffix(s, "/_success"):
		return "text/plain"
	default:
		return ""
	}
}

func (bs *BucketStore) Exists(ctx context.Context, location string) (bool, error) {
	bucket, key, err := ParseLocation(location)
	if err != nil {
		return false, err
	}
	if key == "" || strings.HasSuffix(key, "/") {
		return false, nil
	}
	_, err = bs.client.Bucket(bucket).Object(key).Attrs(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to fetch GCS object attrs: %w", err)
	}
	return true, nil
}

func (bs *BucketStore) DeletePrefix(ctx context.Context, prefix string) error {
	bucket, key, err := ParseLocation(prefix)
	if err != nil {
		return err
	}
	if strings.Trim(key, "/") == "" {
		return fmt.Errorf("delete prefix: refusing to remove bucket root %q", prefix)
	}
	names, err := bs.listNames(ctx, bucket, store.AsDir(key))
	if err != nil {
		return fmt.Errorf("delete prefix %q: %w", prefix, err)
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(deleteConcurrency)
	for _, name := range names {
		name := name
		g.Go(func() error {
			err := bs.client.Bucket(bucket).Object(name).Delete(gctx)
			if err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
				return fmt.Errorf("failed to delete GCS object %q in bucket %q: %w", name, bucket, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	bs.log.Debug("Deleted prefix", "location", prefix, "objects", len(names))
	return nil
}
