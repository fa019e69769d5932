package parquetio

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/yungbote/lakeflow/internal/lake/frame"
	"github.com/yungbote/lakeflow/internal/lake/store"
	"github.com/yungbote/lakeflow/internal/platform/logger"
)

type Reader struct {
	store   store.Store
	log     *logger.Logger
	workers int
}

func NewReader(st store.Store, log *logger.Logger, workers int) *Reader {
	if workers <= 0 {
		workers = defaultWorkers
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Reader{store: st, log: log.With("component", "parquetio"), workers: workers}
}

// Read loads a complete table into eng. Columns of schema are taken from
// the files by name, or from the col=value directories for partition
// columns; columns found in neither are null.
func (r *Reader) Read(ctx context.Context, eng *frame.Engine, location string, schema *frame.Schema) (*frame.Frame, error) {
	ok, err := r.store.Exists(ctx, store.Join(location, SuccessMarker))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", location, err)
	}
	if !ok {
		return nil, fmt.Errorf("read %s: %w", location, ErrIncompleteTable)
	}
	keys, err := r.store.List(ctx, location)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", location, err)
	}
	root := store.AsDir(location)
	files := map[string]string{}
	for _, k := range keys {
		base := path.Base(k)
		if strings.HasPrefix(base, "_") || strings.HasPrefix(base, ".") || !strings.HasSuffix(base, ".parquet") {
			continue
		}
		files[strings.TrimPrefix(k, root)] = k
	}
	if len(files) == 0 {
		return eng.Empty(schema), nil
	}

	stage, err := os.MkdirTemp("", "lakeflow-read-")
	if err != nil {
		return nil, fmt.Errorf("read %s: staging dir: %w", location, err)
	}
	defer os.RemoveAll(stage)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.workers)
	partCols := map[string]bool{}
	for rel, key := range files {
		rel, key := rel, key
		for _, c := range partitionColumns(rel) {
			partCols[c] = true
		}
		g.Go(func() error {
			return r.download(gctx, key, filepath.Join(stage, filepath.FromSlash(rel)))
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("read %s: %w", location, err)
	}

	scan := fmt.Sprintf("SELECT * FROM read_parquet(%s, hive_partitioning = %t, hive_types_autocast = false, union_by_name = true)",
		frame.QuoteString(filepath.ToSlash(stage)+"/**/*.parquet"), len(partCols) > 0)
	present, err := eng.Columns(ctx, scan)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", location, err)
	}
	have := make(map[string]bool, len(present))
	for _, c := range present {
		have[c] = true
	}
	cols := make([]string, schema.Len())
	for i, f := range schema.Fields() {
		switch {
		case partCols[f.Name]:
			cols[i] = partitionValue(f)
		case have[f.Name]:
			cols[i] = frame.QuoteIdent(f.Name)
		default:
			cols[i] = fmt.Sprintf("CAST(NULL AS %s) AS %s", f.Type.SQLType(), frame.QuoteIdent(f.Name))
		}
	}
	out := eng.FromQuery(ctx, schema, fmt.Sprintf("SELECT %s FROM (%s) AS _s", strings.Join(cols, ", "), scan))
	if err := out.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", location, err)
	}
	r.log.Debug("Table read", "location", location, "files", len(files))
	return out, nil
}

func (r *Reader) download(ctx context.Context, key, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	in, err := r.store.Open(ctx, key)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return fmt.Errorf("%s: %w", key, err)
	}
	return out.Close()
}
