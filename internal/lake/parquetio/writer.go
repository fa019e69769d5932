// Package parquetio persists frames as hive-partitioned parquet tables and
// reads them back. A table is a directory holding part files, optionally
// nested under col=value directories, and a _SUCCESS marker written last.
// The engine encodes and decodes the files in a local staging directory;
// the store moves them to and from the table location.
package parquetio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/yungbote/lakeflow/internal/lake/frame"
	"github.com/yungbote/lakeflow/internal/lake/store"
	"github.com/yungbote/lakeflow/internal/platform/logger"
)

const SuccessMarker = "_SUCCESS"

var ErrIncompleteTable = errors.New("parquetio: table has no _SUCCESS marker")

const defaultWorkers = 8

type WriteOptions struct {
	// RunID is embedded in part file names. Defaults to a random uuid.
	RunID       string
	PartitionBy []string
}

type WriteStats struct {
	Location   string
	Rows       int
	Files      int
	Partitions int
}

type Writer struct {
	store   store.Store
	log     *logger.Logger
	workers int
}

func NewWriter(st store.Store, log *logger.Logger, workers int) *Writer {
	if workers <= 0 {
		workers = defaultWorkers
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Writer{store: st, log: log.With("component", "parquetio"), workers: workers}
}

// Write replaces the table at location with the contents of f, splitting
// rows into directories by the values of opts.PartitionBy.
func (w *Writer) Write(ctx context.Context, f *frame.Frame, location string, opts WriteOptions) (WriteStats, error) {
	stats := WriteStats{Location: location}
	if err := f.Err(); err != nil {
		return stats, fmt.Errorf("write %s: %w", location, err)
	}
	schema := f.Schema()
	for _, c := range opts.PartitionBy {
		if _, ok := schema.Index(c); !ok {
			return stats, fmt.Errorf("write %s: partition column %q: %w", location, c, frame.ErrUnknownColumn)
		}
	}
	runID := opts.RunID
	if runID == "" {
		runID = uuid.NewString()
	}

	stage, err := os.MkdirTemp("", "lakeflow-write-")
	if err != nil {
		return stats, fmt.Errorf("write %s: staging dir: %w", location, err)
	}
	defer os.RemoveAll(stage)

	// One evaluation feeds both the row count and the files.
	snap := f.Materialize(ctx)
	if err := snap.Err(); err != nil {
		return stats, fmt.Errorf("write %s: %w", location, err)
	}
	if snap != f {
		defer func() { _ = snap.Drop(context.WithoutCancel(ctx)) }()
	}
	if stats.Rows, err = snap.Count(ctx); err != nil {
		return stats, fmt.Errorf("write %s: %w", location, err)
	}
	if err := snap.Engine().Exec(ctx, copyStatement(snap, filepath.ToSlash(stage), runID, opts.PartitionBy)); err != nil {
		return stats, fmt.Errorf("write %s: encode: %w", location, err)
	}

	files, err := stagedFiles(stage)
	if err != nil {
		return stats, fmt.Errorf("write %s: %w", location, err)
	}

	if err := w.store.DeletePrefix(ctx, location); err != nil {
		return stats, fmt.Errorf("write %s: clear table: %w", location, err)
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.workers)
	dirs := make(map[string]struct{})
	for _, rel := range files {
		rel := rel
		dirs[path.Dir(rel)] = struct{}{}
		g.Go(func() error {
			return w.upload(gctx, filepath.Join(stage, filepath.FromSlash(rel)), store.Join(location, rel))
		})
	}
	if err := g.Wait(); err != nil {
		return stats, fmt.Errorf("write %s: %w", location, err)
	}

	marker, err := w.store.Create(ctx, store.Join(location, SuccessMarker))
	if err != nil {
		return stats, fmt.Errorf("write %s: marker: %w", location, err)
	}
	if err := marker.Close(); err != nil {
		return stats, fmt.Errorf("write %s: marker: %w", location, err)
	}

	stats.Files = len(files)
	if len(opts.PartitionBy) > 0 {
		stats.Partitions = len(dirs)
	}
	w.log.Debug("Table written", "location", location, "rows", stats.Rows, "files", stats.Files, "partitions", stats.Partitions)
	return stats, nil
}

// copyStatement encodes f under dir. Partition columns live only in the
// directory names.
func copyStatement(f *frame.Frame, dir, runID string, partitionBy []string) string {
	pattern := "part-{i}-" + runID
	if len(partitionBy) == 0 {
		return fmt.Sprintf("COPY (%s) TO %s (FORMAT PARQUET, COMPRESSION SNAPPY)",
			f.SQL(), frame.QuoteString(dir+"/part-0-"+runID+".parquet"))
	}
	isPart := make(map[string]bool, len(partitionBy))
	keys := make([]string, len(partitionBy))
	for i, c := range partitionBy {
		isPart[c] = true
		keys[i] = frame.QuoteIdent(c)
	}
	var cols []string
	for _, name := range f.Schema().Names() {
		if !isPart[name] {
			cols = append(cols, frame.QuoteIdent(name))
		}
	}
	for _, c := range partitionBy {
		cols = append(cols, partitionKey(c))
	}
	return fmt.Sprintf("COPY (SELECT %s FROM (%s) AS _t) TO %s (FORMAT PARQUET, COMPRESSION SNAPPY, PARTITION_BY (%s), FILENAME_PATTERN %s)",
		strings.Join(cols, ", "), f.SQL(), frame.QuoteString(dir), strings.Join(keys, ", "), frame.QuoteString(pattern))
}

// stagedFiles lists the files under dir as slash-separated relative paths.
func stagedFiles(dir string) ([]string, error) {
	var out []string
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		out = append(out, filepath.ToSlash(rel))
		return nil
	})
	return out, err
}

func (w *Writer) upload(ctx context.Context, src, key string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := w.store.Create(ctx, key)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return fmt.Errorf("%s: %w", key, err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	return nil
}
