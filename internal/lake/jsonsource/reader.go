// Package jsonsource loads JSON records from a store into frame rows. Each
// record is projected onto a declared schema: missing keys and values that
// do not fit the column type become nulls, and records that are not valid
// JSON objects are dropped and counted.
package jsonsource

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"sync/atomic"

	"github.com/tidwall/gjson"
	"golang.org/x/sync/errgroup"

	"github.com/yungbote/lakeflow/internal/lake/frame"
	"github.com/yungbote/lakeflow/internal/lake/store"
	"github.com/yungbote/lakeflow/internal/platform/logger"
)

const defaultWorkers = 8

type Options struct {
	// MultiLine treats each file as one JSON document (an object or an
	// array of objects) instead of one record per line.
	MultiLine bool
	Workers   int
}

type Stats struct {
	Files      int
	Unreadable int
	Records    int
	Malformed  int
}

type Reader struct {
	store store.Store
	log   *logger.Logger
	opts  Options
}

func NewReader(st store.Store, log *logger.Logger, opts Options) *Reader {
	if opts.Workers <= 0 {
		opts.Workers = defaultWorkers
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Reader{store: st, log: log.With("component", "jsonsource"), opts: opts}
}

// Read resolves location (a file, a directory or a glob) and returns the
// records grouped into at most Workers partitions, in file order. Missing
// or unreadable inputs yield fewer rows, not an error.
func (r *Reader) Read(ctx context.Context, location string, schema *frame.Schema) ([][]frame.Row, Stats, error) {
	var stats Stats
	files, err := r.resolve(ctx, location)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, stats, ctxErr
		}
		r.log.Warn("Input location unreadable", "location", location, "error", err)
		return nil, stats, nil
	}
	stats.Files = len(files)
	if len(files) == 0 {
		r.log.Warn("Input location matched no files", "location", location)
		return nil, stats, nil
	}

	perFile := make([][]frame.Row, len(files))
	var unreadable, malformed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.opts.Workers)
	for i, key := range files {
		i, key := i, key
		g.Go(func() error {
			rows, bad, err := r.readFile(gctx, key, schema)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				unreadable.Add(1)
				r.log.Warn("Skipping unreadable input file", "file", key, "error", err)
				return nil
			}
			malformed.Add(int64(bad))
			perFile[i] = rows
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, stats, err
	}

	stats.Unreadable = int(unreadable.Load())
	stats.Malformed = int(malformed.Load())
	parts := pack(perFile, r.opts.Workers)
	for _, p := range parts {
		stats.Records += len(p)
	}
	return parts, stats, nil
}

func (r *Reader) resolve(ctx context.Context, location string) ([]string, error) {
	location = strings.TrimSpace(location)
	if location == "" {
		return nil, errors.New("empty location")
	}
	if store.LiteralPrefix(location) != location {
		return r.store.Glob(ctx, location)
	}
	ok, err := r.store.Exists(ctx, location)
	if err != nil {
		return nil, err
	}
	if ok {
		return []string{location}, nil
	}
	keys, err := r.store.List(ctx, location)
	if err != nil {
		return nil, err
	}
	out := keys[:0]
	for _, k := range keys {
		if base := path.Base(k); strings.HasPrefix(base, "_") || strings.HasPrefix(base, ".") {
			continue
		}
		out = append(out, k)
	}
	return out, nil
}

func (r *Reader) readFile(ctx context.Context, key string, schema *frame.Schema) ([]frame.Row, int, error) {
	rc, err := r.store.Open(ctx, key)
	if err != nil {
		return nil, 0, err
	}
	defer rc.Close()

	if r.opts.MultiLine {
		data, err := io.ReadAll(rc)
		if err != nil {
			return nil, 0, fmt.Errorf("read %s: %w", key, err)
		}
		var rows []frame.Row
		bad := decodeDocument(data, schema, &rows)
		return rows, bad, nil
	}

	var rows []frame.Row
	bad := 0
	br := bufio.NewReader(rc)
	for {
		if err := ctx.Err(); err != nil {
			return nil, 0, err
		}
		line, err := br.ReadBytes('\n')
		if len(bytes.TrimSpace(line)) > 0 {
			bad += decodeDocument(line, schema, &rows)
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, 0, fmt.Errorf("read %s: %w", key, err)
		}
	}
	return rows, bad, nil
}

// decodeDocument appends the records held by one JSON document and returns
// how many were malformed. A top-level array contributes each element.
func decodeDocument(doc []byte, schema *frame.Schema, rows *[]frame.Row) int {
	doc = bytes.TrimSpace(doc)
	if len(doc) == 0 {
		return 0
	}
	if !gjson.ValidBytes(doc) {
		return 1
	}
	res := gjson.ParseBytes(doc)
	switch {
	case res.IsObject():
		*rows = append(*rows, project(res, schema))
		return 0
	case res.IsArray():
		bad := 0
		res.ForEach(func(_, el gjson.Result) bool {
			if el.IsObject() {
				*rows = append(*rows, project(el, schema))
			} else {
				bad++
			}
			return true
		})
		return bad
	default:
		return 1
	}
}

func project(obj gjson.Result, schema *frame.Schema) frame.Row {
	row := make(frame.Row, schema.Len())
	obj.ForEach(func(key, value gjson.Result) bool {
		if i, ok := schema.Index(key.String()); ok {
			row[i] = Coerce(value, schema.Field(i).Type)
		}
		return true
	})
	return row
}

// pack concatenates per-file rows into at most n contiguous partitions.
func pack(perFile [][]frame.Row, n int) [][]frame.Row {
	nonEmpty := perFile[:0:0]
	for _, rows := range perFile {
		if len(rows) > 0 {
			nonEmpty = append(nonEmpty, rows)
		}
	}
	if len(nonEmpty) == 0 {
		return nil
	}
	if n <= 0 || n > len(nonEmpty) {
		n = len(nonEmpty)
	}
	size := (len(nonEmpty) + n - 1) / n
	out := make([][]frame.Row, 0, n)
	for start := 0; start < len(nonEmpty); start += size {
		end := min(start+size, len(nonEmpty))
		var part []frame.Row
		for _, rows := range nonEmpty[start:end] {
			part = append(part, rows...)
		}
		out = append(out, part)
	}
	return out
}
