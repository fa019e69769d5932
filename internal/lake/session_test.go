package lake

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yungbote/lakeflow/internal/lake/frame"
	"github.com/yungbote/lakeflow/internal/lake/parquetio"
	"github.com/yungbote/lakeflow/internal/lake/store"
)

var logSchema = frame.MustSchema(
	frame.Field{Name: "page", Type: frame.String},
	frame.Field{Name: "ts", Type: frame.Int64},
)

func newSession(t *testing.T, opts Options) *Session {
	t.Helper()
	s, err := NewSession(store.NewLocal(), nil, opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSessionJSONToParquet(t *testing.T) {
	ctx := context.Background()
	dir := filepath.ToSlash(t.TempDir())
	require.NoError(t, os.WriteFile(filepath.Join(dir, "log.json"),
		[]byte("{\"page\":\"NextSong\",\"ts\":1541105830796}\n{\"page\":\"Home\",\"ts\":1541106106796}\nbroken\n"), 0o644))

	loc, err := time.LoadLocation("America/Chicago")
	require.NoError(t, err)
	s := newSession(t, Options{Workers: 2, Location: loc})
	assert.Equal(t, "America/Chicago", s.Engine().Zone())

	f, stats, err := s.ReadJSON(ctx, store.Join(dir, "log.json"), logSchema)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Malformed)

	out := store.Join(dir, "out", "pages")
	ws, err := s.WriteParquet(ctx, f.Where(frame.Col("page").Eq("NextSong")), out, parquetio.WriteOptions{RunID: "r1", PartitionBy: []string{"page"}})
	require.NoError(t, err)
	assert.Equal(t, 1, ws.Rows)

	keys, err := s.Store().List(ctx, out)
	require.NoError(t, err)
	assert.Contains(t, keys, out+"/page=NextSong/part-0-r1.parquet")

	back, err := s.ReadParquet(ctx, out, logSchema)
	require.NoError(t, err)
	rows, err := back.Rows(ctx)
	require.NoError(t, err)
	assert.Equal(t, []frame.Row{{"NextSong", int64(1541105830796)}}, rows)
}

func TestSessionReadJSONMissingInputIsEmpty(t *testing.T) {
	ctx := context.Background()
	s := newSession(t, Options{})
	f, stats, err := s.ReadJSON(ctx, store.Join(filepath.ToSlash(t.TempDir()), "nothing", "*.json"), logSchema)
	require.NoError(t, err)
	assert.Zero(t, stats.Files)
	n, err := f.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSessionReadParquetIncomplete(t *testing.T) {
	s := newSession(t, Options{})
	_, err := s.ReadParquet(context.Background(), store.Join(filepath.ToSlash(t.TempDir()), "items"), logSchema)
	require.ErrorIs(t, err, parquetio.ErrIncompleteTable)
}
