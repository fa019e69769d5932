package store

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJoin(t *testing.T) {
	assert.Equal(t, "gs://bucket/out/items/_SUCCESS", Join("gs://bucket/out/", "items", "_SUCCESS"))
	assert.Equal(t, "data/out/items", Join("data/out", "items"))
	assert.Equal(t, "/tmp/x/a/b", Join("/tmp/x", "a/b"))
	assert.Equal(t, "root", Join("root"))
	assert.Equal(t, "a/b", Join("", "a", "b"))
}

func TestLiteralPrefixAndMatch(t *testing.T) {
	assert.Equal(t, "in/song_data/", LiteralPrefix("in/song_data/*/*/*/*.json"))
	assert.Equal(t, "in/log.json", LiteralPrefix("in/log.json"))

	ok, err := MatchKey("in/*/*.json", "in/A/x.json")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = MatchKey("in/*.json", "in/A/x.json")
	require.NoError(t, err)
	assert.False(t, ok)
}

func writeFile(t *testing.T, s Store, key, body string) {
	t.Helper()
	w, err := s.Create(context.Background(), key)
	require.NoError(t, err)
	_, err = io.WriteString(w, body)
	require.NoError(t, err)
	require.NoError(t, w.Close())
}

func TestLocalRoundTrip(t *testing.T) {
	ctx := context.Background()
	dir := filepath.ToSlash(t.TempDir())
	s := NewLocal()

	key := Join(dir, "song_data", "A", "B", "one.json")
	writeFile(t, s, key, `{"song_id":"S1"}`)
	writeFile(t, s, Join(dir, "song_data", "A", "C", "two.json"), `{}`)
	writeFile(t, s, Join(dir, "song_data", "A", "notes.txt"), `skip`)

	ok, err := s.Exists(ctx, key)
	require.NoError(t, err)
	assert.True(t, ok)

	r, err := s.Open(ctx, key)
	require.NoError(t, err)
	body, err := io.ReadAll(r)
	require.NoError(t, err)
	require.NoError(t, r.Close())
	assert.Equal(t, `{"song_id":"S1"}`, string(body))

	keys, err := s.Glob(ctx, Join(dir, "song_data/*/*/*.json"))
	require.NoError(t, err)
	assert.Equal(t, []string{
		Join(dir, "song_data", "A", "B", "one.json"),
		Join(dir, "song_data", "A", "C", "two.json"),
	}, keys)

	all, err := s.List(ctx, Join(dir, "song_data"))
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestLocalMissing(t *testing.T) {
	ctx := context.Background()
	dir := filepath.ToSlash(t.TempDir())
	s := NewLocal()

	_, err := s.Open(ctx, Join(dir, "nope"))
	require.ErrorIs(t, err, ErrNotFound)

	ok, err := s.Exists(ctx, Join(dir, "nope"))
	require.NoError(t, err)
	assert.False(t, ok)

	keys, err := s.List(ctx, Join(dir, "nope"))
	require.NoError(t, err)
	assert.Empty(t, keys)

	keys, err = s.Glob(ctx, Join(dir, "*.json"))
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestLocalDeletePrefix(t *testing.T) {
	ctx := context.Background()
	dir := filepath.ToSlash(t.TempDir())
	s := NewLocal()

	writeFile(t, s, Join(dir, "items", "release_year=2000", "part-00000.parquet"), "x")
	require.NoError(t, s.DeletePrefix(ctx, Join(dir, "items")))
	_, err := os.Stat(filepath.FromSlash(Join(dir, "items")))
	assert.True(t, os.IsNotExist(err))

	require.NoError(t, s.DeletePrefix(ctx, Join(dir, "items")))
	require.Error(t, s.DeletePrefix(ctx, ""))
	require.Error(t, s.DeletePrefix(ctx, "/"))
}
