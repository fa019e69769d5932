package jsonsource

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/yungbote/lakeflow/internal/lake/frame"
	"github.com/yungbote/lakeflow/internal/lake/store"
)

var songSchema = frame.MustSchema(
	frame.Field{Name: "song_id", Type: frame.String},
	frame.Field{Name: "year", Type: frame.Int64},
	frame.Field{Name: "duration", Type: frame.Float64},
)

func writeInput(t *testing.T, dir, rel, body string) {
	t.Helper()
	p := filepath.Join(dir, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
}

func flatten(parts [][]frame.Row) []frame.Row {
	var out []frame.Row
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

func TestReadJSONLinesGlob(t *testing.T) {
	dir := t.TempDir()
	writeInput(t, dir, "song_data/A/a.json", `{"song_id":"S1","year":2000,"duration":180.5,"extra":true}`)
	writeInput(t, dir, "song_data/B/b.json", "{\"song_id\":\"S2\",\"year\":null}\n\n{\"song_id\":\"S3\",\"duration\":\"long\"}\n")
	writeInput(t, dir, "song_data/B/notes.txt", `ignored`)

	r := NewReader(store.NewLocal(), nil, Options{Workers: 4})
	parts, stats, err := r.Read(context.Background(), filepath.ToSlash(filepath.Join(dir, "song_data/*/*.json")), songSchema)
	require.NoError(t, err)

	assert.Equal(t, 2, stats.Files)
	assert.Equal(t, 3, stats.Records)
	assert.Zero(t, stats.Malformed)
	assert.Len(t, parts, 2)

	rows := flatten(parts)
	assert.Equal(t, frame.Row{"S1", int64(2000), 180.5}, rows[0])
	assert.Equal(t, frame.Row{"S2", nil, nil}, rows[1])
	assert.Equal(t, frame.Row{"S3", nil, nil}, rows[2])
}

func TestReadDropsMalformedRecords(t *testing.T) {
	dir := t.TempDir()
	writeInput(t, dir, "log.json", "{\"song_id\":\"S1\"}\n{not json\n42\n[{\"song_id\":\"S2\"},7]\n")

	r := NewReader(store.NewLocal(), nil, Options{})
	parts, stats, err := r.Read(context.Background(), filepath.ToSlash(filepath.Join(dir, "log.json")), songSchema)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Files)
	assert.Equal(t, 3, stats.Malformed)

	rows := flatten(parts)
	require.Len(t, rows, 2)
	assert.Equal(t, "S1", rows[0][0])
	assert.Equal(t, "S2", rows[1][0])
}

func TestReadMultiLine(t *testing.T) {
	dir := t.TempDir()
	writeInput(t, dir, "in/one.json", "{\n  \"song_id\": \"S1\",\n  \"year\": 1999\n}\n")
	writeInput(t, dir, "in/many.json", "[\n {\"song_id\": \"S2\"},\n {\"song_id\": \"S3\"}\n]")
	writeInput(t, dir, "in/_SUCCESS", "")

	r := NewReader(store.NewLocal(), nil, Options{MultiLine: true, Workers: 1})
	parts, stats, err := r.Read(context.Background(), filepath.ToSlash(filepath.Join(dir, "in")), songSchema)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Files)
	require.Len(t, parts, 1)
	assert.Len(t, parts[0], 3)
}

func TestReadMissingLocationIsEmpty(t *testing.T) {
	dir := t.TempDir()
	r := NewReader(store.NewLocal(), nil, Options{})

	parts, stats, err := r.Read(context.Background(), filepath.ToSlash(filepath.Join(dir, "nope/*.json")), songSchema)
	require.NoError(t, err)
	assert.Empty(t, parts)
	assert.Zero(t, stats.Records)

	parts, _, err = r.Read(context.Background(), filepath.ToSlash(filepath.Join(dir, "nope")), songSchema)
	require.NoError(t, err)
	assert.Empty(t, parts)
}

func TestReadCanceled(t *testing.T) {
	dir := t.TempDir()
	writeInput(t, dir, "a.json", `{"song_id":"S1"}`)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := NewReader(store.NewLocal(), nil, Options{})
	_, _, err := r.Read(ctx, filepath.ToSlash(filepath.Join(dir, "*.json")), songSchema)
	require.ErrorIs(t, err, context.Canceled)
}

func TestCoerce(t *testing.T) {
	doc := gjson.Parse(`{"s":"x","i":12,"f":1.5,"b":true,"n":null,"big":1e3,"ts":"2018-11-04T13:05:00Z","msf":1541106106796.0,"mse":1.541106106796e12,"huge":1e19}`)
	cases := []struct {
		key  string
		typ  frame.Type
		want any
	}{
		{"s", frame.String, "x"},
		{"i", frame.String, "12"},
		{"b", frame.String, "true"},
		{"n", frame.String, nil},
		{"missing", frame.String, nil},
		{"i", frame.Int64, int64(12)},
		{"f", frame.Int64, nil},
		{"s", frame.Int64, nil},
		{"big", frame.Int64, int64(1000)},
		{"msf", frame.Int64, int64(1541106106796)},
		{"mse", frame.Int64, int64(1541106106796)},
		{"huge", frame.Int64, nil},
		{"i", frame.Float64, 12.0},
		{"f", frame.Float64, 1.5},
		{"s", frame.Float64, nil},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, Coerce(doc.Get(tc.key), tc.typ), "%s as %s", tc.key, tc.typ)
	}

	ts, ok := Coerce(doc.Get("ts"), frame.Timestamp).(interface{ Year() int })
	require.True(t, ok)
	assert.Equal(t, 2018, ts.Year())
}
