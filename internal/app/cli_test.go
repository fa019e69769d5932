package app

import (
	"bytes"
	"context"
	"flag"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFlags(t *testing.T) {
	fs := flag.NewFlagSet("etl", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	f, err := ParseFlags(fs, []string{"-config", "lake.yaml", "-profile", "remote", "-print-config"})
	require.NoError(t, err)
	assert.Equal(t, Flags{ConfigPath: "lake.yaml", Profile: "remote", PrintConfig: true}, f)

	fs = flag.NewFlagSet("etl", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	f, err = ParseFlags(fs, nil)
	require.NoError(t, err)
	assert.Equal(t, "config.yaml", f.ConfigPath)

	fs = flag.NewFlagSet("etl", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	_, err = ParseFlags(fs, []string{"extra"})
	assert.ErrorContains(t, err, "unexpected arguments")
}

func TestPrintConfigMasksSecrets(t *testing.T) {
	cfg := &Config{
		Profile:     ProfileRemote,
		Workers:     2,
		LogHashSalt: "pepper",
		LedgerDSN:   "postgres://lake:hunter2@db:5432/ledger",
		Remote: RemoteProfile{
			OutputRoot:  "gs://lake/",
			Credentials: `{"private_key":"k"}`,
		},
	}
	cfg.DataQuality.AlertWebhook = "https://hooks.example.com/T000/secret"
	cfg.Otel.Headers = map[string]string{"authorization": "Bearer abc"}

	var out bytes.Buffer
	require.NoError(t, PrintConfig(&out, cfg))
	text := out.String()

	assert.Contains(t, text, "profile: remote")
	assert.Contains(t, text, "gs://lake/")
	assert.Contains(t, text, "postgres://***@db:5432/ledger")
	assert.Contains(t, text, "authorization:")
	assert.Contains(t, text, redacted)
	for _, secret := range []string{"pepper", "hunter2", "private_key", "secret", "Bearer"} {
		assert.NotContains(t, text, secret)
	}
	// The caller's config is untouched.
	assert.Equal(t, "Bearer abc", cfg.Otel.Headers["authorization"])
}

func TestRunLocalProfile(t *testing.T) {
	dir := t.TempDir()
	song := filepath.Join(dir, "song-data", "A", "B", "C", "S1.json")
	events := filepath.Join(dir, "log-data", "e.json")
	require.NoError(t, os.MkdirAll(filepath.Dir(song), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Dir(events), 0o755))
	require.NoError(t, os.WriteFile(song, []byte(`{"song_id":"S1","title":"Foo","artist_id":"A1","year":2000,"duration":180.5,"artist_name":"Bar"}`), 0o644))
	require.NoError(t, os.WriteFile(events, []byte(`{"userId":"7","firstName":"Ann","lastName":"Lee","gender":"F","level":"free","ts":1000000000000,"page":"NextSong","song":"Foo","sessionId":5}`), 0o644))

	slash := filepath.ToSlash(dir)
	t.Setenv("LOG_MODE", "test")
	t.Setenv("LAKE_WORKERS", "2")
	t.Setenv("LOCAL_EVENTS_INPUT", slash+"/log-data/*.json")
	t.Setenv("LOCAL_CATALOG_INPUT", slash+"/song-data/*/*/*/*.json")
	t.Setenv("LOCAL_OUTPUT_ROOT", slash+"/output/")
	t.Setenv("LEDGER_DSN", "sqlite:"+slash+"/ledger.db")
	t.Setenv("LAKE_METRICS_FILE", filepath.Join(dir, "metrics", "lakeflow.prom"))

	var out bytes.Buffer
	err := Run(context.Background(), Flags{ConfigPath: filepath.Join(dir, "missing.yaml"), Profile: "local"}, &out)
	require.NoError(t, err)

	for _, line := range []string{
		"items has : 1 records",
		"entities has : 1 records",
		"users has : 1 records",
		"time_breakdown has : 1 records",
		"interactions has : 1 records",
	} {
		assert.Contains(t, out.String(), line)
	}
	_, err = os.Stat(filepath.Join(dir, "output", "interactions", "_SUCCESS"))
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(dir, "ledger.db"))
	require.NoError(t, err)
	prom, err := os.ReadFile(filepath.Join(dir, "metrics", "lakeflow.prom"))
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(prom), "lakeflow_last_success_timestamp_seconds"), string(prom))
}

func TestRunRejectsInvalidProfile(t *testing.T) {
	t.Setenv("LOG_MODE", "test")
	err := Run(context.Background(), Flags{ConfigPath: filepath.Join(t.TempDir(), "missing.yaml"), Profile: "cloud"}, io.Discard)
	var cfgErr *ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, ConfigErrorInvalidProfile, cfgErr.Code)
}
