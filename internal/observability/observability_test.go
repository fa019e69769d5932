package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/yungbote/lakeflow/internal/platform/logger"
)

func TestMetricsRecordAndExpose(t *testing.T) {
	m := NewMetrics()
	m.ObserveStage("lake_build", "catalog", "succeeded", 2*time.Second)
	m.ObserveInput("catalog", 3, 1, 10, 2)
	m.SetTable("items", 7, 2)
	m.IncDataQuality("catalog", "null_key", 4)
	m.IncDataQuality("catalog", "null_key", 0)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.stageTotal.WithLabelValues("lake_build", "catalog", "succeeded")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.inputFiles.WithLabelValues("catalog", "read")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.inputRecords.WithLabelValues("catalog", "malformed")))
	assert.Equal(t, 7.0, testutil.ToFloat64(m.tableRows.WithLabelValues("items")))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.dataQuality.WithLabelValues("catalog", "null_key")))

	var buf bytes.Buffer
	require.NoError(t, m.WritePrometheus(&buf))
	assert.Contains(t, buf.String(), `lakeflow_table_rows{table="items"} 7`)
	assert.Contains(t, buf.String(), "lakeflow_stage_duration_seconds_bucket")
}

func TestMetricsTextfile(t *testing.T) {
	m := NewMetrics()
	m.MarkSuccess(time.Unix(1700000000, 0))
	path := filepath.Join(t.TempDir(), "metrics", "lakeflow.prom")
	require.NoError(t, m.WriteTextfile(path))

	body, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(body), "lakeflow_last_success_timestamp_seconds 1.7e+09"))

	require.NoError(t, m.WriteTextfile(""))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveStage("p", "s", "ok", time.Second)
	m.SetTable("t", 1, 1)
	m.IncDataQuality("s", "i", 1)
	require.NoError(t, m.WritePrometheus(&bytes.Buffer{}))
	require.NoError(t, m.WriteTextfile(filepath.Join(t.TempDir(), "x.prom")))
}

func TestDataQualityReporterAlertsOncePerInterval(t *testing.T) {
	var hits atomic.Int32
	payloads := make(chan map[string]any, 4)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		payloads <- body
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	m := NewMetrics()
	rep := NewDataQualityReporter(logger.Nop(), m, DataQualityConfig{AlertWebhook: srv.URL, AlertMinInterval: time.Hour})
	ctx := context.Background()

	rep.Report(ctx, "events", map[string]int{"join_miss": 3, "null_key": 0}, nil)
	rep.Report(ctx, "events", map[string]int{"join_miss": 1}, nil)
	rep.Report(ctx, "events", map[string]int{}, nil)

	assert.Equal(t, int32(1), hits.Load())
	got := <-payloads
	assert.Equal(t, "events", got["stage"])
	assert.Equal(t, 4.0, testutil.ToFloat64(m.dataQuality.WithLabelValues("events", "join_miss")))
}

func TestInitOTelDisabledIsNoop(t *testing.T) {
	shutdown := InitOTel(context.Background(), logger.Nop(), OtelConfig{Enabled: false})
	require.NotNil(t, shutdown)
	require.NoError(t, shutdown(context.Background()))
}

func TestEndSpanRecordsError(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	_, ok := StartSpan(context.Background(), "ok")
	EndSpan(ok, nil)
	_, bad := StartSpan(context.Background(), "bad")
	EndSpan(bad, errors.New("boom"))

	spans := rec.Ended()
	require.Len(t, spans, 2)
	assert.Equal(t, codes.Unset, spans[0].Status().Code)
	assert.Equal(t, codes.Error, spans[1].Status().Code)
	assert.Equal(t, "boom", spans[1].Status().Description)
}
