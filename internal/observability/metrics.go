package observability

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
)

const metricsNamespace = "lakeflow"

// Metrics holds the per-run counters of the ETL. Each run owns its
// registry so concurrent runs (and tests) never share series. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	registry      *prometheus.Registry
	stageDuration *prometheus.HistogramVec
	stageTotal    *prometheus.CounterVec
	inputRecords  *prometheus.CounterVec
	inputFiles    *prometheus.CounterVec
	tableRows     *prometheus.GaugeVec
	tableFiles    *prometheus.GaugeVec
	dataQuality   *prometheus.CounterVec
	lastSuccess   prometheus.Gauge
}

func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		stageDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Name:      "stage_duration_seconds",
				Help:      "Duration of pipeline stages in seconds.",
				Buckets:   []float64{0.1, 0.5, 1, 5, 15, 30, 60, 300, 900, 1800},
			},
			[]string{"pipeline", "stage", "status"},
		),
		stageTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "stage_total",
				Help:      "Pipeline stages executed, by outcome.",
			},
			[]string{"pipeline", "stage", "status"},
		),
		inputRecords: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "input_records_total",
				Help:      "JSON records read per source, by outcome.",
			},
			[]string{"source", "outcome"},
		),
		inputFiles: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "input_files_total",
				Help:      "Input files matched per source, by outcome.",
			},
			[]string{"source", "outcome"},
		),
		tableRows: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Name:      "table_rows",
				Help:      "Rows written to each output table by the last run.",
			},
			[]string{"table"},
		),
		tableFiles: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Name:      "table_files",
				Help:      "Part files written to each output table by the last run.",
			},
			[]string{"table"},
		),
		dataQuality: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "data_quality_issues_total",
				Help:      "Records dropped or degraded, by stage and issue.",
			},
			[]string{"stage", "issue"},
		),
		lastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last successful run.",
		}),
	}
	m.registry.MustRegister(
		m.stageDuration,
		m.stageTotal,
		m.inputRecords,
		m.inputFiles,
		m.tableRows,
		m.tableFiles,
		m.dataQuality,
		m.lastSuccess,
	)
	return m
}

func orUnknown(s string) string {
	if strings.TrimSpace(s) == "" {
		return "unknown"
	}
	return s
}

func (m *Metrics) ObserveStage(pipeline, stage, status string, dur time.Duration) {
	if m == nil {
		return
	}
	pipeline, stage, status = orUnknown(pipeline), orUnknown(stage), orUnknown(status)
	m.stageTotal.WithLabelValues(pipeline, stage, status).Inc()
	if dur > 0 {
		m.stageDuration.WithLabelValues(pipeline, stage, status).Observe(dur.Seconds())
	}
}

func (m *Metrics) ObserveInput(source string, files, unreadable, records, malformed int) {
	if m == nil {
		return
	}
	source = orUnknown(source)
	m.inputFiles.WithLabelValues(source, "read").Add(float64(files - unreadable))
	m.inputFiles.WithLabelValues(source, "unreadable").Add(float64(unreadable))
	m.inputRecords.WithLabelValues(source, "parsed").Add(float64(records))
	m.inputRecords.WithLabelValues(source, "malformed").Add(float64(malformed))
}

func (m *Metrics) SetTable(table string, rows, files int) {
	if m == nil {
		return
	}
	table = orUnknown(table)
	m.tableRows.WithLabelValues(table).Set(float64(rows))
	m.tableFiles.WithLabelValues(table).Set(float64(files))
}

func (m *Metrics) IncDataQuality(stage, issue string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.dataQuality.WithLabelValues(orUnknown(stage), orUnknown(issue)).Add(float64(n))
}

func (m *Metrics) MarkSuccess(at time.Time) {
	if m == nil {
		return
	}
	m.lastSuccess.Set(float64(at.Unix()))
}

// WritePrometheus encodes every series in the text exposition format.
func (m *Metrics) WritePrometheus(w io.Writer) error {
	if m == nil {
		return nil
	}
	families, err := m.registry.Gather()
	if err != nil {
		return fmt.Errorf("gather metrics: %w", err)
	}
	enc := expfmt.NewEncoder(w, expfmt.FmtText)
	for _, mf := range families {
		if err := enc.Encode(mf); err != nil {
			return fmt.Errorf("encode metrics: %w", err)
		}
	}
	return nil
}

// WriteTextfile replaces path with the current metrics, for pickup by a
// node exporter textfile collector.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil || strings.TrimSpace(path) == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("metrics textfile: %w", err)
	}
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("metrics textfile: %w", err)
	}
	return nil
}
