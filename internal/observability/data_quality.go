package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/yungbote/lakeflow/internal/platform/logger"
)

type DataQualityConfig struct {
	AlertWebhook     string        `yaml:"alert_webhook" env:"DATA_QUALITY_ALERT_WEBHOOK_URL"`
	AlertMinInterval time.Duration `yaml:"alert_min_interval" env:"DATA_QUALITY_ALERT_MIN_INTERVAL" env-default:"5m"`
}

// DataQualityReporter logs, counts and optionally alerts on records a stage
// dropped or degraded. Alerts per stage are rate limited.
type DataQualityReporter struct {
	log     *logger.Logger
	metrics *Metrics
	cfg     DataQualityConfig
	client  *http.Client

	mu   sync.Mutex
	last map[string]time.Time
}

func NewDataQualityReporter(log *logger.Logger, metrics *Metrics, cfg DataQualityConfig) *DataQualityReporter {
	if log == nil {
		log = logger.Nop()
	}
	if cfg.AlertMinInterval <= 0 {
		cfg.AlertMinInterval = 5 * time.Minute
	}
	return &DataQualityReporter{
		log:     log.With("component", "data_quality"),
		metrics: metrics,
		cfg:     cfg,
		client:  &http.Client{Timeout: 5 * time.Second},
		last:    map[string]time.Time{},
	}
}

// Report records issue counts for stage. Zero counts are ignored.
func (r *DataQualityReporter) Report(ctx context.Context, stage string, issues map[string]int, meta map[string]any) {
	if r == nil {
		return
	}
	stage = orUnknown(strings.TrimSpace(stage))
	nonZero := map[string]int{}
	for issue, n := range issues {
		if n > 0 {
			nonZero[issue] = n
			r.metrics.IncDataQuality(stage, issue, n)
		}
	}
	if len(nonZero) == 0 {
		return
	}
	if meta == nil {
		meta = map[string]any{}
	}
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		meta["trace_id"] = sc.TraceID().String()
	}
	r.log.Warn("data quality issue detected",
		"stage", stage,
		"issues", nonZero,
		"meta", meta,
	)
	r.sendAlert(ctx, stage, nonZero, meta)
}

func (r *DataQualityReporter) sendAlert(ctx context.Context, stage string, issues map[string]int, meta map[string]any) {
	webhook := strings.TrimSpace(r.cfg.AlertWebhook)
	if webhook == "" {
		return
	}
	r.mu.Lock()
	last := r.last[stage]
	if !last.IsZero() && time.Since(last) < r.cfg.AlertMinInterval {
		r.mu.Unlock()
		return
	}
	r.last[stage] = time.Now()
	r.mu.Unlock()

	names := make([]string, 0, len(issues))
	for k := range issues {
		names = append(names, k)
	}
	sort.Strings(names)
	payload := map[string]any{
		"title":     "Data quality issue",
		"stage":     stage,
		"issues":    issues,
		"summary":   strings.Join(names, ","),
		"meta":      meta,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	body, _ := json.Marshal(payload)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, webhook, bytes.NewReader(body))
	if err != nil {
		r.log.Warn("data quality alert request build failed", "error", err, "stage", stage)
		return
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := r.client.Do(req)
	if err != nil {
		r.log.Warn("data quality alert post failed", "error", err, "stage", stage)
		return
	}
	_ = resp.Body.Close()
	r.log.Info("data quality alert sent", "stage", stage, "status", resp.StatusCode)
}
