package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/mrms-extract/internal/config"
)

// AlertType identifies the kind of alert.
type AlertType string

const (
	AlertFailureRate   AlertType = "extraction_failure_rate"
	AlertFullScanShare AlertType = "full_scan_share"
	AlertCacheHitRate  AlertType = "cache_hit_rate"
)

// Alert represents a single alert to be sent.
type Alert struct {
	Type      AlertType      `json:"type"`
	Severity  string         `json:"severity"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Alerter evaluates a MetricsSnapshot against configured thresholds
// and sends alerts via webhook when thresholds are breached.
type Alerter struct {
	cfg    config.MonitoringConfig
	client *http.Client
}

// NewAlerter creates a new Alerter with the given monitoring config.
func NewAlerter(cfg config.MonitoringConfig) *Alerter {
	return &Alerter{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// Evaluate checks the snapshot against thresholds and returns any alerts.
// All checks require a minimum sample so a single bad request does not page
// anyone.
func (a *Alerter) Evaluate(snap *MetricsSnapshot) []Alert {
	var alerts []Alert
	now := time.Now().UTC()

	if snap.AttemptsTotal >= 5 && snap.FailureRate > a.cfg.FailureRateThreshold {
		alerts = append(alerts, Alert{
			Type:     AlertFailureRate,
			Severity: "high",
			Message: fmt.Sprintf(
				"Extraction failure rate %.1f%% exceeds threshold %.1f%% (%d failed / %d attempts in last %dh)",
				snap.FailureRate*100, a.cfg.FailureRateThreshold*100,
				snap.Failures, snap.AttemptsTotal, snap.LookbackHours,
			),
			Details: map[string]any{
				"failure_rate": snap.FailureRate,
				"threshold":    a.cfg.FailureRateThreshold,
				"failures":     snap.Failures,
				"attempts":     snap.AttemptsTotal,
			},
			Timestamp: now,
		})
	}

	// A rising full-scan share means the cheaper strategies keep falling
	// over, usually unordered or malformed upstream files.
	if a.cfg.FullScanShareMax > 0 && snap.AttemptsTotal >= 5 && snap.FullScanShare > a.cfg.FullScanShareMax {
		alerts = append(alerts, Alert{
			Type:     AlertFullScanShare,
			Severity: "medium",
			Message: fmt.Sprintf(
				"Full scans are %.1f%% of attempts, above the %.1f%% ceiling (last %dh)",
				snap.FullScanShare*100, a.cfg.FullScanShareMax*100, snap.LookbackHours,
			),
			Details: map[string]any{
				"full_scan_share": snap.FullScanShare,
				"threshold":       a.cfg.FullScanShareMax,
			},
			Timestamp: now,
		})
	}

	if a.cfg.MinCacheHitRate > 0 && snap.CacheHits+snap.CacheMisses >= 20 && snap.CacheHitRate < a.cfg.MinCacheHitRate {
		alerts = append(alerts, Alert{
			Type:     AlertCacheHitRate,
			Severity: "medium",
			Message: fmt.Sprintf(
				"Result cache hit rate %.1f%% below floor %.1f%%",
				snap.CacheHitRate*100, a.cfg.MinCacheHitRate*100,
			),
			Details: map[string]any{
				"hit_rate": snap.CacheHitRate,
				"floor":    a.cfg.MinCacheHitRate,
				"hits":     snap.CacheHits,
				"misses":   snap.CacheMisses,
			},
			Timestamp: now,
		})
	}

	return alerts
}

// SendAlerts delivers alerts to the configured webhook URL.
// Returns the number of alerts successfully sent.
func (a *Alerter) SendAlerts(ctx context.Context, alerts []Alert) int {
	if a.cfg.WebhookURL == "" || len(alerts) == 0 {
		return 0
	}

	sent := 0
	for _, alert := range alerts {
		if err := a.sendWebhook(ctx, alert); err != nil {
			zap.L().Error("monitoring: failed to send alert",
				zap.String("type", string(alert.Type)),
				zap.Error(err),
			)
			continue
		}
		zap.L().Info("monitoring: alert sent",
			zap.String("type", string(alert.Type)),
			zap.String("severity", alert.Severity),
		)
		sent++
	}
	return sent
}

// sendWebhook posts a single alert to the webhook URL.
func (a *Alerter) sendWebhook(ctx context.Context, alert Alert) error {
	payload, err := json.Marshal(alert)
	if err != nil {
		return eris.Wrap(err, "monitoring: marshal alert")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.WebhookURL, bytes.NewReader(payload))
	if err != nil {
		return eris.Wrap(err, "monitoring: create webhook request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return eris.Wrap(err, "monitoring: webhook request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= 400 {
		return eris.Errorf("monitoring: webhook returned status %d", resp.StatusCode)
	}
	return nil
}
