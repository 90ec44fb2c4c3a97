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

	"github.com/forgepoint/gentuner/internal/config"
	"github.com/forgepoint/gentuner/internal/resilience"
)

// AlertType identifies the kind of alert.
type AlertType string

const (
	AlertQualityFloor AlertType = "quality_floor"
	AlertFailureRate  AlertType = "failure_rate"
	AlertNoAttempts   AlertType = "no_attempts"
)

// minAttemptsForAlert is the smallest window population that score and
// failure-rate alerts fire on. Below it the averages are too noisy.
const minAttemptsForAlert = 5

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
	cfg    config.MonitorConfig
	client *http.Client
	retry  resilience.RetryConfig
}

// NewAlerter creates a new Alerter with the given monitor config.
func NewAlerter(cfg config.MonitorConfig) *Alerter {
	retry := resilience.DefaultRetryConfig()
	// Delivery runs inside the checker loop; keep the backoff well under
	// the check interval.
	retry.MaxBackoff = 5 * time.Second
	return &Alerter{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
		retry:  retry,
	}
}

// Evaluate checks the snapshot against thresholds and returns any alerts.
func (a *Alerter) Evaluate(snap *MetricsSnapshot) []Alert {
	var alerts []Alert
	now := time.Now().UTC()

	// Check average composite score against the floor.
	if a.cfg.ScoreFloor > 0 && snap.AttemptsTotal >= minAttemptsForAlert && snap.AvgScore < a.cfg.ScoreFloor {
		alerts = append(alerts, Alert{
			Type:     AlertQualityFloor,
			Severity: "high",
			Message: fmt.Sprintf(
				"Average composite score %.1f fell below floor %.1f (%d attempts in last %dh)",
				snap.AvgScore, a.cfg.ScoreFloor, snap.AttemptsTotal, snap.LookbackHours,
			),
			Details: map[string]any{
				"avg_score":   snap.AvgScore,
				"score_floor": a.cfg.ScoreFloor,
				"attempts":    snap.AttemptsTotal,
			},
			Timestamp: now,
		})
	}

	// Check attempt failure rate.
	if snap.AttemptsTotal >= minAttemptsForAlert && snap.FailRate > a.cfg.FailRateMax {
		alerts = append(alerts, Alert{
			Type:     AlertFailureRate,
			Severity: "high",
			Message: fmt.Sprintf(
				"Attempt failure rate %.1f%% exceeds threshold %.1f%% (%d failed / %d total in last %dh)",
				snap.FailRate*100, a.cfg.FailRateMax*100,
				snap.AttemptsFailed, snap.AttemptsTotal, snap.LookbackHours,
			),
			Details: map[string]any{
				"fail_rate": snap.FailRate,
				"threshold": a.cfg.FailRateMax,
				"failed":    snap.AttemptsFailed,
				"total":     snap.AttemptsTotal,
			},
			Timestamp: now,
		})
	}

	// Check for a silent ingest pipeline.
	if snap.AttemptsTotal == 0 {
		alerts = append(alerts, Alert{
			Type:     AlertNoAttempts,
			Severity: "low",
			Message: fmt.Sprintf(
				"No attempts recorded in last %dh; the tuner has nothing new to learn from",
				snap.LookbackHours,
			),
			Details: map[string]any{
				"lookback_hours": snap.LookbackHours,
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

// sendWebhook posts a single alert to the webhook URL, retrying transient
// delivery failures with backoff.
func (a *Alerter) sendWebhook(ctx context.Context, alert Alert) error {
	payload, err := json.Marshal(alert)
	if err != nil {
		return eris.Wrap(err, "monitoring: marshal alert")
	}

	retry := a.retry
	retry.OnRetry = resilience.RetryLogger("webhook", string(alert.Type))

	return resilience.Do(ctx, retry, func(ctx context.Context) error {
		return a.postAlert(ctx, payload)
	})
}

// postAlert performs one delivery attempt.
func (a *Alerter) postAlert(ctx context.Context, payload []byte) error {
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
		err := eris.Errorf("monitoring: webhook returned status %d", resp.StatusCode)
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return resilience.NewTransientError(err, resp.StatusCode)
		}
		return err
	}
	return nil
}
