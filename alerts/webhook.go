/*
Copyright © 2025 the AERIS authors.
This file is part of AERIS.

AERIS is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

AERIS is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with AERIS.  If not, see <http://www.gnu.org/licenses/>.
*/

package alerts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/hashicorp/go-cleanhttp"
	"github.com/sirupsen/logrus"

	"github.com/aerisnav/aeris/internal/metrics"
)

const webhookTimeout = 10 * time.Second

// WebhookAlert is one alert in the outbound batch.
type WebhookAlert struct {
	AlertID     int64    `json:"alert_id"`
	UserID      int64    `json:"user_id"`
	RouteID     int64    `json:"route_id"`
	AlertType   string   `json:"alert_type"`
	Message     string   `json:"message"`
	ScoreBefore float64  `json:"score_before"`
	ScoreAfter  float64  `json:"score_after"`
	Channels    []string `json:"channels"`
}

type webhookBody struct {
	Alerts    []WebhookAlert `json:"alerts"`
	Timestamp time.Time      `json:"timestamp"`
}

// Webhook posts alert batches to the notification workflow. A zero URL
// disables dispatch.
type Webhook struct {
	URL  string
	http *http.Client
	log  logrus.FieldLogger
}

// NewWebhook builds a dispatcher.
func NewWebhook(url string, log logrus.FieldLogger) *Webhook {
	if log == nil {
		log = logrus.StandardLogger()
	}
	c := cleanhttp.DefaultPooledClient()
	c.Timeout = webhookTimeout
	return &Webhook{URL: url, http: c, log: log}
}

// Dispatch posts the batch. Best-effort: failures are logged and
// returned, but callers must not roll back on them. An empty batch or
// unset URL is a no-op.
func (w *Webhook) Dispatch(ctx context.Context, batch []WebhookAlert) error {
	if w.URL == "" || len(batch) == 0 {
		return nil
	}
	body, err := json.Marshal(webhookBody{Alerts: batch, Timestamp: time.Now().UTC()})
	if err != nil {
		return fmt.Errorf("alerts: encoding webhook body: %w", err)
	}
	ctx, cancel := context.WithTimeout(ctx, webhookTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("alerts: building webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := w.http.Do(req)
	if err != nil {
		metrics.WebhookDeliveries.WithLabelValues("error").Inc()
		w.log.WithError(err).Warn("alerts: webhook delivery failed")
		return fmt.Errorf("alerts: posting webhook: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		metrics.WebhookDeliveries.WithLabelValues("rejected").Inc()
		w.log.WithField("status", resp.StatusCode).Warn("alerts: webhook rejected batch")
		return fmt.Errorf("alerts: webhook returned status %d", resp.StatusCode)
	}
	metrics.WebhookDeliveries.WithLabelValues("ok").Inc()
	w.log.WithField("alerts", len(batch)).Info("alerts: webhook batch delivered")
	return nil
}
