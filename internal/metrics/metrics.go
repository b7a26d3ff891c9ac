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

// Package metrics holds the process-wide Prometheus instruments.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// GridRowsIngested counts pollution_grid rows written, by gas.
	GridRowsIngested = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "aeris_grid_rows_ingested_total",
		Help: "Pollution grid rows written by the hourly ingestion cycle.",
	}, []string{"gas"})

	// TaskRuns counts scheduled task completions by outcome.
	TaskRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "aeris_task_runs_total",
		Help: "Scheduled task runs by task name and status.",
	}, []string{"task", "status"})

	// WebhookDeliveries counts outbound alert batches by outcome.
	WebhookDeliveries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "aeris_webhook_deliveries_total",
		Help: "Alert webhook batch deliveries by status.",
	}, []string{"status"})

	// RequestDuration observes HTTP handler latency.
	RequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "aeris_http_request_duration_seconds",
		Help:    "HTTP request latency by route and status class.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route", "status"})

	// UPESRunSeconds observes scoring engine run time.
	UPESRunSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "aeris_upes_run_seconds",
		Help:    "Wall time of one UPES scoring run.",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
	})
)

// Handler serves the default registry.
func Handler() http.Handler { return promhttp.Handler() }
