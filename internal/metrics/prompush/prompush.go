// Package prompush implements a Prometheus Pushgateway backend for the
// internal/metrics package. Metrics accumulate in a private registry and are
// pushed on Flush, which suits a batch importer that exits when done.
package prompush

import (
	"fmt"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"

	"posimport/internal/metrics"
)

// Backend implements metrics.Backend and metrics.Flusher.
type Backend struct {
	pusher *push.Pusher

	files *prometheus.CounterVec
	rows  *prometheus.CounterVec
	steps *prometheus.HistogramVec
}

// NewBackend creates a backend pushing to gatewayURL under job.
func NewBackend(job, gatewayURL string) (*Backend, error) {
	if strings.TrimSpace(gatewayURL) == "" {
		return nil, fmt.Errorf("prompush: gateway url is empty")
	}
	if strings.TrimSpace(job) == "" {
		job = "pos_import"
	}

	b := &Backend{
		files: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: metrics.FilesTotal,
			Help: "Export files processed, by outcome.",
		}, []string{"status"}),
		rows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: metrics.RowsTotal,
			Help: "Rows seen, by kind (written, skipped, duplicate).",
		}, []string{"kind"}),
		steps: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    metrics.StepDurationSeconds,
			Help:    "Duration of pipeline steps.",
			Buckets: prometheus.ExponentialBuckets(0.005, 4, 8),
		}, []string{"step", "status"}),
	}

	reg := prometheus.NewRegistry()
	if err := reg.Register(b.files); err != nil {
		return nil, err
	}
	if err := reg.Register(b.rows); err != nil {
		return nil, err
	}
	if err := reg.Register(b.steps); err != nil {
		return nil, err
	}

	b.pusher = push.New(gatewayURL, job).Gatherer(reg)
	return b, nil
}

// IncCounter implements metrics.Backend. Unknown names are ignored.
func (b *Backend) IncCounter(name string, delta float64, labels metrics.Labels) {
	if delta <= 0 {
		return
	}
	switch name {
	case metrics.FilesTotal:
		b.files.WithLabelValues(orUnknown(labels["status"])).Add(delta)
	case metrics.RowsTotal:
		b.rows.WithLabelValues(orUnknown(labels["kind"])).Add(delta)
	}
}

// ObserveHistogram implements metrics.Backend. Unknown names are ignored.
func (b *Backend) ObserveHistogram(name string, value float64, labels metrics.Labels) {
	if name != metrics.StepDurationSeconds || value < 0 {
		return
	}
	b.steps.WithLabelValues(orUnknown(labels["step"]), orUnknown(labels["status"])).Observe(value)
}

// Flush pushes the current values, replacing the job's previous group.
func (b *Backend) Flush() error {
	if err := b.pusher.Push(); err != nil {
		return fmt.Errorf("prompush: push: %w", err)
	}
	return nil
}

// Close performs a final push.
func (b *Backend) Close() error { return b.Flush() }

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}

var (
	_ metrics.Backend = (*Backend)(nil)
	_ metrics.Flusher = (*Backend)(nil)
)
