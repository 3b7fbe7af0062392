// Package metrics counts backend operations on a dedicated prometheus registry.
package metrics

import (
	"fmt"
	"io"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/common/expfmt"
)

const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Registry holds every databayes collector. It is separate from the
// prometheus default registry so embedding programs keep control of theirs.
var Registry = prometheus.NewRegistry()

var (
	// OperationsTotal counts backend operations by outcome
	OperationsTotal = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "databayes_backend_operations_total",
			Help: "Backend operations by backend, operation and outcome",
		},
		[]string{"backend", "operation", "outcome"},
	)

	// RecordsTotal counts records accepted or rejected by Put
	RecordsTotal = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "databayes_backend_records_total",
			Help: "Records written by backend and outcome",
		},
		[]string{"backend", "outcome"},
	)

	// OperationDuration tracks backend call latency
	OperationDuration = promauto.With(Registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "databayes_backend_operation_duration_seconds",
			Help:    "Backend operation latency in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"backend", "operation"},
	)
)

// ObserveOperation records one finished operation that started at start
func ObserveOperation(backend, operation string, start time.Time, ok bool) {
	outcome := OutcomeSuccess
	if !ok {
		outcome = OutcomeFailure
	}
	OperationsTotal.WithLabelValues(backend, operation, outcome).Inc()
	OperationDuration.WithLabelValues(backend, operation).Observe(time.Since(start).Seconds())
}

// AddRecords records the counts of a Put
func AddRecords(backend string, success, failure int) {
	if success > 0 {
		RecordsTotal.WithLabelValues(backend, OutcomeSuccess).Add(float64(success))
	}
	if failure > 0 {
		RecordsTotal.WithLabelValues(backend, OutcomeFailure).Add(float64(failure))
	}
}

// WriteText writes every collected metric in the text exposition format
func WriteText(w io.Writer) error {
	families, err := Registry.Gather()
	if err != nil {
		return fmt.Errorf("failed to gather metrics: %w", err)
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return fmt.Errorf("failed to encode %s: %w", mf.GetName(), err)
		}
	}
	return nil
}
