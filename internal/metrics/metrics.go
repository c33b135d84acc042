// Package metrics exposes the dispatch core's Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	OutcomeSuccess   = "success"
	OutcomeRejected  = "rejected"
	OutcomeTransport = "transport_error"
	OutcomeConfig    = "config_error"
	OutcomeInvalid   = "invalid_request"
)

var (
	DispatchAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dispatch_attempts_total",
		Help: "Dispatch attempts to printer backends, by outcome.",
	}, []string{"outcome"})

	RetryQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "retry_queue_depth",
		Help: "Entries currently waiting in the in-memory retry queue.",
	})

	RetryEvictions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "retry_queue_evicted_total",
		Help: "Entries evicted from the retry queue because it was full.",
	})

	RetryDuplicatesDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "retry_queue_duplicates_dropped_total",
		Help: "Retry entries dropped because the backend reported them as already queued.",
	})

	JobsCompleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "print_jobs_completed_total",
		Help: "Print jobs that reached the completed state.",
	})

	JobsFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "print_jobs_failed_total",
		Help: "Print job attempts that reached the failed state.",
	})
)
