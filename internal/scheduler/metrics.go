package scheduler

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	priorityLabel = "priority"
	outcomeLabel  = "outcome"

	outcomeSuccess = "success"
	outcomeFailure = "failure"
	outcomeExpired = "expired"
	outcomeStopped = "stopped"
)

// Metrics are the scheduler's prometheus collectors.
type Metrics struct {
	QueueSize        *prometheus.GaugeVec
	InFlight         prometheus.Gauge
	Dispatched       *prometheus.CounterVec
	Results          *prometheus.CounterVec
	GradingDuration  prometheus.Histogram
	QueueWaitSeconds prometheus.Histogram
}

// NewMetrics creates the collectors and registers them with reg.
// A nil reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		QueueSize: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "autograde",
				Subsystem: "scheduler",
				Name:      "queue_size",
				Help:      "Number of grading work items waiting for a slot",
			},
			[]string{priorityLabel},
		),
		InFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "autograde",
			Subsystem: "scheduler",
			Name:      "in_flight",
			Help:      "Number of grading calls currently running",
		}),
		Dispatched: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "autograde",
				Subsystem: "scheduler",
				Name:      "dispatched_total",
				Help:      "Number of work items taken from the queue",
			},
			[]string{priorityLabel},
		),
		Results: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "autograde",
				Subsystem: "scheduler",
				Name:      "results_total",
				Help:      "Number of finished work items by outcome",
			},
			[]string{outcomeLabel},
		),
		GradingDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "autograde",
			Subsystem: "scheduler",
			Name:      "grading_duration_seconds",
			Help:      "Duration of grading backend calls",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
		}),
		QueueWaitSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "autograde",
			Subsystem: "scheduler",
			Name:      "queue_wait_seconds",
			Help:      "Time work items spent queued before dispatch",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 14),
		}),
	}
	if reg != nil {
		reg.MustRegister(m.QueueSize, m.InFlight, m.Dispatched, m.Results, m.GradingDuration, m.QueueWaitSeconds)
	}
	return m
}
