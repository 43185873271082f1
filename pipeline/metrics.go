// ABOUTME: Prometheus counters for run outcomes, delivery results, and broadcaster throughput.
package pipeline

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	runsStarted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "outreach_runs_started_total",
		Help: "Number of pipeline runs started.",
	})

	runsFinished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "outreach_runs_finished_total",
		Help: "Number of pipeline runs finished, by outcome.",
	}, []string{"outcome"})

	deliveryAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "outreach_delivery_attempts_total",
		Help: "Number of per-record delivery attempts, by result.",
	}, []string{"result"})

	eventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "outreach_events_published_total",
		Help: "Number of lifecycle events published, by type.",
	}, []string{"type"})

	eventsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "outreach_events_dropped_total",
		Help: "Number of events dropped from stalled subscriber queues.",
	})
)
