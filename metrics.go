package kgchat

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// RunsTotal counts chat runs by route and outcome.
	RunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kgchat_runs_total",
			Help: "Agent runs by route and outcome (ok, error).",
		},
		[]string{"route", "outcome"},
	)

	// RunSteps observes the states executed by the last chunk of a run.
	RunSteps = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "kgchat_run_steps",
			Help:    "States executed by the last chunk of a run.",
			Buckets: prometheus.LinearBuckets(1, 1, 10),
		},
	)

	// RunDuration observes wall time of chat runs.
	RunDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "kgchat_run_duration_seconds",
			Help:    "Wall time of agent runs.",
			Buckets: prometheus.DefBuckets,
		},
	)

	// EdgesAdded counts edges merged into conversation graphs.
	EdgesAdded = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "kgchat_edges_added_total",
			Help: "Edges merged into conversation graphs.",
		},
	)

	// StepsTotal counts executed states by state name.
	StepsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kgchat_steps_total",
			Help: "Executed agent states.",
		},
		[]string{"state"},
	)
)

func init() {
	prometheus.MustRegister(RunsTotal)
	prometheus.MustRegister(RunSteps)
	prometheus.MustRegister(RunDuration)
	prometheus.MustRegister(EdgesAdded)
	prometheus.MustRegister(StepsTotal)
}
