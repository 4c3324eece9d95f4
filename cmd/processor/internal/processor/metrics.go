package processor

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	snapshotsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ratio_processor_snapshots_total",
			Help: "Quote snapshots written to Redis",
		},
		[]string{"symbol"},
	)
	rowsGenerated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ratio_processor_rows_total",
			Help: "Analytical rows published",
		},
	)
	alertsTriggered = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ratio_processor_alerts_total",
			Help: "Rows whose ratio left the alert band",
		},
	)
	inputsRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ratio_processor_rejected_total",
			Help: "Messages or pairs that could not be turned into a row",
		},
		[]string{"reason"},
	)
	lastRatio = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ratio_processor_last_ratio",
			Help: "Most recently published ratio",
		},
	)
)
