package train

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	iterationsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "disttrain",
		Subsystem: "train",
		Name:      "iterations_total",
		Help:      "Training iterations completed.",
	})

	observationGauge = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "disttrain",
		Subsystem: "train",
		Name:      "observation",
		Help:      "Latest float observation values, by key.",
	}, []string{"key"})
)
