package grpccomm

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	groupsFormed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "disttrain",
		Subsystem: "grpccomm",
		Name:      "groups_formed_total",
		Help:      "Communicator groups that completed rendezvous.",
	})

	activeSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "disttrain",
		Subsystem: "grpccomm",
		Name:      "active_sessions",
		Help:      "Sessions that have formed and not yet fully left.",
	})

	collectivesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "disttrain",
		Subsystem: "grpccomm",
		Name:      "collectives_total",
		Help:      "Collective rounds completed on the coordinator, by kind.",
	}, []string{"kind"})
)
