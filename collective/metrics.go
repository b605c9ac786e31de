package collective

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	operationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "disttrain",
		Subsystem: "collective",
		Name:      "operations_total",
		Help:      "Collective operations completed, by operation.",
	}, []string{"op"})

	vectorBytesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "disttrain",
		Subsystem: "collective",
		Name:      "vector_bytes_total",
		Help:      "Bytes of vector data passed through collective operations.",
	})
)
