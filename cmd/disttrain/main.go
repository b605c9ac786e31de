// Command disttrain runs the pieces of a distributed training
// job: a rendezvous coordinator, workers that join it, and a
// benchmark of the all-reduce algorithms on a simulated fabric.
package main

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/unixpickle/essentials"
)

func main() {
	root := &cobra.Command{
		Use:           "disttrain",
		Short:         "Distributed training coordinator, workers, and simulator benchmarks",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(benchCommand(), coordinatorCommand(), workerCommand())
	if err := root.Execute(); err != nil {
		essentials.Die(err)
	}
}

// metricsServer serves the process's prometheus metrics on
// addr under /metrics.
func metricsServer(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return &http.Server{Addr: addr, Handler: mux}
}
