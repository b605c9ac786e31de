package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/unixpickle/dist-train/collective"
	"github.com/unixpickle/dist-train/collective/allreduce"
	"github.com/unixpickle/dist-train/simulator"
)

func benchCommand() *cobra.Command {
	var nodeCounts []int
	var sizes []int
	var latency float64
	var rate float64
	var flopRate float64
	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Compare all-reduce algorithms on a simulated fabric",
		Long: "Bench runs each all-reduce algorithm over a simulated network\n" +
			"and prints the virtual seconds each one took, as a markdown table.",
		RunE: func(cmd *cobra.Command, args []string) error {
			reducers := []collective.Allreducer{
				allreduce.Naive{},
				allreduce.Tree{},
				allreduce.Ring{},
			}
			names := []string{"Naive", "Tree", "Ring"}

			out := cmd.OutOrStdout()
			fmt.Fprint(out, "| Nodes | Latency | Rate | Size ")
			for _, name := range names {
				fmt.Fprintf(out, "| %s ", name)
			}
			fmt.Fprintln(out, "|")
			for i := 0; i < 4+len(reducers); i++ {
				fmt.Fprint(out, "|:--")
			}
			fmt.Fprintln(out, "|")

			for _, nodes := range nodeCounts {
				for _, size := range sizes {
					fmt.Fprintf(out, "| %d | %s | %s | %d ",
						nodes,
						strconv.FormatFloat(latency, 'f', -1, 64),
						strconv.FormatFloat(rate, 'E', -1, 64),
						size)
					for _, reducer := range reducers {
						elapsed, err := benchOne(nodes, size, latency, rate, flopRate, reducer)
						if err != nil {
							return err
						}
						fmt.Fprintf(out, "| %f ", elapsed)
					}
					fmt.Fprintln(out, "|")
				}
			}
			return nil
		},
	}
	cmd.Flags().IntSliceVar(&nodeCounts, "nodes", []int{2, 8, 32}, "group sizes to benchmark")
	cmd.Flags().IntSliceVar(&sizes, "sizes", []int{10, 10000, 1000000}, "vector lengths to benchmark")
	cmd.Flags().Float64Var(&latency, "latency", 1e-3, "link latency in virtual seconds")
	cmd.Flags().Float64Var(&rate, "rate", 1e6, "link rate in bytes per virtual second")
	cmd.Flags().Float64Var(&flopRate, "flops", 1e9, "per-node compute rate for reductions")
	return cmd
}

// benchOne runs one all-reduce to completion on a fresh
// simulated fabric and returns the virtual time it took.
func benchOne(nodes, size int, latency, rate, flopRate float64, reducer collective.Allreducer) (float64, error) {
	loop := simulator.NewEventLoop()
	group := make([]*simulator.Node, nodes)
	for i := range group {
		group[i] = simulator.NewNode()
	}
	network := simulator.NewFabricNetwork(group, rate, latency)
	err := collective.Spawn(loop, network, group, func(p *collective.Peers) {
		p.FlopRate = flopRate
		vec := make([]float64, size)
		for i := range vec {
			vec[i] = float64(p.Rank())
		}
		reducer.Allreduce(p, vec, collective.Sum)
	})
	if err != nil {
		return 0, err
	}
	return loop.Time(), nil
}
