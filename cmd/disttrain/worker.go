package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/unixpickle/dist-train/grpccomm"
	"github.com/unixpickle/dist-train/multinode"
	"github.com/unixpickle/dist-train/train"
)

func workerCommand() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Join a group and train the demo model, aggregating loss across workers",
		Long: "Worker joins a group through the coordinator and fits a small\n" +
			"linear model on a per-rank shard of synthetic data. The workers'\n" +
			"losses are averaged across the group with an all-reduce on the\n" +
			"configured interval and logged at every epoch.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := LoadConfig(configPath)
			if err != nil {
				return err
			}
			log, err := zap.NewProduction()
			if err != nil {
				return err
			}
			defer log.Sync()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			comm, err := grpccomm.Dial(ctx, cfg.Coordinator, cfg.Group, cfg.World,
				grpc.WithTransportCredentials(insecure.NewCredentials()))
			if err != nil {
				return err
			}
			comm.Timeout = time.Duration(cfg.Timeout)
			log.Info("joined group",
				zap.String("group", cfg.Group),
				zap.String("session", comm.Session()),
				zap.Int("rank", comm.Rank()),
				zap.Int("size", comm.Size()))

			eg, runCtx := errgroup.WithContext(ctx)
			var msrv *http.Server
			if cfg.Metrics != "" {
				msrv = metricsServer(cfg.Metrics)
				eg.Go(func() error {
					if err := msrv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
						return err
					}
					return nil
				})
			}
			eg.Go(func() error {
				defer func() {
					if msrv != nil {
						msrv.Shutdown(context.Background())
					}
				}()
				return runWorker(runCtx, log, cfg, comm)
			})

			var result error
			if err := eg.Wait(); err != nil {
				if errors.Is(err, context.Canceled) {
					log.Info("interrupted")
				} else {
					result = multierror.Append(result, err)
				}
			}
			if err := comm.Close(); err != nil {
				result = multierror.Append(result, fmt.Errorf("close comm: %w", err))
			}
			return result
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "path to a TOML config file")
	return cmd
}

// runWorker fits y = 2x + 1 by SGD on this rank's shard of
// inputs and reports the squared error each step, so that the
// aggregator has a real observation stream to average.
func runWorker(ctx context.Context, log *zap.Logger, cfg Config, comm *grpccomm.Comm) error {
	rng := rand.New(rand.NewSource(cfg.Seed + int64(comm.Rank())))
	var weight, bias float64
	up := &train.StepUpdater{
		ItersPerEpoch: cfg.ItersPerEpoch,
		Step: func(obs train.Observations) error {
			x := rng.Float64() * 4
			target := 2*x + 1
			pred := weight*x + bias
			diff := pred - target
			weight -= cfg.LearningRate * diff * x
			bias -= cfg.LearningRate * diff
			obs.Report(cfg.Key, diff*diff)
			return nil
		},
	}

	aggOpts := []multinode.AggregatorOption{
		multinode.WithCommTrigger(train.Every(cfg.CommInterval, train.ByIteration)),
	}
	reportKey := cfg.Key
	if cfg.AggregatedKey != "" {
		aggOpts = append(aggOpts, multinode.WithAggregatedKey(cfg.AggregatedKey))
		reportKey = cfg.AggregatedKey
	}

	tr := train.New(up, train.Steps(cfg.Steps), train.WithLogger(log))
	tr.Extend(multinode.NewObservationAggregator(comm, cfg.Key, aggOpts...))
	tr.Extend(train.NewLogReport(log, train.Every(1, train.ByEpoch), reportKey))
	tr.Extend(multinode.NewEpochBarrier(comm),
		train.WithTrigger(train.Every(1, train.ByEpoch)))
	if cfg.Snapshot != "" {
		tr.Extend(train.NewSnapshot(cfg.Snapshot),
			train.WithTrigger(train.Every(1, train.ByEpoch)))
	}
	return tr.Run(ctx)
}
