package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"github.com/unixpickle/dist-train/grpccomm"
)

func coordinatorCommand() *cobra.Command {
	var addr string
	var metricsAddr string
	cmd := &cobra.Command{
		Use:   "coordinator",
		Short: "Serve the rendezvous coordinator that worker groups form through",
		RunE: func(cmd *cobra.Command, args []string) error {
			log, err := zap.NewProduction()
			if err != nil {
				return err
			}
			defer log.Sync()

			lis, err := net.Listen("tcp", addr)
			if err != nil {
				return err
			}
			coord := grpccomm.NewCoordinator()
			coord.Log = log
			srv := grpc.NewServer()
			grpccomm.RegisterCoordinatorServer(srv, coord)
			log.Info("coordinator listening", zap.String("addr", lis.Addr().String()))

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			var eg errgroup.Group
			eg.Go(func() error {
				return srv.Serve(lis)
			})
			var msrv *http.Server
			if metricsAddr != "" {
				msrv = metricsServer(metricsAddr)
				log.Info("metrics listening", zap.String("addr", metricsAddr))
				eg.Go(func() error {
					if err := msrv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
						return err
					}
					return nil
				})
			}
			eg.Go(func() error {
				<-ctx.Done()
				log.Info("shutting down")
				// Join handlers block indefinitely, so a
				// graceful stop would never finish.
				srv.Stop()
				if msrv != nil {
					msrv.Shutdown(context.Background())
				}
				return nil
			})
			return eg.Wait()
		},
	}
	cmd.Flags().StringVar(&addr, "addr", ":7600", "listen address for workers")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "optional prometheus listen address")
	return cmd
}
