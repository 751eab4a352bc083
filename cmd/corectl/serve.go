package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/rotorcore/corert/internal/logging"
	"github.com/rotorcore/corert/internal/metrics"
)

func serveCmd() *cobra.Command {
	var metricsAddr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run corert as a long-lived process exposing Prometheus metrics",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			shutdown := bootstrap(cfg)
			defer shutdown()

			_, sched, io, err := buildRuntime(cfg)
			if err != nil {
				return err
			}
			defer sched.Shutdown()
			defer io.Shutdown()

			addr := cfg.Observability.Metrics.Addr
			if cmd.Flags().Changed("metrics-addr") {
				addr = metricsAddr
			}

			var httpServer *http.Server
			if cfg.Observability.Metrics.Enabled && addr != "" {
				mux := http.NewServeMux()
				if m := metrics.Active(); m != nil {
					mux.Handle("/metrics", m.Handler())
				}
				httpServer = &http.Server{Addr: addr, Handler: mux}
				go func() {
					logging.Op().Info("metrics server started", "addr", addr)
					if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
						logging.Op().Error("metrics server failed", "error", err)
					}
				}()
			}

			logging.Op().Info("corert runtime started", "pools", len(cfg.Scheduler.PoolTypes), "io_workers", cfg.IO.Workers)

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			<-sigCh

			logging.Op().Info("shutdown signal received")
			if httpServer != nil {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = httpServer.Shutdown(ctx)
			}
			fmt.Println("corectl serve: shut down cleanly")
			return nil
		},
	}
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Override the config's metrics listen address")
	return cmd
}
