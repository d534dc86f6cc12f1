package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dmitrymomot/rollout/pkg/api"
	"github.com/dmitrymomot/rollout/pkg/config"
	"github.com/dmitrymomot/rollout/pkg/metrics"
)

func newServeCmd(getApp func() *app) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the admin HTTP API",
		Long: `Run the admin HTTP API with Prometheus metrics on /metrics.
The server stops gracefully on SIGINT or SIGTERM.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a := getApp()
			ctx := cmd.Context()

			var hcfg api.Config
			if err := config.Load(&hcfg); err != nil {
				return err
			}
			if cmd.Flags().Changed("addr") {
				hcfg.Addr = addr
			}

			collector := metrics.NewCollector(a.rollout, a.metrics, a.cfg.MetricsInterval, a.log)
			collector.Start(ctx)
			defer collector.Stop()

			router := api.NewRouter(a.rollout,
				api.WithLogger(a.log),
				api.WithMetricsHandler(metrics.Handler(a.registry)),
				api.WithReadinessChecks(a.checks...),
			)
			if err := api.NewServer(hcfg, a.log).Run(ctx, router); err != nil {
				return fmt.Errorf("server error: %w", err)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (overrides HTTP_ADDR)")
	return cmd
}
