package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"mediaflow/internal/daemon"
	"mediaflow/internal/logging"
)

func newDaemonCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "daemon",
		Short: "Run the job queues, housekeeping and ops endpoint in the foreground",
		RunE: func(cmd *cobra.Command, args []string) error {
			signalCtx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			cfg, err := ctx.ensureConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger, err := logging.NewFromConfig(cfg)
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}

			a, err := ctx.openApp(logger)
			if err != nil {
				logger.Error("open services", logging.Error(err))
				return err
			}
			d, err := daemon.New(a.cfg, a.store, a.jobs, a.workflows, a.registry, logger)
			if err != nil {
				_ = a.Close()
				return err
			}
			defer d.Close()

			if err := d.Start(signalCtx); err != nil {
				return err
			}
			if addr := d.OpsAddress(); addr != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "Ops endpoint listening on http://%s\n", addr)
			}

			<-signalCtx.Done()
			logger.Info("mediaflow daemon shutting down")
			return nil
		},
	}
}
