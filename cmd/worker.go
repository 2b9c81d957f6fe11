package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Start background workers",
	Long:  `Start background workers that run outside the HTTP server, such as payment reconciliation.`,
}

var paymentWorkerCmd = &cobra.Command{
	Use:   "payment",
	Short: "Start the payment reconciliation worker",
	Long:  `Ask the payment processor about open payments whose webhook never arrived and settle them`,
	Run: func(cmd *cobra.Command, args []string) {
		if err := startPaymentWorker(); err != nil {
			fmt.Fprintf(os.Stderr, "payment worker: %v\n", err)
			os.Exit(1)
		}
	},
}

var (
	reconcileOnce     bool
	reconcileSchedule string
)

func startPaymentWorker() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	deps, err := initializeDependencies(ctx)
	if err != nil {
		return fmt.Errorf("failed to initialize dependencies: %w", err)
	}
	defer deps.Close()

	if reconcileOnce {
		stats, err := deps.Reconciler.Sweep(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("checked=%d updated=%d skipped=%d\n", stats.Checked, stats.Updated, stats.Skipped)
		return nil
	}

	schedule := getStringFlag(reconcileSchedule, deps.Config.Payment.ReconcileSchedule)
	deps.Logger.Info("payment worker is running. Press Ctrl+C to stop.", "schedule", schedule)
	if err := deps.Reconciler.Schedule(ctx, schedule); err != nil {
		return err
	}
	deps.Logger.Info("payment worker shutdown complete")
	return nil
}

func getStringFlag(flagValue, configValue string) string {
	if flagValue != "" {
		return flagValue
	}
	return configValue
}

func init() {
	paymentWorkerCmd.Flags().BoolVar(&reconcileOnce, "once", false, "Run a single sweep and exit")
	paymentWorkerCmd.Flags().StringVar(&reconcileSchedule, "schedule", "", "Cron schedule for sweeps (overrides config)")

	workerCmd.AddCommand(paymentWorkerCmd)

	rootCmd.AddCommand(workerCmd)
}
