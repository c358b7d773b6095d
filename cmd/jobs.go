package cmd

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/vibast-solutions/ms-go-course-purchases/app/service"
	"github.com/vibast-solutions/ms-go-course-purchases/config"
)

var (
	workerMode bool
)

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Reconcile stale pending purchases against the payment provider",
	Run: func(_ *cobra.Command, _ []string) {
		runCommand(
			"reconcile",
			func(cfg *config.Config) time.Duration { return cfg.Jobs.ReconcileInterval },
			func(s *service.PurchaseService, ctx context.Context) error {
				return s.RunReconcileBatch(ctx)
			},
		)
	},
}

func init() {
	rootCmd.AddCommand(reconcileCmd)

	rootCmd.PersistentFlags().BoolVar(&workerMode, "worker", false, "Run continuously using configured interval")
}

func runCommand(
	name string,
	intervalResolver func(cfg *config.Config) time.Duration,
	fn func(s *service.PurchaseService, ctx context.Context) error,
) {
	cfg, purchaseService, cleanup := mustCreatePurchaseService()
	defer cleanup()

	if workerMode {
		runWorker(name, intervalResolver(cfg), purchaseService, fn)
		return
	}

	ctx := context.Background()
	runJob(name, func() error { return fn(purchaseService, ctx) })
}

func runWorker(
	name string,
	interval time.Duration,
	purchaseService *service.PurchaseService,
	fn func(s *service.PurchaseService, ctx context.Context) error,
) {
	if interval <= 0 {
		logrus.WithField("job", name).Fatal("invalid worker interval")
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	runJob(name, func() error { return fn(purchaseService, ctx) })

	for {
		select {
		case <-ctx.Done():
			logrus.WithField("job", name).Info("Worker shutdown requested")
			return
		case <-ticker.C:
			runJob(name, func() error { return fn(purchaseService, ctx) })
		}
	}
}

func runJob(name string, fn func() error) {
	start := time.Now()
	err := fn()
	latency := time.Since(start)
	entry := logrus.WithFields(logrus.Fields{"job": name, "latency": latency.String()})
	if err != nil {
		entry.WithError(err).Error("job_failed")
		return
	}
	entry.Info("job_completed")
}
