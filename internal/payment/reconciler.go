package payment

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"github.com/frahmantamala/dental-credit/internal/cache"
)

const (
	reconcileBatch       = 100
	reconcileConcurrency = 4
)

// StatusUpdater applies a local payment status. *Service satisfies it.
type StatusUpdater interface {
	UpdatePaymentStatus(ctx context.Context, processorID, status, failureReason string, response []byte) (*Payment, error)
}

// SweepStats counts the outcome of one reconciliation sweep.
type SweepStats struct {
	Checked int
	Updated int
	Skipped int
}

// Reconciler asks the processor about payments whose webhook never arrived.
type Reconciler struct {
	repo      RepositoryAPI
	processor Processor
	updater   StatusUpdater
	after     time.Duration
	clock     cache.Clock
	logger    *slog.Logger
}

func NewReconciler(repo RepositoryAPI, processor Processor, updater StatusUpdater, after time.Duration, clock cache.Clock, logger *slog.Logger) *Reconciler {
	if clock == nil {
		clock = cache.SystemClock{}
	}
	return &Reconciler{
		repo:      repo,
		processor: processor,
		updater:   updater,
		after:     after,
		clock:     clock,
		logger:    logger,
	}
}

// Sweep checks every open payment untouched for longer than the threshold.
// Processor errors leave the row as it is.
func (r *Reconciler) Sweep(ctx context.Context) (SweepStats, error) {
	before := r.clock.Now().UTC().Add(-r.after)
	rows, err := r.repo.ListOpenBefore(ctx, before, reconcileBatch)
	if err != nil {
		return SweepStats{}, err
	}

	var updated, skipped int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(reconcileConcurrency)
	for _, row := range rows {
		row := row
		g.Go(func() error {
			id := row.ProcessorID()
			if id == "" {
				atomic.AddInt64(&skipped, 1)
				return nil
			}
			st, err := r.processor.ConfirmPayment(gctx, id)
			if err != nil {
				r.logger.Warn("processor status check failed", "payment_id", row.ID, "processor_id", id, "error", err)
				atomic.AddInt64(&skipped, 1)
				return nil
			}
			status := MapProcessorStatus(st.Status)
			if status == "" || status == row.Status {
				return nil
			}
			if _, err := r.updater.UpdatePaymentStatus(gctx, id, status, st.FailureReason, marshal(st)); err != nil {
				r.logger.Error("reconcile update failed", "payment_id", row.ID, "error", err)
				atomic.AddInt64(&skipped, 1)
				return nil
			}
			atomic.AddInt64(&updated, 1)
			return nil
		})
	}
	err = g.Wait()

	stats := SweepStats{Checked: len(rows), Updated: int(updated), Skipped: int(skipped)}
	r.logger.Info("payment reconciliation finished",
		"checked", stats.Checked,
		"updated", stats.Updated,
		"skipped", stats.Skipped)
	return stats, err
}

// Schedule runs Sweep on the cron spec until ctx is done. An empty spec disables it.
func (r *Reconciler) Schedule(ctx context.Context, spec string) error {
	if spec == "" {
		r.logger.Info("payment reconciliation disabled")
		<-ctx.Done()
		return nil
	}

	c := cron.New()
	if _, err := c.AddFunc(spec, func() {
		if _, err := r.Sweep(ctx); err != nil {
			r.logger.Error("payment reconciliation failed", "error", err)
		}
	}); err != nil {
		return err
	}

	r.logger.Info("payment reconciliation scheduled", "schedule", spec, "after", r.after)
	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
	return nil
}
