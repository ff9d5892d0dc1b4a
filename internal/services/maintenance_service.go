package services

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"growvia-service/internal/metrics"
)

// MaintenanceService runs the periodic jobs: expired OTP cleanup, re-queueing
// of payouts whose disbursement job was lost, and re-checking payouts left
// processing with no provider outcome.
type MaintenanceService struct {
	Payouts  *PayoutService
	Methods  *PayoutMethodService
	Queue    PayoutQueue
	SweepAge time.Duration
	Now      Clock
}

func NewMaintenanceService(payouts *PayoutService, methods *PayoutMethodService, queue PayoutQueue, sweepAge time.Duration) *MaintenanceService {
	return &MaintenanceService{Payouts: payouts, Methods: methods, Queue: queue, SweepAge: sweepAge, Now: systemClock}
}

func (s *MaintenanceService) PurgeOTPs(ctx context.Context) (int64, error) {
	start := time.Now()
	n, err := s.Methods.PurgeExpiredOTPs(ctx, s.Now())
	metrics.RecordJob("otp_purge", time.Since(start), err)
	return n, err
}

// SweepPendingPayouts enqueues disbursement for payouts stuck in pending.
// The queue deduplicates on payout id, so a job still in flight is not doubled.
func (s *MaintenanceService) SweepPendingPayouts(ctx context.Context) (int, error) {
	start := time.Now()
	ids, err := s.Payouts.PendingIDs(ctx, s.Now().Add(-s.SweepAge), 100)
	if err != nil {
		metrics.RecordJob("payout_sweep", time.Since(start), err)
		return 0, err
	}
	queued := s.enqueueAll(ctx, ids)
	metrics.RecordJob("payout_sweep", time.Since(start), nil)
	if queued > 0 {
		logrus.WithField("count", queued).Info("re-queued pending payouts")
	}
	return queued, nil
}

// SweepProcessingPayouts re-queues payouts that have sat in processing past
// the sweep age. The disbursement job verifies the transfer at the provider
// before doing anything else.
func (s *MaintenanceService) SweepProcessingPayouts(ctx context.Context) (int, error) {
	start := time.Now()
	ids, err := s.Payouts.ProcessingIDs(ctx, s.Now().Add(-s.SweepAge), 100)
	if err != nil {
		metrics.RecordJob("payout_verify_sweep", time.Since(start), err)
		return 0, err
	}
	queued := s.enqueueAll(ctx, ids)
	metrics.RecordJob("payout_verify_sweep", time.Since(start), nil)
	if queued > 0 {
		logrus.WithField("count", queued).Info("re-queued processing payouts for verification")
	}
	return queued, nil
}

func (s *MaintenanceService) enqueueAll(ctx context.Context, ids []string) int {
	queued := 0
	for _, id := range ids {
		if err := s.Queue.EnqueueDisbursement(ctx, id); err != nil {
			logrus.WithError(err).WithField("payout_id", id).Warn("sweep enqueue failed")
			continue
		}
		queued++
	}
	return queued
}

// StartScheduler registers the purge and sweep jobs and starts the cron
// runner. The caller stops it on shutdown.
func (s *MaintenanceService) StartScheduler(purgeSpec, sweepSpec string) (*cron.Cron, error) {
	c := cron.New()
	if _, err := c.AddFunc(purgeSpec, func() {
		if _, err := s.PurgeOTPs(context.Background()); err != nil {
			logrus.WithError(err).Error("otp purge failed")
		}
	}); err != nil {
		return nil, fmt.Errorf("schedule otp purge: %w", err)
	}
	if _, err := c.AddFunc(sweepSpec, func() {
		ctx := context.Background()
		if _, err := s.SweepPendingPayouts(ctx); err != nil {
			logrus.WithError(err).Error("payout sweep failed")
		}
		if _, err := s.SweepProcessingPayouts(ctx); err != nil {
			logrus.WithError(err).Error("processing payout sweep failed")
		}
	}); err != nil {
		return nil, fmt.Errorf("schedule payout sweep: %w", err)
	}
	c.Start()
	logrus.WithFields(logrus.Fields{"otp_purge": purgeSpec, "payout_sweep": sweepSpec}).Info("maintenance scheduler started")
	return c, nil
}
