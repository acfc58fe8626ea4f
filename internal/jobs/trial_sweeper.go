package jobs

import (
	"context"
	"time"

	"spendly/internal/models"
	"spendly/internal/repositories"
	"spendly/internal/services"

	"go.uber.org/zap"
)

// sweepBatchSize bounds each table scan so a large backlog never holds one
// long transaction or unbounded memory.
const sweepBatchSize = 100

// TrialSweeper is the one component that runs without an external trigger.
// Every operation it performs is idempotent (the state machine skips
// already-expired trials, reminder rows dedup on insert), so overlapping
// runs are safe without a distributed lock.
type TrialSweeper struct {
	subscriptions repositories.SubscriptionRepository
	reminders     repositories.ReminderRepository
	events        repositories.BillingEventRepository
	billing       services.BillingService
	notifier      services.NotificationService
	reminderDays  []int
	retention     time.Duration
	logger        *zap.Logger
}

// SweepStats summarizes one sweep for the trigger endpoint and logs.
type SweepStats struct {
	TrialsExpired  int   `json:"trials_expired"`
	RemindersSent  int   `json:"reminders_sent"`
	LedgerPruned   int64 `json:"ledger_pruned"`
	ExpiryFailures int   `json:"expiry_failures"`
}

func NewTrialSweeper(
	subscriptionRepo repositories.SubscriptionRepository,
	reminderRepo repositories.ReminderRepository,
	eventRepo repositories.BillingEventRepository,
	billing services.BillingService,
	notifier services.NotificationService,
	reminderDays []int,
	retention time.Duration,
	logger *zap.Logger,
) *TrialSweeper {
	return &TrialSweeper{
		subscriptions: subscriptionRepo,
		reminders:     reminderRepo,
		events:        eventRepo,
		billing:       billing,
		notifier:      notifier,
		reminderDays:  reminderDays,
		retention:     retention,
		logger:        logger,
	}
}

// Run executes one full sweep: expire lapsed trials, dispatch expiry
// warnings at the configured lead times, prune old ledger rows.
func (s *TrialSweeper) Run(ctx context.Context) (*SweepStats, error) {
	stats := &SweepStats{}

	if err := s.expireLapsedTrials(ctx, stats); err != nil {
		return stats, err
	}
	if err := s.sendExpiryReminders(ctx, stats); err != nil {
		return stats, err
	}
	if s.retention > 0 {
		pruned, err := s.events.DeleteOlderThan(ctx, time.Now().UTC().Add(-s.retention))
		if err != nil {
			return stats, err
		}
		stats.LedgerPruned = pruned
	}

	s.logger.Info("trial sweep finished",
		zap.Int("trials_expired", stats.TrialsExpired),
		zap.Int("reminders_sent", stats.RemindersSent),
		zap.Int64("ledger_pruned", stats.LedgerPruned),
		zap.Int("expiry_failures", stats.ExpiryFailures))
	return stats, nil
}

func (s *TrialSweeper) expireLapsedTrials(ctx context.Context, stats *SweepStats) error {
	now := time.Now().UTC()
	for {
		batch, err := s.subscriptions.FindExpiredTrials(ctx, now, sweepBatchSize)
		if err != nil {
			return err
		}
		expired := 0
		for _, sub := range batch {
			if err := s.billing.ExpireTrial(ctx, sub.ID); err != nil {
				stats.ExpiryFailures++
				s.logger.Error("trial expiry failed",
					zap.String("subscription_id", sub.ID.String()), zap.Error(err))
				continue
			}
			expired++
			stats.TrialsExpired++
		}
		// Stop when the backlog is drained, or when nothing in this batch
		// succeeded (the next fetch would return the same rows).
		if len(batch) < sweepBatchSize || expired == 0 {
			return nil
		}
	}
}

func (s *TrialSweeper) sendExpiryReminders(ctx context.Context, stats *SweepStats) error {
	now := time.Now().UTC()
	for _, days := range s.reminderDays {
		until := now.Add(time.Duration(days) * 24 * time.Hour)
		trials, err := s.subscriptions.FindTrialsEndingBetween(ctx, now, until, sweepBatchSize)
		if err != nil {
			return err
		}
		for _, sub := range trials {
			// Insert-if-absent on (subscription, days_before) makes the
			// reminder at-most-once across overlapping sweeps.
			inserted, err := s.reminders.InsertIfAbsent(ctx, &models.TrialReminder{
				SubscriptionID: sub.ID,
				TenantID:       sub.TenantID,
				DaysBefore:     days,
			})
			if err != nil {
				return err
			}
			if !inserted {
				continue
			}
			if err := s.notifier.SendTrialExpiringReminder(ctx, sub.TenantID, sub.ID, days); err != nil {
				s.logger.Warn("trial reminder dispatch failed",
					zap.String("subscription_id", sub.ID.String()),
					zap.Int("days_before", days),
					zap.Error(err))
				continue
			}
			stats.RemindersSent++
		}
	}
	return nil
}
