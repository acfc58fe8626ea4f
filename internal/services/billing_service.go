package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"spendly/internal/caching"
	"spendly/internal/models"
	"spendly/internal/providers"
	"spendly/internal/repositories"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

// BillingService is the subscription state machine. It is the only writer of
// subscription rows: verified, normalized events come in through
// ProcessEvent, the trial sweeper and the admin API use the remaining entry
// points. Every committed status change writes exactly one ledger row and
// synchronously invalidates the tenant's entitlement cache.
type BillingService interface {
	ProcessEvent(ctx context.Context, event *providers.Event) error
	ExpireTrial(ctx context.Context, subscriptionID uuid.UUID) error
	CancelSubscription(ctx context.Context, subscriptionID uuid.UUID, source models.EventSource) error
	ReactivateSubscription(ctx context.Context, subscriptionID uuid.UUID, source models.EventSource) error
}

type billingService struct {
	db            repositories.TxDB
	subscriptions repositories.SubscriptionRepository
	events        repositories.BillingEventRepository
	transactions  repositories.TransactionRepository
	tenants       repositories.TenantRepository
	cache         caching.EntitlementCache
	notifier      NotificationService
	logger        *zap.Logger
}

func NewBillingService(
	db repositories.TxDB,
	subscriptionRepo repositories.SubscriptionRepository,
	eventRepo repositories.BillingEventRepository,
	transactionRepo repositories.TransactionRepository,
	tenantRepo repositories.TenantRepository,
	cache caching.EntitlementCache,
	notifier NotificationService,
	logger *zap.Logger,
) BillingService {
	return &billingService{
		db:            db,
		subscriptions: subscriptionRepo,
		events:        eventRepo,
		transactions:  transactionRepo,
		tenants:       tenantRepo,
		cache:         cache,
		notifier:      notifier,
		logger:        logger,
	}
}

// applyResult carries what a committed transition requires afterwards.
type applyResult struct {
	tenantID      uuid.UUID
	statusChanged bool
	notify        func(context.Context) error
}

// ProcessEvent applies one normalized event inside a single transaction.
// The ledger insert doubles as the idempotency guard: a duplicate external
// event id rolls the whole transition back and surfaces ErrDuplicateEvent.
func (s *billingService) ProcessEvent(ctx context.Context, ev *providers.Event) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	res, err := s.applyEvent(ctx, tx, ev)
	if err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	if res.statusChanged {
		// The transition is already committed and the dedup ledger would
		// swallow a provider retry, so a failed invalidation cannot be
		// surfaced as a retryable error. The cache TTL bounds the staleness.
		if err := s.cache.InvalidateTenant(ctx, res.tenantID); err != nil {
			s.logger.Warn("entitlement invalidation failed, relying on cache TTL",
				zap.String("tenant_id", res.tenantID.String()),
				zap.Error(err))
		}
	}
	if res.notify != nil {
		// Notification delivery is best-effort and never fails the
		// transition that already committed.
		if err := res.notify(ctx); err != nil {
			s.logger.Warn("notification dispatch failed",
				zap.String("tenant_id", res.tenantID.String()),
				zap.Error(err))
		}
	}
	return nil
}

func (s *billingService) applyEvent(ctx context.Context, tx pgx.Tx, ev *providers.Event) (*applyResult, error) {
	subs := s.subscriptions.WithTx(tx)
	events := s.events.WithTx(tx)

	switch ev.Kind {
	case providers.KindSubscriptionCreated, providers.KindCheckoutCompleted:
		return s.applyCreation(ctx, ev, subs, events, s.tenants.WithTx(tx))
	case providers.KindSubscriptionUpdated:
		sub, err := s.resolveSubscription(ctx, ev, subs)
		if err != nil {
			return nil, err
		}
		return s.applyUpdateTo(ctx, ev, sub, subs, events)
	case providers.KindSubscriptionCancelled:
		return s.applyCancellation(ctx, ev, subs, events)
	case providers.KindSubscriptionReactivated:
		return s.applyReactivation(ctx, ev, subs, events)
	case providers.KindChargeSucceeded, providers.KindChargeFailed:
		return s.applyCharge(ctx, ev, subs, events, s.transactions.WithTx(tx))
	default:
		return nil, fmt.Errorf("%w: %s", providers.ErrUnsupportedEvent, ev.Kind)
	}
}

// applyCreation handles fresh signups and trial-to-paid checkouts. When the
// tenant still has a trialing subscription it is marked converted, linked to
// its successor and the ledger row is typed trial_converted instead of
// subscription_created. The trial row is locked for the duration of the
// transaction so concurrent creations for the same tenant serialize.
func (s *billingService) applyCreation(
	ctx context.Context,
	ev *providers.Event,
	subs repositories.SubscriptionRepository,
	events repositories.BillingEventRepository,
	tenants repositories.TenantRepository,
) (*applyResult, error) {
	// A redelivered creation for a subscription we already track is
	// applied as a plain update.
	if ev.ExternalSubscriptionID != "" {
		existing, err := subs.GetByExternalID(ctx, string(ev.Provider), ev.ExternalSubscriptionID)
		if err == nil {
			return s.applyUpdateTo(ctx, ev, existing, subs, events)
		}
		if !errors.Is(err, repositories.ErrNotFound) {
			return nil, err
		}
	}

	tenant, err := tenants.GetByProviderCustomerID(ctx, string(ev.Provider), ev.ExternalCustomerID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s customer %q", ErrUnresolvedTenant, ev.Provider, ev.ExternalCustomerID)
		}
		return nil, err
	}

	status := models.StatusActive
	if ev.Kind == providers.KindSubscriptionCreated && ev.RawStatus != "" {
		status = s.mapStatus(ev)
	}

	newSub := &models.Subscription{
		ID:                 uuid.New(),
		TenantID:           tenant.ID,
		Provider:           string(ev.Provider),
		PlanID:             tenant.PlanID,
		Status:             status,
		Amount:             ev.Amount,
		Currency:           ev.Currency,
		CurrentPeriodStart: ev.EffectiveAt,
		CurrentPeriodEnd:   ev.PeriodEnd,
		TrialEndsAt:        ev.TrialEndsAt,
	}
	if ev.PeriodStart != nil {
		newSub.CurrentPeriodStart = *ev.PeriodStart
	}
	if ev.ExternalSubscriptionID != "" {
		id := ev.ExternalSubscriptionID
		newSub.ExternalSubscriptionID = &id
	}

	eventType := models.EventSubscriptionCreated
	var prev *models.SubscriptionStatus

	trial, err := subs.GetNonTerminalTrialForTenant(ctx, tenant.ID)
	switch {
	case err == nil:
		if status == models.StatusTrialing {
			// Granting a second trial while one runs would break the
			// one-non-terminal-subscription invariant.
			return nil, &InvalidTransitionError{From: models.StatusTrialing, To: models.StatusTrialing}
		}
		// Terminate the trial before inserting its successor so the
		// at-most-one-non-terminal constraint holds at every point.
		if err := subs.MarkConverted(ctx, trial.ID, newSub.ID, ev.EffectiveAt); err != nil {
			return nil, fmt.Errorf("convert trial %s: %w", trial.ID, err)
		}
		eventType = models.EventTrialConverted
		p := trial.Status
		prev = &p
	case errors.Is(err, repositories.ErrNotFound):
		// fresh signup
	default:
		return nil, err
	}

	if err := subs.Create(ctx, newSub); err != nil {
		return nil, fmt.Errorf("create subscription: %w", err)
	}
	if err := s.recordWebhookEvent(ctx, events, ev, newSub, eventType, prev, &newSub.Status); err != nil {
		return nil, err
	}
	return &applyResult{tenantID: tenant.ID, statusChanged: true}, nil
}

func (s *billingService) applyUpdateTo(
	ctx context.Context,
	ev *providers.Event,
	sub *models.Subscription,
	subs repositories.SubscriptionRepository,
	events repositories.BillingEventRepository,
) (*applyResult, error) {
	newStatus := sub.Status
	if ev.RawStatus != "" {
		newStatus = s.mapStatus(ev)
	}
	if sub.Status.IsTerminal() {
		return nil, &InvalidTransitionError{From: sub.Status, To: newStatus}
	}
	if newStatus != sub.Status && !sub.Status.CanTransitionTo(newStatus) {
		return nil, &InvalidTransitionError{From: sub.Status, To: newStatus}
	}

	prev := sub.Status
	if prev == models.StatusTrialing && newStatus == models.StatusActive {
		t := ev.EffectiveAt
		sub.TrialEndedAt = &t
	}
	if newStatus == models.StatusCancelled && prev != models.StatusCancelled {
		t := ev.EffectiveAt
		sub.CancelledAt = &t
		sub.EndedAt = &t
	}
	sub.Status = newStatus
	s.refreshFromEvent(sub, ev)

	if err := subs.Update(ctx, sub); err != nil {
		return nil, fmt.Errorf("update subscription %s: %w", sub.ID, err)
	}
	if err := s.recordWebhookEvent(ctx, events, ev, sub, models.EventSubscriptionUpdated, &prev, &sub.Status); err != nil {
		return nil, err
	}
	return &applyResult{tenantID: sub.TenantID, statusChanged: sub.Status != prev}, nil
}

func (s *billingService) applyCancellation(
	ctx context.Context,
	ev *providers.Event,
	subs repositories.SubscriptionRepository,
	events repositories.BillingEventRepository,
) (*applyResult, error) {
	sub, err := s.resolveSubscription(ctx, ev, subs)
	if err != nil {
		return nil, err
	}
	if sub.Status.IsTerminal() {
		return nil, &InvalidTransitionError{From: sub.Status, To: models.StatusCancelled}
	}

	prev := sub.Status
	cancelledAt := ev.EffectiveAt
	sub.Status = models.StatusCancelled
	sub.CancelledAt = &cancelledAt
	sub.EndedAt = &cancelledAt

	if err := subs.Update(ctx, sub); err != nil {
		return nil, fmt.Errorf("cancel subscription %s: %w", sub.ID, err)
	}
	if err := s.recordWebhookEvent(ctx, events, ev, sub, models.EventSubscriptionCancelled, &prev, &sub.Status); err != nil {
		return nil, err
	}
	return &applyResult{tenantID: sub.TenantID, statusChanged: true}, nil
}

func (s *billingService) applyReactivation(
	ctx context.Context,
	ev *providers.Event,
	subs repositories.SubscriptionRepository,
	events repositories.BillingEventRepository,
) (*applyResult, error) {
	sub, err := s.resolveSubscription(ctx, ev, subs)
	if err != nil {
		return nil, err
	}
	if sub.Status != models.StatusCancelled && sub.Status != models.StatusPastDue {
		return nil, &InvalidTransitionError{From: sub.Status, To: models.StatusActive}
	}

	prev := sub.Status
	sub.Status = models.StatusActive
	sub.CancelledAt = nil
	sub.EndedAt = nil
	s.refreshFromEvent(sub, ev)

	if err := subs.Update(ctx, sub); err != nil {
		return nil, fmt.Errorf("reactivate subscription %s: %w", sub.ID, err)
	}
	if err := s.recordWebhookEvent(ctx, events, ev, sub, models.EventSubscriptionReactivated, &prev, &sub.Status); err != nil {
		return nil, err
	}
	return &applyResult{tenantID: sub.TenantID, statusChanged: true}, nil
}

// applyCharge appends the transaction record and, on a failed charge, moves
// a non-terminal subscription into dunning.
func (s *billingService) applyCharge(
	ctx context.Context,
	ev *providers.Event,
	subs repositories.SubscriptionRepository,
	events repositories.BillingEventRepository,
	txns repositories.TransactionRepository,
) (*applyResult, error) {
	sub, err := s.resolveSubscription(ctx, ev, subs)
	if err != nil {
		return nil, err
	}

	txnStatus := models.TransactionSucceeded
	eventType := models.EventChargeSucceeded
	var failureReason *string
	if ev.Kind == providers.KindChargeFailed {
		txnStatus = models.TransactionFailed
		eventType = models.EventChargeFailed
		reason := ev.FailureReason
		if reason == "" {
			reason = "unknown"
		}
		failureReason = &reason
	}

	txn := &models.Transaction{
		ID:                    uuid.New(),
		SubscriptionID:        sub.ID,
		TenantID:              sub.TenantID,
		Provider:              string(ev.Provider),
		Amount:                ev.Amount,
		Currency:              ev.Currency,
		Status:                txnStatus,
		ProviderTransactionID: ev.ExternalTransactionID,
		PeriodStart:           ev.PeriodStart,
		PeriodEnd:             ev.PeriodEnd,
		FailureReason:         failureReason,
	}
	inserted, err := txns.InsertDedup(ctx, txn)
	if err != nil {
		return nil, fmt.Errorf("append transaction: %w", err)
	}
	if !inserted {
		s.logger.Info("transaction already recorded",
			zap.String("provider", string(ev.Provider)),
			zap.String("provider_transaction_id", ev.ExternalTransactionID))
	}

	prev := sub.Status
	changed := false
	if ev.Kind == providers.KindChargeFailed && !sub.Status.IsTerminal() && sub.Status != models.StatusPastDue {
		sub.Status = models.StatusPastDue
		if err := subs.Update(ctx, sub); err != nil {
			return nil, fmt.Errorf("mark subscription %s past_due: %w", sub.ID, err)
		}
		changed = true
	}
	if err := s.recordWebhookEvent(ctx, events, ev, sub, eventType, &prev, &sub.Status); err != nil {
		return nil, err
	}

	res := &applyResult{tenantID: sub.TenantID, statusChanged: changed}
	if ev.Kind == providers.KindChargeFailed {
		reason := *failureReason
		res.notify = func(ctx context.Context) error {
			return s.notifier.SendPaymentFailed(ctx, sub.TenantID, sub.ID, reason)
		}
	}
	return res, nil
}

// ExpireTrial ends a lapsed trial through the same transition path webhook
// events use. Safe to call repeatedly; a trial already expired by a
// concurrent sweep is a no-op.
func (s *billingService) ExpireTrial(ctx context.Context, subscriptionID uuid.UUID) error {
	sub, err := s.transitionScheduled(ctx, subscriptionID, models.EventTrialExpired, models.SourceScheduler,
		func(sub *models.Subscription) error {
			if sub.Status != models.StatusTrialing {
				return errSkipTransition
			}
			now := time.Now().UTC()
			sub.Status = models.StatusExpired
			sub.TrialEndedAt = &now
			sub.EndedAt = &now
			return nil
		})
	if err != nil || sub == nil {
		return err
	}
	if err := s.notifier.SendTrialExpired(ctx, sub.TenantID, sub.ID); err != nil {
		s.logger.Warn("trial expiry notification failed",
			zap.String("subscription_id", sub.ID.String()), zap.Error(err))
	}
	return nil
}

// CancelSubscription is the manual cancellation entry point.
func (s *billingService) CancelSubscription(ctx context.Context, subscriptionID uuid.UUID, source models.EventSource) error {
	_, err := s.transitionScheduled(ctx, subscriptionID, models.EventSubscriptionCancelled, source,
		func(sub *models.Subscription) error {
			if sub.Status.IsTerminal() {
				return &InvalidTransitionError{From: sub.Status, To: models.StatusCancelled}
			}
			now := time.Now().UTC()
			sub.Status = models.StatusCancelled
			sub.CancelledAt = &now
			sub.EndedAt = &now
			return nil
		})
	return err
}

// ReactivateSubscription is the manual reactivation entry point, legal only
// from cancelled or past_due.
func (s *billingService) ReactivateSubscription(ctx context.Context, subscriptionID uuid.UUID, source models.EventSource) error {
	_, err := s.transitionScheduled(ctx, subscriptionID, models.EventSubscriptionReactivated, source,
		func(sub *models.Subscription) error {
			if sub.Status != models.StatusCancelled && sub.Status != models.StatusPastDue {
				return &InvalidTransitionError{From: sub.Status, To: models.StatusActive}
			}
			sub.Status = models.StatusActive
			sub.CancelledAt = nil
			sub.EndedAt = nil
			return nil
		})
	return err
}

// errSkipTransition aborts a scheduled transition without error.
var errSkipTransition = errors.New("skip transition")

// transitionScheduled runs a non-webhook transition (scheduler or manual
// source) in its own transaction and invalidates the entitlement cache on
// commit. Returns the updated subscription, or nil when skipped.
func (s *billingService) transitionScheduled(
	ctx context.Context,
	subscriptionID uuid.UUID,
	eventType string,
	source models.EventSource,
	mutate func(*models.Subscription) error,
) (*models.Subscription, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	subs := s.subscriptions.WithTx(tx)
	sub, err := subs.GetByID(ctx, subscriptionID)
	if err != nil {
		return nil, fmt.Errorf("load subscription %s: %w", subscriptionID, err)
	}

	prev := sub.Status
	if err := mutate(sub); err != nil {
		if errors.Is(err, errSkipTransition) {
			return nil, nil
		}
		return nil, err
	}
	if err := subs.Update(ctx, sub); err != nil {
		return nil, fmt.Errorf("update subscription %s: %w", sub.ID, err)
	}

	payload, _ := json.Marshal(map[string]string{"event_type": eventType, "source": string(source)})
	entry := &models.BillingEvent{
		ID:             uuid.New(),
		Provider:       sub.Provider,
		SubscriptionID: &sub.ID,
		TenantID:       &sub.TenantID,
		EventType:      eventType,
		PreviousStatus: &prev,
		NewStatus:      &sub.Status,
		Source:         source,
		Payload:        payload,
	}
	if _, err := s.events.WithTx(tx).InsertDedup(ctx, entry); err != nil {
		return nil, fmt.Errorf("append billing event: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}

	if err := s.cache.InvalidateTenant(ctx, sub.TenantID); err != nil {
		s.logger.Warn("entitlement invalidation failed, relying on cache TTL",
			zap.String("tenant_id", sub.TenantID.String()),
			zap.Error(err))
	}
	return sub, nil
}

func (s *billingService) resolveSubscription(ctx context.Context, ev *providers.Event, subs repositories.SubscriptionRepository) (*models.Subscription, error) {
	if ev.ExternalSubscriptionID == "" {
		return nil, fmt.Errorf("%w: event carries no subscription reference", ErrUnresolvedTenant)
	}
	sub, err := subs.GetByExternalID(ctx, string(ev.Provider), ev.ExternalSubscriptionID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s subscription %q", ErrUnresolvedTenant, ev.Provider, ev.ExternalSubscriptionID)
		}
		return nil, err
	}
	return sub, nil
}

// mapStatus translates the raw provider status, logging mapping gaps. The
// safe default for an unknown status is past_due rather than a crash.
func (s *billingService) mapStatus(ev *providers.Event) models.SubscriptionStatus {
	status, known := providers.MapStatus(ev.Provider, ev.RawStatus)
	if !known {
		s.logger.Warn("status mapping gap, applying safe default",
			zap.String("provider", string(ev.Provider)),
			zap.String("raw_status", ev.RawStatus))
	}
	return status
}

// refreshFromEvent updates the period bounds and amount fields a provider
// event carries, leaving absent fields untouched.
func (s *billingService) refreshFromEvent(sub *models.Subscription, ev *providers.Event) {
	if ev.PeriodStart != nil {
		sub.CurrentPeriodStart = *ev.PeriodStart
	}
	if ev.PeriodEnd != nil {
		sub.CurrentPeriodEnd = ev.PeriodEnd
	}
	if ev.Amount > 0 {
		sub.Amount = ev.Amount
	}
	if ev.Currency != "" {
		sub.Currency = ev.Currency
	}
	if ev.TrialEndsAt != nil {
		sub.TrialEndsAt = ev.TrialEndsAt
	}
}

func (s *billingService) recordWebhookEvent(
	ctx context.Context,
	events repositories.BillingEventRepository,
	ev *providers.Event,
	sub *models.Subscription,
	eventType string,
	prev, next *models.SubscriptionStatus,
) error {
	entry := &models.BillingEvent{
		ID:             uuid.New(),
		Provider:       string(ev.Provider),
		EventType:      eventType,
		PreviousStatus: prev,
		NewStatus:      next,
		Source:         models.SourceWebhook,
		Payload:        ev.Raw,
	}
	if ev.ExternalEventID != "" {
		id := ev.ExternalEventID
		entry.ExternalEventID = &id
	}
	if sub != nil {
		entry.SubscriptionID = &sub.ID
		entry.TenantID = &sub.TenantID
	}
	inserted, err := events.InsertDedup(ctx, entry)
	if err != nil {
		return fmt.Errorf("append billing event: %w", err)
	}
	if !inserted {
		return ErrDuplicateEvent
	}
	return nil
}
