package repositories

import (
	"context"

	"spendly/internal/models"
)

type ReminderRepository interface {
	// InsertIfAbsent records that a reminder was dispatched. inserted is
	// false when the (subscription, days_before) pair already exists, which
	// is how overlapping sweeper runs avoid double-sending.
	InsertIfAbsent(ctx context.Context, reminder *models.TrialReminder) (inserted bool, err error)
}

type reminderRepo struct {
	db DB
}

func NewReminderRepo(db DB) ReminderRepository {
	return &reminderRepo{db: db}
}

func (r *reminderRepo) InsertIfAbsent(ctx context.Context, reminder *models.TrialReminder) (bool, error) {
	query := `
		INSERT INTO trial_reminders (subscription_id, tenant_id, days_before, sent_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (subscription_id, days_before) DO NOTHING
	`
	tag, err := r.db.Exec(ctx, query, reminder.SubscriptionID, reminder.TenantID, reminder.DaysBefore)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}
