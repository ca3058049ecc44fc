package store

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/safar/smartgrocer/internal/models"
)

const notificationColumns = `id, user_id, title, message, type, is_read, sent_at`

// CreateNotification logs a message that was delivered to a user.
func CreateNotification(ctx context.Context, db sqlx.QueryerContext, n *models.Notification) error {
	if n.Type == "" {
		n.Type = models.NotificationSystem
	}

	query := `
		INSERT INTO notifications (user_id, title, message, type, is_read, sent_at)
		VALUES ($1, $2, $3, $4, FALSE, NOW())
		RETURNING id, is_read, sent_at`

	err := db.QueryRowxContext(ctx, query, n.UserID, n.Title, n.Message, n.Type).
		Scan(&n.ID, &n.IsRead, &n.SentAt)
	if err != nil {
		return errors.Wrap(err, "create notification")
	}

	return nil
}

func ListNotifications(ctx context.Context, db *sqlx.DB, userID int64) ([]models.Notification, error) {
	query := `
		SELECT ` + notificationColumns + `
		FROM notifications
		WHERE user_id = $1
		ORDER BY sent_at DESC, id DESC`

	notifications := []models.Notification{}
	if err := sqlx.SelectContext(ctx, db, &notifications, query, userID); err != nil {
		return nil, errors.Wrap(err, "list notifications")
	}

	return notifications, nil
}

// ListReminderCandidates returns users with positive dues and a notification token, largest debt first.
func ListReminderCandidates(ctx context.Context, db *sqlx.DB) ([]models.ReminderCandidate, error) {
	query := `
		SELECT ` + userColumns + `,
		       (SELECT MAX(t.date) FROM transactions t WHERE t.user_id = users.id) AS last_transaction_at
		FROM users
		WHERE pending_dues > 0
		  AND notification_token IS NOT NULL
		  AND notification_token <> ''
		ORDER BY pending_dues DESC, id`

	candidates := []models.ReminderCandidate{}
	if err := sqlx.SelectContext(ctx, db, &candidates, query); err != nil {
		return nil, errors.Wrap(err, "list reminder candidates")
	}

	return candidates, nil
}

// ListPromotionRecipients returns every reachable customer.
func ListPromotionRecipients(ctx context.Context, db *sqlx.DB) ([]models.User, error) {
	query := `
		SELECT ` + userColumns + `
		FROM users
		WHERE role = $1
		  AND notification_token IS NOT NULL
		  AND notification_token <> ''
		ORDER BY id`

	users := []models.User{}
	if err := sqlx.SelectContext(ctx, db, &users, query, models.RoleCustomer); err != nil {
		return nil, errors.Wrap(err, "list promotion recipients")
	}

	return users, nil
}

// NotificationRepository exposes the notification queries to services that only hold an interface.
type NotificationRepository struct {
	db *sqlx.DB
}

func NewNotificationRepository(db *sqlx.DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

func (r *NotificationRepository) ReminderCandidates(ctx context.Context) ([]models.ReminderCandidate, error) {
	return ListReminderCandidates(ctx, r.db)
}

func (r *NotificationRepository) PromotionRecipients(ctx context.Context) ([]models.User, error) {
	return ListPromotionRecipients(ctx, r.db)
}

func (r *NotificationRepository) LogNotification(ctx context.Context, n *models.Notification) error {
	return CreateNotification(ctx, r.db, n)
}
