package postgres

import (
	"context"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/trezcool/ustawi/core"
	"github.com/trezcool/ustawi/core/notif"
)

const notificationColumns = `id, user_id, type, content, is_read, created_at`

type notificationRepository struct {
	db core.DB
}

var _ notif.Repository = (*notificationRepository)(nil) // interface compliance check

func NewNotificationRepository(db core.DB) *notificationRepository {
	return &notificationRepository{db: db}
}

func (repo *notificationRepository) CreateNotification(ctx context.Context, n notif.Notification, exec ...core.DBExecutor) (notif.Notification, error) {
	ex := getExec(repo.db, exec)

	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	query := `
		INSERT INTO notification (` + notificationColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6)`
	_, err := ex.ExecContext(ctx, query, n.ID, n.UserID, n.Type, n.Content, n.IsRead, n.CreatedAt)
	if err != nil {
		return notif.Notification{}, errors.Wrap(err, "creating notification")
	}
	return n, nil
}

func (repo *notificationRepository) GetNotification(ctx context.Context, id string, exec ...core.DBExecutor) (notif.Notification, error) {
	ex := getExec(repo.db, exec)

	var n notif.Notification
	query := `SELECT ` + notificationColumns + ` FROM notification WHERE id = $1`
	if err := ex.GetContext(ctx, &n, query, id); err != nil {
		return notif.Notification{}, trapNoRowsErr(err, notif.ErrNotFound)
	}
	return n, nil
}

func (repo *notificationRepository) QueryUnread(ctx context.Context, userID string, exec ...core.DBExecutor) ([]notif.Notification, error) {
	ex := getExec(repo.db, exec)

	query := `
		SELECT ` + notificationColumns + `
		FROM notification
		WHERE user_id = $1 AND NOT is_read
		ORDER BY created_at`

	var notifications []notif.Notification
	if err := ex.SelectContext(ctx, &notifications, query, userID); err != nil {
		return nil, errors.Wrap(err, "querying notifications")
	}
	return notifications, nil
}

func (repo *notificationRepository) MarkNotificationRead(ctx context.Context, id string, exec ...core.DBExecutor) (notif.Notification, error) {
	ex := getExec(repo.db, exec)

	var n notif.Notification
	query := `
		UPDATE notification
		SET is_read = TRUE
		WHERE id = $1
		RETURNING ` + notificationColumns
	if err := ex.GetContext(ctx, &n, query, id); err != nil {
		return notif.Notification{}, trapNoRowsErr(err, notif.ErrNotFound)
	}
	return n, nil
}
