package notif

import (
	"context"

	"github.com/pkg/errors"

	"github.com/trezcool/ustawi/core"
	"github.com/trezcool/ustawi/core/user"
)

var ErrNotFound = errors.New("notification not found")

type (
	Repository interface {
		CreateNotification(ctx context.Context, n Notification, exec ...core.DBExecutor) (Notification, error)
		GetNotification(ctx context.Context, id string, exec ...core.DBExecutor) (Notification, error)
		// QueryUnread returns a user's unread notifications ordered by creation time.
		QueryUnread(ctx context.Context, userID string, exec ...core.DBExecutor) ([]Notification, error)
		MarkNotificationRead(ctx context.Context, id string, exec ...core.DBExecutor) (Notification, error)
	}

	Service interface {
		ListUnread(ctx context.Context, actor user.Actor) ([]Notification, error)
		MarkRead(ctx context.Context, actor user.Actor, id string) (Notification, error)
	}

	service struct {
		repo   Repository
		broker *Broker
	}
)

var _ Service = (*service)(nil) // interface compliance check

func NewService(repo Repository, broker *Broker) *service {
	return &service{repo: repo, broker: broker}
}

func (svc *service) ListUnread(ctx context.Context, actor user.Actor) ([]Notification, error) {
	return svc.repo.QueryUnread(ctx, actor.ID)
}

// MarkRead marks one of the actor's own notifications as read.
// Another user's notification is reported as not found.
func (svc *service) MarkRead(ctx context.Context, actor user.Actor, id string) (Notification, error) {
	n, err := svc.repo.GetNotification(ctx, id)
	if err != nil {
		return Notification{}, err
	}
	if n.UserID != actor.ID {
		return Notification{}, ErrNotFound
	}
	if n.IsRead {
		return n, nil
	}
	return svc.repo.MarkNotificationRead(ctx, id)
}
