package inmemdb

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/trezcool/ustawi/core"
	"github.com/trezcool/ustawi/core/notif"
)

type notifRepository struct {
	db *DB
}

var _ notif.Repository = (*notifRepository)(nil) // interface compliance check

func NewNotificationRepository(db *DB) *notifRepository {
	return &notifRepository{db: db}
}

func (repo *notifRepository) CreateNotification(ctx context.Context, n notif.Notification, exec ...core.DBExecutor) (notif.Notification, error) {
	repo.db.notification.mutex.Lock()
	defer repo.db.notification.mutex.Unlock()

	n.ID = uuid.New().String()
	repo.db.notification.table[n.ID] = &n
	return n, nil
}

func (repo *notifRepository) GetNotification(ctx context.Context, id string, exec ...core.DBExecutor) (notif.Notification, error) {
	repo.db.notification.mutex.RLock()
	defer repo.db.notification.mutex.RUnlock()

	if n, ok := repo.db.notification.table[id]; ok {
		return *n, nil
	}
	return notif.Notification{}, notif.ErrNotFound
}

func (repo *notifRepository) QueryUnread(ctx context.Context, userID string, exec ...core.DBExecutor) ([]notif.Notification, error) {
	repo.db.notification.mutex.RLock()
	defer repo.db.notification.mutex.RUnlock()

	notifs := make([]notif.Notification, 0)
	for _, n := range repo.db.notification.table {
		if n.UserID == userID && !n.IsRead {
			notifs = append(notifs, *n)
		}
	}
	sort.Slice(notifs, func(i, j int) bool { return notifs[i].CreatedAt.Before(notifs[j].CreatedAt) })
	return notifs, nil
}

func (repo *notifRepository) MarkNotificationRead(ctx context.Context, id string, exec ...core.DBExecutor) (notif.Notification, error) {
	repo.db.notification.mutex.Lock()
	defer repo.db.notification.mutex.Unlock()

	n, ok := repo.db.notification.table[id]
	if !ok {
		return notif.Notification{}, notif.ErrNotFound
	}
	updated := *n
	updated.IsRead = true
	repo.db.notification.table[id] = &updated
	return updated, nil
}
