package service

import (
	"context"

	"github.com/google/uuid"
	"github.com/stemsi/exstem-assess/internal/model"
)

// NotificationStore reads persisted notifications.
type NotificationStore interface {
	ListByRecipient(ctx context.Context, userID uuid.UUID, limit int) ([]model.Notification, error)
}

// NotificationService serves a user's notification inbox.
type NotificationService struct {
	store NotificationStore
}

// NewNotificationService creates a new NotificationService.
func NewNotificationService(store NotificationStore) *NotificationService {
	return &NotificationService{store: store}
}

// ListMine returns the newest notifications addressed to actor, at most
// limit of them. limit is clamped to [1, 100].
func (s *NotificationService) ListMine(ctx context.Context, actor model.Actor, limit int) ([]model.Notification, error) {
	if actor.UserID == uuid.Nil {
		return nil, validationf("anonymous caller")
	}
	limit = min(max(limit, 1), 100)

	list, err := s.store.ListByRecipient(ctx, actor.UserID, limit)
	if err != nil {
		return nil, storeErr("list notifications", err)
	}
	if list == nil {
		list = []model.Notification{}
	}
	return list, nil
}
