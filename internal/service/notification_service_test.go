package service

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stemsi/exstem-assess/internal/model"
)

type fakeNotificationStore struct {
	gotLimit int
	items    []model.Notification
}

func (f *fakeNotificationStore) ListByRecipient(_ context.Context, userID uuid.UUID, limit int) ([]model.Notification, error) {
	f.gotLimit = limit
	var out []model.Notification
	for _, n := range f.items {
		if n.RecipientID != nil && *n.RecipientID == userID {
			out = append(out, n)
		}
	}
	return out, nil
}

func TestNotificationService_ListMine(t *testing.T) {
	me := model.Actor{UserID: uuid.New(), Role: model.RoleStudent}
	store := &fakeNotificationStore{items: []model.Notification{
		model.NewNotification(model.EventAttemptGraded, uuid.New(), nil, t0).To(me.UserID),
		model.NewNotification(model.EventAttemptGraded, uuid.New(), nil, t0).To(uuid.New()),
	}}
	svc := NewNotificationService(store)
	ctx := context.Background()

	list, err := svc.ListMine(ctx, me, 500)
	require.NoError(t, err)
	assert.Len(t, list, 1)
	assert.Equal(t, 100, store.gotLimit)

	list, err = svc.ListMine(ctx, model.Actor{UserID: uuid.New(), Role: model.RoleStudent}, 0)
	require.NoError(t, err)
	assert.NotNil(t, list)
	assert.Empty(t, list)
	assert.Equal(t, 1, store.gotLimit)

	_, err = svc.ListMine(ctx, model.SystemActor, 10)
	assert.ErrorIs(t, err, ErrValidation)
}
