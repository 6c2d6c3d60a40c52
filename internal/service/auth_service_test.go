package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stemsi/exstem-assess/internal/model"
)

func TestAuthService_IssueAndValidate(t *testing.T) {
	svc := NewAuthService("secret", time.Hour, nil)
	actor := model.Actor{UserID: uuid.New(), Role: model.RoleInstructor}

	token, err := svc.Issue(actor, time.Now())
	require.NoError(t, err)

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, actor, claims.Actor())
	assert.NotEmpty(t, claims.ID)
}

func TestAuthService_RejectsBadTokens(t *testing.T) {
	svc := NewAuthService("secret", time.Hour, nil)
	actor := model.Actor{UserID: uuid.New(), Role: model.RoleStudent}

	other := NewAuthService("another-secret", time.Hour, nil)
	foreign, err := other.Issue(actor, time.Now())
	require.NoError(t, err)
	_, err = svc.ValidateToken(foreign)
	assert.ErrorIs(t, err, ErrTokenInvalid)

	expired, err := svc.Issue(actor, time.Now().Add(-2*time.Hour))
	require.NoError(t, err)
	_, err = svc.ValidateToken(expired)
	assert.ErrorIs(t, err, ErrTokenInvalid)

	_, err = svc.ValidateToken("not-a-token")
	assert.ErrorIs(t, err, ErrTokenInvalid)

	_, err = svc.Issue(model.SystemActor, time.Now())
	assert.ErrorIs(t, err, ErrValidation)
}

func TestAuthService_Revoke(t *testing.T) {
	deny := &fakeDenylist{}
	svc := NewAuthService("secret", time.Hour, deny)
	now := time.Now()

	token, err := svc.Issue(model.Actor{UserID: uuid.New(), Role: model.RoleAdmin}, now)
	require.NoError(t, err)
	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)

	require.NoError(t, svc.CheckRevoked(context.Background(), claims))
	require.NoError(t, svc.Revoke(context.Background(), claims, now))
	assert.ErrorIs(t, svc.CheckRevoked(context.Background(), claims), ErrTokenRevoked)

	ttl := deny.revoked[claims.ID]
	assert.InDelta(t, time.Hour.Seconds(), ttl.Seconds(), 1)
}
