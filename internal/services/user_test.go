package services

import (
	"context"
	"testing"

	"github.com/inkwell-comics/modsvc/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func newUserService(f *fixture) *UserService {
	svc := NewUserService(f.store.Users())
	svc.hashCost = bcrypt.MinCost
	return svc
}

func TestUserServiceRegister(t *testing.T) {
	f := newFixture(t)
	svc := newUserService(f)
	ctx := context.Background()

	user, err := svc.Register(ctx, " neo ", "neo@example.com", "Neo", "password123")
	require.NoError(t, err)
	assert.Equal(t, "neo", user.Username)
	assert.Equal(t, types.RoleUser, user.Role)
	assert.Equal(t, types.StatusOffline, user.Status)
	assert.NotEqual(t, "password123", user.PasswordHash)

	_, err = svc.Register(ctx, "neo", "x@example.com", "x", "password123")
	assert.ErrorIs(t, err, ErrDuplicateAccount)

	_, err = svc.Register(ctx, "  ", "y@example.com", "y", "password123")
	assert.ErrorIs(t, err, ErrInvalidInput)

	got, err := svc.GetByUsername(ctx, "neo")
	require.NoError(t, err)
	assert.Equal(t, user.ID, got.ID)
}

func TestUserServiceAuthenticate(t *testing.T) {
	f := newFixture(t)
	svc := newUserService(f)
	ctx := context.Background()

	user, err := svc.Register(ctx, "trinity", "t@example.com", "Trinity", "password123")
	require.NoError(t, err)

	got, err := svc.Authenticate(ctx, "trinity", "password123")
	require.NoError(t, err)
	assert.Equal(t, user.ID, got.ID)

	_, err = svc.Authenticate(ctx, "trinity", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = svc.Authenticate(ctx, "nobody", "password123")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = f.store.Users().Ban(ctx, user.ID)
	require.NoError(t, err)
	_, err = svc.Authenticate(ctx, "trinity", "password123")
	assert.ErrorIs(t, err, ErrAccountBanned)
	_, err = svc.Authenticate(ctx, "trinity", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}
