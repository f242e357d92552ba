package mfa

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/loopcraft/iamd/internal/domain"
)

type memoryUserRepo struct {
	mu    sync.Mutex
	users map[int64]domain.User
}

func newMemoryUserRepo(users ...domain.User) *memoryUserRepo {
	repo := &memoryUserRepo{users: map[int64]domain.User{}}
	for _, u := range users {
		repo.users[u.ID] = u
	}
	return repo
}

func (r *memoryUserRepo) GetByID(_ context.Context, userID int64) (domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[userID]
	if !ok {
		return domain.User{}, fmt.Errorf("get user: %w", domain.ErrNotFound)
	}
	return user, nil
}

func (r *memoryUserRepo) GetByEmail(_ context.Context, email string) (domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Email == email {
			return u, nil
		}
	}
	return domain.User{}, fmt.Errorf("get user: %w", domain.ErrNotFound)
}

func (r *memoryUserRepo) GetByProviderID(_ context.Context, provider, externalID string) (domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Provider == provider && u.ProviderUserID == externalID {
			return u, nil
		}
	}
	return domain.User{}, fmt.Errorf("get user: %w", domain.ErrNotFound)
}

func (r *memoryUserRepo) Create(_ context.Context, user domain.User) (domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users[user.ID] = user
	return user, nil
}

func (r *memoryUserRepo) Update(_ context.Context, user domain.User) (domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[user.ID]; !ok {
		return domain.User{}, fmt.Errorf("update user: %w", domain.ErrNotFound)
	}
	r.users[user.ID] = user
	return user, nil
}

func newTestService(t *testing.T, users ...domain.User) (*Service, *memoryUserRepo) {
	t.Helper()
	repo := newMemoryUserRepo(users...)
	svc := NewService(repo, NewManager("loopcraft"), zap.NewNop())
	return svc, repo
}

func TestSetupRoundTrip(t *testing.T) {
	svc, repo := newTestService(t, domain.User{ID: 1, Email: "user@example.com", Active: true})
	ctx := context.Background()

	setup, err := svc.BeginSetup(ctx, 1)
	require.NoError(t, err)
	require.NotEmpty(t, setup.Secret)
	require.Contains(t, setup.ProvisioningURI, "otpauth://totp/")

	// Enforcement stays off while the secret is pending.
	user, err := repo.GetByID(ctx, 1)
	require.NoError(t, err)
	require.False(t, user.MFAEnabled)
	require.NotEmpty(t, user.MFAPendingSecret)
	require.Empty(t, user.MFASecret)

	code := svc.manager.Code(user.MFAPendingSecret, time.Now())
	require.NoError(t, svc.ConfirmSetup(ctx, 1, code))

	user, err = repo.GetByID(ctx, 1)
	require.NoError(t, err)
	require.True(t, user.MFAEnabled)
	require.NotEmpty(t, user.MFASecret)
	require.Empty(t, user.MFAPendingSecret)

	require.True(t, svc.VerifyLogin(user, svc.manager.Code(user.MFASecret, time.Now())))
}

func TestConfirmSetupWrongCode(t *testing.T) {
	svc, repo := newTestService(t, domain.User{ID: 1, Email: "user@example.com", Active: true})
	ctx := context.Background()

	_, err := svc.BeginSetup(ctx, 1)
	require.NoError(t, err)

	err = svc.ConfirmSetup(ctx, 1, "000000")
	require.ErrorIs(t, err, domain.ErrSecondFactorInvalid)

	user, err := repo.GetByID(ctx, 1)
	require.NoError(t, err)
	require.False(t, user.MFAEnabled)
	require.NotEmpty(t, user.MFAPendingSecret)
}

func TestConfirmSetupWithoutPending(t *testing.T) {
	svc, _ := newTestService(t, domain.User{ID: 1, Email: "user@example.com", Active: true})

	err := svc.ConfirmSetup(context.Background(), 1, "123456")
	require.ErrorIs(t, err, domain.ErrNoPendingSetup)
}

func TestBeginSetupReplacesPendingSecret(t *testing.T) {
	svc, repo := newTestService(t, domain.User{ID: 1, Email: "user@example.com", Active: true})
	ctx := context.Background()

	_, err := svc.BeginSetup(ctx, 1)
	require.NoError(t, err)
	first, err := repo.GetByID(ctx, 1)
	require.NoError(t, err)

	_, err = svc.BeginSetup(ctx, 1)
	require.NoError(t, err)
	second, err := repo.GetByID(ctx, 1)
	require.NoError(t, err)

	require.NotEqual(t, first.MFAPendingSecret, second.MFAPendingSecret)

	// Codes from the superseded secret no longer confirm.
	stale := svc.manager.Code(first.MFAPendingSecret, time.Now())
	fresh := svc.manager.Code(second.MFAPendingSecret, time.Now())
	if stale != fresh {
		require.ErrorIs(t, svc.ConfirmSetup(ctx, 1, stale), domain.ErrSecondFactorInvalid)
	}
	require.NoError(t, svc.ConfirmSetup(ctx, 1, fresh))
}

func TestDisableClearsAllState(t *testing.T) {
	svc, repo := newTestService(t, domain.User{ID: 1, Email: "user@example.com", Active: true})
	ctx := context.Background()

	_, err := svc.BeginSetup(ctx, 1)
	require.NoError(t, err)
	user, err := repo.GetByID(ctx, 1)
	require.NoError(t, err)
	require.NoError(t, svc.ConfirmSetup(ctx, 1, svc.manager.Code(user.MFAPendingSecret, time.Now())))

	require.NoError(t, svc.Disable(ctx, 1))

	user, err = repo.GetByID(ctx, 1)
	require.NoError(t, err)
	require.False(t, user.MFAEnabled)
	require.Empty(t, user.MFASecret)
	require.Empty(t, user.MFAPendingSecret)
}

func TestVerifyLoginIgnoresPendingSecret(t *testing.T) {
	svc, repo := newTestService(t, domain.User{ID: 1, Email: "user@example.com", Active: true})
	ctx := context.Background()

	_, err := svc.BeginSetup(ctx, 1)
	require.NoError(t, err)
	user, err := repo.GetByID(ctx, 1)
	require.NoError(t, err)

	code := svc.manager.Code(user.MFAPendingSecret, time.Now())
	require.False(t, svc.VerifyLogin(user, code))
}
