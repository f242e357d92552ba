package otp

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/loopcraft/iamd/internal/domain"
)

type memoryOTPStore struct {
	mu      sync.Mutex
	records map[string]domain.OTPRecord
}

func newMemoryOTPStore() *memoryOTPStore {
	return &memoryOTPStore{records: map[string]domain.OTPRecord{}}
}

func (s *memoryOTPStore) Save(_ context.Context, email string, record domain.OTPRecord, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[email] = record
	return nil
}

func (s *memoryOTPStore) Get(_ context.Context, email string) (*domain.OTPRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.records[email]
	if !ok {
		return nil, nil
	}
	return &record, nil
}

func (s *memoryOTPStore) Delete(_ context.Context, email string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, email)
	return nil
}

func newTestRegistry(t *testing.T) (*Registry, *memoryOTPStore, *time.Time) {
	t.Helper()
	store := newMemoryOTPStore()
	registry := NewRegistry(store, 15*time.Minute, zap.NewNop())
	current := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	registry.now = func() time.Time { return current }
	return registry, store, &current
}

func TestIssueAndVerify(t *testing.T) {
	registry, _, _ := newTestRegistry(t)
	ctx := context.Background()

	code, err := registry.Issue(ctx, "user@example.com")
	require.NoError(t, err)
	require.Len(t, code, 6)

	status, err := registry.Verify(ctx, "user@example.com", code)
	require.NoError(t, err)
	require.Equal(t, StatusValid, status)

	verified, err := registry.Verified(ctx, "user@example.com")
	require.NoError(t, err)
	require.True(t, verified)
}

func TestVerifyMismatchDoesNotConsume(t *testing.T) {
	registry, _, _ := newTestRegistry(t)
	ctx := context.Background()

	code, err := registry.Issue(ctx, "user@example.com")
	require.NoError(t, err)

	wrong := "000000"
	if wrong == code {
		wrong = "000001"
	}
	status, err := registry.Verify(ctx, "user@example.com", wrong)
	require.NoError(t, err)
	require.Equal(t, StatusMismatch, status)

	// The correct code still verifies after a failed attempt.
	status, err = registry.Verify(ctx, "user@example.com", code)
	require.NoError(t, err)
	require.Equal(t, StatusValid, status)
}

func TestIssueSupersedesPriorCode(t *testing.T) {
	registry, _, _ := newTestRegistry(t)
	ctx := context.Background()

	first, err := registry.Issue(ctx, "user@example.com")
	require.NoError(t, err)
	second, err := registry.Issue(ctx, "user@example.com")
	require.NoError(t, err)

	if first != second {
		status, err := registry.Verify(ctx, "user@example.com", first)
		require.NoError(t, err)
		require.Equal(t, StatusMismatch, status)
	}
	status, err := registry.Verify(ctx, "user@example.com", second)
	require.NoError(t, err)
	require.Equal(t, StatusValid, status)
}

func TestVerifyExpiryBoundary(t *testing.T) {
	registry, _, current := newTestRegistry(t)
	ctx := context.Background()

	code, err := registry.Issue(ctx, "user@example.com")
	require.NoError(t, err)

	// Still inside the window.
	*current = current.Add(14*time.Minute + 59*time.Second)
	status, err := registry.Verify(ctx, "user@example.com", code)
	require.NoError(t, err)
	require.Equal(t, StatusValid, status)

	code, err = registry.Issue(ctx, "late@example.com")
	require.NoError(t, err)

	// Past the window.
	*current = current.Add(15*time.Minute + 1*time.Second)
	status, err = registry.Verify(ctx, "late@example.com", code)
	require.NoError(t, err)
	require.Equal(t, StatusExpired, status)

	// The expired record is purged; a retry reads as missing.
	status, err = registry.Verify(ctx, "late@example.com", code)
	require.NoError(t, err)
	require.Equal(t, StatusNotFound, status)
}

func TestVerifiedRecordSurvivesUntilConsumed(t *testing.T) {
	registry, store, _ := newTestRegistry(t)
	ctx := context.Background()

	code, err := registry.Issue(ctx, "user@example.com")
	require.NoError(t, err)

	status, err := registry.Verify(ctx, "user@example.com", code)
	require.NoError(t, err)
	require.Equal(t, StatusValid, status)

	// Verification does not delete the record.
	record, err := store.Get(ctx, "user@example.com")
	require.NoError(t, err)
	require.NotNil(t, record)
	require.True(t, record.Verified)

	require.NoError(t, registry.Consume(ctx, "user@example.com"))

	verified, err := registry.Verified(ctx, "user@example.com")
	require.NoError(t, err)
	require.False(t, verified)
}

func TestVerifyUnknownEmail(t *testing.T) {
	registry, _, _ := newTestRegistry(t)

	status, err := registry.Verify(context.Background(), "nobody@example.com", "123456")
	require.NoError(t, err)
	require.Equal(t, StatusNotFound, status)
}

func TestGenerateCodeShape(t *testing.T) {
	for i := 0; i < 64; i++ {
		code, err := generateCode()
		require.NoError(t, err)
		require.Len(t, code, 6)
		for _, ch := range code {
			require.True(t, ch >= '0' && ch <= '9')
		}
	}
}
