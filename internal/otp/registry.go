// Package otp implements the short-lived passcode registry backing password
// reset. Issuance supersedes any live code for the address; verification marks
// the record verified but leaves it live until expiry so the reset step can
// re-check it; consumption deletes it once the password actually changes.
package otp

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"fmt"
	"math/big"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/loopcraft/iamd/internal/domain"
	"github.com/loopcraft/iamd/internal/repository"
)

// Status is the outcome of a verification attempt.
type Status int

const (
	StatusValid Status = iota
	StatusExpired
	StatusMismatch
	StatusNotFound
)

const codeDigits = 6

var codeSpace = big.NewInt(1_000_000)

// Registry issues and checks one-time passcodes keyed by email.
type Registry struct {
	store  repository.OTPStore
	ttl    time.Duration
	now    func() time.Time
	logger *zap.Logger
}

// NewRegistry constructs a Registry with the given record TTL.
func NewRegistry(store repository.OTPStore, ttl time.Duration, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.L()
	}
	return &Registry{store: store, ttl: ttl, now: func() time.Time { return time.Now().UTC() }, logger: logger}
}

// TTL reports the validity window codes are issued with.
func (r *Registry) TTL() time.Duration {
	return r.ttl
}

// Issue generates a fresh uniform 6-digit code for the email, replacing any
// live record. The previous code stops verifying the moment this returns.
func (r *Registry) Issue(ctx context.Context, email string) (string, error) {
	email = normalize(email)
	if email == "" {
		return "", fmt.Errorf("issue otp: %w: email required", domain.ErrInvalidInput)
	}

	code, err := generateCode()
	if err != nil {
		return "", fmt.Errorf("issue otp: %w", err)
	}

	record := domain.OTPRecord{
		Email:     email,
		Code:      code,
		ExpiresAt: r.now().Add(r.ttl),
	}
	if err := r.store.Save(ctx, email, record, r.ttl); err != nil {
		return "", fmt.Errorf("issue otp: %w", err)
	}
	return code, nil
}

// Verify checks the submitted code against the live record. A matching,
// unexpired code marks the record verified; the record stays live until its
// original expiry so the reset step can confirm verification happened.
func (r *Registry) Verify(ctx context.Context, email, code string) (Status, error) {
	email = normalize(email)
	record, err := r.store.Get(ctx, email)
	if err != nil {
		return StatusNotFound, fmt.Errorf("verify otp: %w", err)
	}
	if record == nil {
		return StatusNotFound, nil
	}
	if r.now().After(record.ExpiresAt) {
		if err := r.store.Delete(ctx, email); err != nil {
			r.logger.Warn("purge expired otp failed", zap.Error(err))
		}
		return StatusExpired, nil
	}
	if subtle.ConstantTimeCompare([]byte(record.Code), []byte(code)) != 1 {
		return StatusMismatch, nil
	}

	record.Verified = true
	remaining := record.ExpiresAt.Sub(r.now())
	if err := r.store.Save(ctx, email, *record, remaining); err != nil {
		return StatusNotFound, fmt.Errorf("mark otp verified: %w", err)
	}
	return StatusValid, nil
}

// Verified reports whether a live, previously verified record exists.
func (r *Registry) Verified(ctx context.Context, email string) (bool, error) {
	record, err := r.store.Get(ctx, normalize(email))
	if err != nil {
		return false, fmt.Errorf("check otp verified: %w", err)
	}
	if record == nil || r.now().After(record.ExpiresAt) {
		return false, nil
	}
	return record.Verified, nil
}

// Consume deletes the record. Called once the reset completes so the same
// code cannot authorize a second password change.
func (r *Registry) Consume(ctx context.Context, email string) error {
	if err := r.store.Delete(ctx, normalize(email)); err != nil {
		return fmt.Errorf("consume otp: %w", err)
	}
	return nil
}

// generateCode draws uniformly from [0, 1e6) so every 6-digit code is equally
// likely, including those with leading zeros.
func generateCode() (string, error) {
	n, err := rand.Int(rand.Reader, codeSpace)
	if err != nil {
		return "", fmt.Errorf("generate code: %w", err)
	}
	return fmt.Sprintf("%0*d", codeDigits, n.Int64()), nil
}

func normalize(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
