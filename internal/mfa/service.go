package mfa

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/loopcraft/iamd/internal/domain"
	"github.com/loopcraft/iamd/internal/repository"
)

// Setup is handed back when activation begins; the URI goes into a QR code,
// the encoded secret supports manual entry.
type Setup struct {
	Secret          string
	ProvisioningURI string
}

// Service runs the two-phase activation flow against the user store. MFA is
// only enforced once the user has confirmed a code derived from the pending
// secret; until then sign-in behavior is unchanged.
type Service struct {
	users   repository.UserRepository
	manager *Manager
	logger  *zap.Logger
	now     func() time.Time
}

// NewService constructs the MFA service.
func NewService(users repository.UserRepository, manager *Manager, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.L()
	}
	return &Service{users: users, manager: manager, logger: logger, now: time.Now}
}

// BeginSetup generates a fresh pending secret for the user, replacing any
// earlier unconfirmed secret. An already-active factor is left untouched.
func (s *Service) BeginSetup(ctx context.Context, userID int64) (*Setup, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("begin mfa setup: %w", err)
	}

	secret, err := s.manager.GenerateSecret()
	if err != nil {
		return nil, fmt.Errorf("begin mfa setup: %w", err)
	}

	user.MFAPendingSecret = secret
	if _, err := s.users.Update(ctx, user); err != nil {
		return nil, fmt.Errorf("store pending secret: %w", err)
	}

	s.logger.Info("mfa setup started", zap.Int64("user_id", userID))
	return &Setup{
		Secret:          s.manager.EncodeSecret(secret),
		ProvisioningURI: s.manager.ProvisioningURI(secret, user.Email),
	}, nil
}

// ConfirmSetup validates the code against the pending secret and, on success,
// promotes it to the confirmed secret and enables enforcement.
func (s *Service) ConfirmSetup(ctx context.Context, userID int64, code string) error {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("confirm mfa setup: %w", err)
	}
	if len(user.MFAPendingSecret) == 0 {
		return domain.ErrNoPendingSetup
	}
	if !s.manager.VerifyCode(user.MFAPendingSecret, code, s.now()) {
		return domain.ErrSecondFactorInvalid
	}

	user.MFASecret = user.MFAPendingSecret
	user.MFAPendingSecret = nil
	user.MFAEnabled = true
	if _, err := s.users.Update(ctx, user); err != nil {
		return fmt.Errorf("activate mfa: %w", err)
	}

	s.logger.Info("mfa enabled", zap.Int64("user_id", userID))
	return nil
}

// Disable clears confirmed and pending secrets unconditionally.
func (s *Service) Disable(ctx context.Context, userID int64) error {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("disable mfa: %w", err)
	}

	user.MFASecret = nil
	user.MFAPendingSecret = nil
	user.MFAEnabled = false
	if _, err := s.users.Update(ctx, user); err != nil {
		return fmt.Errorf("disable mfa: %w", err)
	}

	s.logger.Info("mfa disabled", zap.Int64("user_id", userID))
	return nil
}

// VerifyLogin checks a sign-in code against the confirmed secret only. A code
// derived from a still-pending secret never satisfies the sign-in gate.
func (s *Service) VerifyLogin(user domain.User, code string) bool {
	if !user.MFAEnabled || len(user.MFASecret) == 0 {
		return false
	}
	return s.manager.VerifyCode(user.MFASecret, code, s.now())
}
