package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/loopcraft/iamd/internal/domain"
	"github.com/loopcraft/iamd/internal/identity"
	"github.com/loopcraft/iamd/internal/mfa"
	"github.com/loopcraft/iamd/internal/notify"
	"github.com/loopcraft/iamd/internal/otp"
	pw "github.com/loopcraft/iamd/internal/password"
	"github.com/loopcraft/iamd/internal/repository"
	"github.com/loopcraft/iamd/internal/token"
)

const minPasswordLength = 8

// AuthService orchestrates every authentication path: local password with an
// optional second-factor gate, social provider callbacks, enterprise SSO
// exchange, and the OTP-backed password reset flow. All paths converge on the
// same user store and session token issuance.
type AuthService struct {
	users     repository.UserRepository
	roles     repository.RoleRepository
	tokens    *token.Service
	otp       *otp.Registry
	mfa       *mfa.Service
	sso       identity.SSOVerifier
	notifier  notify.Dispatcher
	snowflake *snowflake.Node
	logger    *zap.Logger
	tracer    trace.Tracer
	now       func() time.Time
}

// NewAuthService wires dependencies.
func NewAuthService(
	users repository.UserRepository,
	roles repository.RoleRepository,
	tokens *token.Service,
	registry *otp.Registry,
	factors *mfa.Service,
	sso identity.SSOVerifier,
	notifier notify.Dispatcher,
	node *snowflake.Node,
	logger *zap.Logger,
) *AuthService {
	return &AuthService{
		users:     users,
		roles:     roles,
		tokens:    tokens,
		otp:       registry,
		mfa:       factors,
		sso:       sso,
		notifier:  notifier,
		snowflake: node,
		logger:    logger,
		tracer:    otel.Tracer("github.com/loopcraft/iamd/internal/service"),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Register creates a local-credential user and signs them in. New users start
// active and hold every default-flagged role.
func (s *AuthService) Register(ctx context.Context, name, email, password string) (*Session, error) {
	ctx, span := s.startSpan(ctx, "AuthService.Register")
	defer span.End()

	normalized := normalizeEmail(email)
	if err := validateEmail(normalized); err != nil {
		return nil, err
	}
	if len(password) < minPasswordLength {
		return nil, fmt.Errorf("%w: password must be at least %d characters", domain.ErrInvalidInput, minPasswordLength)
	}

	if _, err := s.users.GetByEmail(ctx, normalized); err == nil {
		return nil, fmt.Errorf("%w: email already registered", domain.ErrConflict)
	} else if !errors.Is(err, domain.ErrNotFound) {
		span.RecordError(err)
		return nil, err
	}

	hash, err := pw.Hash(password)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("hash password: %w", err)
	}

	roleIDs, err := s.defaultRoleIDs(ctx)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	user, err := s.users.Create(ctx, domain.User{
		ID:           s.snowflake.Generate().Int64(),
		Email:        normalized,
		Name:         strings.TrimSpace(name),
		PasswordHash: hash,
		RoleIDs:      roleIDs,
		Active:       true,
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	s.audit("user.registered", "user_id", user.ID)
	s.notifyBestEffort(ctx, user.ID, "Welcome", "Your account has been created.", "account")
	return s.finishSession(ctx, user)
}

// Login authenticates with email and password. Accounts with an active second
// factor stop at ErrSecondFactorRequired; VerifySecondFactor completes those.
func (s *AuthService) Login(ctx context.Context, email, password string) (*Session, error) {
	ctx, span := s.startSpan(ctx, "AuthService.Login")
	defer span.End()

	user, err := s.checkPassword(ctx, email, password)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if user.MFAEnabled {
		return nil, domain.ErrSecondFactorRequired
	}

	session, err := s.finishSession(ctx, user)
	if err == nil {
		s.audit("login.password.success", "user_id", user.ID)
	}
	return session, err
}

// VerifySecondFactor completes an MFA-gated login. The password is checked
// again so a stolen in-flight request cannot skip the first factor. The
// remember flag is accepted for API compatibility; sessions always get the
// standard TTL.
func (s *AuthService) VerifySecondFactor(ctx context.Context, email, password, code string, remember bool) (*Session, error) {
	ctx, span := s.startSpan(ctx, "AuthService.VerifySecondFactor")
	defer span.End()
	_ = remember

	user, err := s.checkPassword(ctx, email, password)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if !user.MFAEnabled {
		return nil, domain.ErrSecondFactorInvalid
	}
	if !s.mfa.VerifyLogin(user, strings.TrimSpace(code)) {
		s.audit("login.mfa.rejected", "user_id", user.ID)
		return nil, domain.ErrSecondFactorInvalid
	}

	session, err := s.finishSession(ctx, user)
	if err == nil {
		s.audit("login.mfa.success", "user_id", user.ID)
	}
	return session, err
}

// SocialCallback signs in a user asserted by a social provider, provisioning
// or linking the local record as needed. Social logins bypass the MFA gate:
// the provider already holds the stronger factor.
func (s *AuthService) SocialCallback(ctx context.Context, profile identity.Profile) (*Session, error) {
	ctx, span := s.startSpan(ctx, "AuthService.SocialCallback")
	defer span.End()

	session, err := s.resolveExternal(ctx, profile)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	s.audit("login.social.success", "user_id", session.User.ID, "provider", profile.Provider)
	return session, nil
}

// SSOExchange validates an opaque enterprise assertion through the configured
// verifier and signs in the asserted user.
func (s *AuthService) SSOExchange(ctx context.Context, assertion string) (*Session, error) {
	ctx, span := s.startSpan(ctx, "AuthService.SSOExchange")
	defer span.End()

	if s.sso == nil {
		return nil, fmt.Errorf("%w: sso verifier not configured", domain.ErrExternal)
	}
	profile, err := s.sso.Exchange(ctx, assertion)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	session, err := s.resolveExternal(ctx, *profile)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	s.audit("login.sso.success", "user_id", session.User.ID, "provider", profile.Provider)
	return session, nil
}

// RequestPasswordReset issues a fresh reset passcode and dispatches it. The
// call reports success for unknown addresses so it cannot be used to probe
// which emails hold accounts.
func (s *AuthService) RequestPasswordReset(ctx context.Context, email string) error {
	ctx, span := s.startSpan(ctx, "AuthService.RequestPasswordReset")
	defer span.End()

	normalized := normalizeEmail(email)
	if err := validateEmail(normalized); err != nil {
		return err
	}

	user, err := s.users.GetByEmail(ctx, normalized)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			s.audit("password.reset.unknown_email")
			return nil
		}
		span.RecordError(err)
		return err
	}
	if !user.Active {
		s.audit("password.reset.inactive", "user_id", user.ID)
		return nil
	}

	code, err := s.otp.Issue(ctx, normalized)
	if err != nil {
		span.RecordError(err)
		return err
	}

	ttl := int(s.otp.TTL().Minutes())
	s.notifyBestEffort(ctx, user.ID, "Password reset code",
		fmt.Sprintf("Your password reset code is %s. It expires in %d minutes.", code, ttl), "security")
	s.audit("password.reset.requested", "user_id", user.ID)
	return nil
}

// VerifyResetOTP checks the submitted passcode without consuming it, so the
// client can collect the new password before calling ResetPassword.
func (s *AuthService) VerifyResetOTP(ctx context.Context, email, code string) error {
	ctx, span := s.startSpan(ctx, "AuthService.VerifyResetOTP")
	defer span.End()

	status, err := s.otp.Verify(ctx, normalizeEmail(email), strings.TrimSpace(code))
	if err != nil {
		span.RecordError(err)
		return err
	}
	switch status {
	case otp.StatusValid:
		s.audit("password.reset.otp_verified")
		return nil
	case otp.StatusExpired:
		return domain.ErrOTPExpired
	case otp.StatusMismatch:
		return domain.ErrOTPMismatch
	default:
		return fmt.Errorf("reset code: %w", domain.ErrNotFound)
	}
}

// ResetPassword changes the password for an address whose passcode was
// verified earlier in the flow, then consumes the passcode. Notification
// happens after the credential change is committed and cannot unwind it.
func (s *AuthService) ResetPassword(ctx context.Context, email, newPassword string) error {
	ctx, span := s.startSpan(ctx, "AuthService.ResetPassword")
	defer span.End()

	normalized := normalizeEmail(email)
	if len(newPassword) < minPasswordLength {
		return fmt.Errorf("%w: password must be at least %d characters", domain.ErrInvalidInput, minPasswordLength)
	}

	verified, err := s.otp.Verified(ctx, normalized)
	if err != nil {
		span.RecordError(err)
		return err
	}
	if !verified {
		return fmt.Errorf("%w: reset code not verified", domain.ErrForbidden)
	}

	user, err := s.users.GetByEmail(ctx, normalized)
	if err != nil {
		span.RecordError(err)
		return err
	}

	hash, err := pw.Hash(newPassword)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("hash password: %w", err)
	}
	user.PasswordHash = hash
	if _, err := s.users.Update(ctx, user); err != nil {
		span.RecordError(err)
		return err
	}

	if err := s.otp.Consume(ctx, normalized); err != nil {
		s.log().Warn("consume reset code failed", zap.Error(err))
	}

	s.audit("password.reset.completed", "user_id", user.ID)
	s.notifyBestEffort(ctx, user.ID, "Password changed", "Your password was just changed.", "security")
	return nil
}

// Me returns the sanitized profile of the authenticated user.
func (s *AuthService) Me(ctx context.Context, userID int64) (*UserView, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	view := viewOf(user)
	return &view, nil
}

// checkPassword resolves the user and verifies the local credential. Unknown
// email, missing password credential, and wrong password all collapse into
// ErrInvalidCredentials; deactivation surfaces only after the credential held.
func (s *AuthService) checkPassword(ctx context.Context, email, password string) (domain.User, error) {
	normalized := normalizeEmail(email)
	user, err := s.users.GetByEmail(ctx, normalized)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.User{}, domain.ErrInvalidCredentials
		}
		return domain.User{}, err
	}
	if user.PasswordHash == "" {
		return domain.User{}, domain.ErrInvalidCredentials
	}
	valid, err := pw.Verify(password, user.PasswordHash)
	if err != nil || !valid {
		return domain.User{}, domain.ErrInvalidCredentials
	}
	if !user.Active {
		return domain.User{}, domain.ErrAccountInactive
	}
	return user, nil
}

// resolveExternal maps a verified external profile onto a local user: match
// by provider link first, then by email (linking the provider to an unlinked
// account), otherwise provision a fresh account with default roles.
func (s *AuthService) resolveExternal(ctx context.Context, profile identity.Profile) (*Session, error) {
	if err := profile.Validate(); err != nil {
		return nil, err
	}
	normalized := normalizeEmail(profile.Email)

	user, err := s.users.GetByProviderID(ctx, profile.Provider, profile.ExternalID)
	switch {
	case err == nil:
		// Linked account found.
	case errors.Is(err, domain.ErrNotFound):
		user, err = s.linkOrProvision(ctx, profile, normalized)
		if err != nil {
			return nil, err
		}
	default:
		return nil, err
	}

	if !user.Active {
		return nil, domain.ErrAccountInactive
	}
	return s.finishSession(ctx, user)
}

func (s *AuthService) linkOrProvision(ctx context.Context, profile identity.Profile, email string) (domain.User, error) {
	user, err := s.users.GetByEmail(ctx, email)
	if err == nil {
		if user.Provider != "" {
			return domain.User{}, fmt.Errorf("%w: account already linked to another provider", domain.ErrConflict)
		}
		user.Provider = profile.Provider
		user.ProviderUserID = profile.ExternalID
		if user.Name == "" {
			user.Name = profile.Name
		}
		if user.AvatarURL == "" {
			user.AvatarURL = profile.AvatarURL
		}
		linked, err := s.users.Update(ctx, user)
		if err != nil {
			return domain.User{}, err
		}
		s.audit("identity.linked", "user_id", linked.ID, "provider", profile.Provider)
		return linked, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return domain.User{}, err
	}

	roleIDs, err := s.defaultRoleIDs(ctx)
	if err != nil {
		return domain.User{}, err
	}
	created, err := s.users.Create(ctx, domain.User{
		ID:             s.snowflake.Generate().Int64(),
		Email:          email,
		Name:           profile.Name,
		AvatarURL:      profile.AvatarURL,
		RoleIDs:        roleIDs,
		Active:         true,
		Provider:       profile.Provider,
		ProviderUserID: profile.ExternalID,
	})
	if err != nil {
		return domain.User{}, err
	}
	s.audit("user.provisioned", "user_id", created.ID, "provider", profile.Provider)
	s.notifyBestEffort(ctx, created.ID, "Welcome", "Your account has been created.", "account")
	return created, nil
}

// finishSession stamps the sign-in time and issues the session token carrying
// the user's current role snapshot.
func (s *AuthService) finishSession(ctx context.Context, user domain.User) (*Session, error) {
	now := s.now()
	user.LastAuthenticatedAt = &now
	updated, err := s.users.Update(ctx, user)
	if err != nil {
		return nil, err
	}

	signed, _, err := s.tokens.Issue(ctx, updated)
	if err != nil {
		return nil, err
	}

	return &Session{
		Token:     signed,
		TokenType: "Bearer",
		ExpiresIn: int64(s.tokens.TTL().Seconds()),
		User:      viewOf(updated),
	}, nil
}

func (s *AuthService) defaultRoleIDs(ctx context.Context) ([]int64, error) {
	defaults, err := s.roles.ListDefault(ctx)
	if err != nil {
		return nil, err
	}
	ids := make([]int64, 0, len(defaults))
	for _, role := range defaults {
		ids = append(ids, role.ID)
	}
	return ids, nil
}

func (s *AuthService) notifyBestEffort(ctx context.Context, userID int64, title, message, category string) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Send(ctx, userID, title, message, category); err != nil {
		s.log().Warn("notification dispatch failed",
			zap.Int64("user_id", userID),
			zap.String("category", category),
			zap.Error(err),
		)
	}
}

func (s *AuthService) startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	if s == nil || s.tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return s.tracer.Start(ctx, name)
}

func (s *AuthService) audit(event string, attrs ...any) {
	logger := s.log()
	if logger == nil {
		return
	}
	fields := make([]zap.Field, 0, len(attrs)/2+2)
	fields = append(fields, zap.String("event", event), zap.Time("timestamp", time.Now().UTC()))
	for i := 0; i+1 < len(attrs); i += 2 {
		key, ok := attrs[i].(string)
		if !ok {
			continue
		}
		fields = append(fields, zap.Any(key, attrs[i+1]))
	}
	logger.Info("audit", fields...)
}

func (s *AuthService) log() *zap.Logger {
	if s != nil && s.logger != nil {
		return s.logger
	}
	return zap.L()
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func validateEmail(email string) error {
	if email == "" || !strings.Contains(email, "@") {
		return fmt.Errorf("%w: valid email required", domain.ErrInvalidInput)
	}
	return nil
}
