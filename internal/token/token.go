package token

import (
	"context"
	"fmt"
	"strconv"
	"time"

	gojose "github.com/go-jose/go-jose/v4"
	gojwt "github.com/go-jose/go-jose/v4/jwt"

	"github.com/loopcraft/iamd/internal/domain"
)

// Service signs and validates stateless session tokens. A token captures the
// user identity and the role set held at sign-in; it is never revisited, so a
// role change becomes visible only on the next sign-in.
type Service struct {
	keys   *KeyManager
	issuer string
	ttl    time.Duration
}

// NewService constructs a token service with the default session TTL.
func NewService(keys *KeyManager, issuer string, ttl time.Duration) *Service {
	return &Service{keys: keys, issuer: issuer, ttl: ttl}
}

// Claims is the decoded payload of a validated session token.
type Claims struct {
	UserID    int64
	Email     string
	RoleIDs   []int64
	IssuedAt  time.Time
	ExpiresAt time.Time
}

type sessionClaims struct {
	Email   string  `json:"email"`
	RoleIDs []int64 `json:"roles"`
}

// TTL reports the session lifetime tokens are issued with.
func (s *Service) TTL() time.Duration {
	return s.ttl
}

// Issue produces a signed session token for the user carrying a snapshot of
// their current role set.
func (s *Service) Issue(ctx context.Context, user domain.User) (string, time.Time, error) {
	key, err := s.keys.EnsureSigningKey(ctx)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("issue token: %w", err)
	}

	signer, err := gojose.NewSigner(
		gojose.SigningKey{Algorithm: gojose.SignatureAlgorithm(key.Algorithm), Key: key.Secret},
		(&gojose.SignerOptions{}).WithType("JWT").WithHeader("kid", key.KID),
	)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("new signer: %w", err)
	}

	now := time.Now().UTC()
	expiry := now.Add(s.ttl)
	std := gojwt.Claims{
		Subject:   strconv.FormatInt(user.ID, 10),
		Issuer:    s.issuer,
		IssuedAt:  gojwt.NewNumericDate(now),
		Expiry:    gojwt.NewNumericDate(expiry),
		NotBefore: gojwt.NewNumericDate(now),
	}
	custom := sessionClaims{
		Email:   user.Email,
		RoleIDs: append([]int64(nil), user.RoleIDs...),
	}

	signed, err := gojwt.Signed(signer).Claims(std).Claims(custom).Serialize()
	if err != nil {
		return "", time.Time{}, fmt.Errorf("serialize token: %w", err)
	}

	return signed, expiry, nil
}

// Validate verifies signature, expiry, and issuer, and returns the claims.
// Every validation failure collapses into domain.ErrTokenInvalid so callers
// cannot distinguish a tampered token from an expired one.
func (s *Service) Validate(ctx context.Context, raw string) (*Claims, error) {
	key, err := s.keys.ActiveKey(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: load signing key: %v", domain.ErrExternal, err)
	}

	allowed := []gojose.SignatureAlgorithm{gojose.SignatureAlgorithm(key.Algorithm)}
	parsed, err := gojwt.ParseSigned(raw, allowed)
	if err != nil {
		return nil, domain.ErrTokenInvalid
	}

	var std gojwt.Claims
	var custom sessionClaims
	if err := parsed.Claims(key.Secret, &std, &custom); err != nil {
		return nil, domain.ErrTokenInvalid
	}
	if err := std.Validate(gojwt.Expected{Issuer: s.issuer, Time: time.Now().UTC()}); err != nil {
		return nil, domain.ErrTokenInvalid
	}

	userID, err := strconv.ParseInt(std.Subject, 10, 64)
	if err != nil {
		return nil, domain.ErrTokenInvalid
	}

	return &Claims{
		UserID:    userID,
		Email:     custom.Email,
		RoleIDs:   custom.RoleIDs,
		IssuedAt:  std.IssuedAt.Time(),
		ExpiresAt: std.Expiry.Time(),
	}, nil
}
