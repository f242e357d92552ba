// Package identity holds the contracts for externally asserted identities:
// profiles handed over by social providers and opaque SSO assertions that a
// verifier turns into profiles.
package identity

import (
	"context"
	"fmt"
	"strings"

	"github.com/loopcraft/iamd/internal/domain"
)

// Profile is a verified external identity. Provider plus ExternalID uniquely
// identify the subject at the issuing party; Email links it to a local user.
type Profile struct {
	Provider   string `json:"provider"`
	ExternalID string `json:"external_id"`
	Email      string `json:"email"`
	Name       string `json:"name"`
	AvatarURL  string `json:"avatar_url"`
}

// Validate checks the fields the resolution flow depends on.
func (p Profile) Validate() error {
	if strings.TrimSpace(p.Provider) == "" {
		return fmt.Errorf("%w: provider required", domain.ErrInvalidInput)
	}
	if strings.TrimSpace(p.ExternalID) == "" {
		return fmt.Errorf("%w: external id required", domain.ErrInvalidInput)
	}
	if strings.TrimSpace(p.Email) == "" {
		return fmt.Errorf("%w: email required", domain.ErrInvalidInput)
	}
	return nil
}

// SSOVerifier validates an opaque enterprise SSO assertion and returns the
// asserted profile. Implementations report unverifiable assertions as
// domain.ErrInvalidCredentials and provider outages as domain.ErrExternal.
type SSOVerifier interface {
	Exchange(ctx context.Context, assertion string) (*Profile, error)
}
