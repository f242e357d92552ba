package domain

import "time"

// User is the canonical identity record every authentication path converges on.
// A user always carries at least one credential: a password hash, a linked
// external provider, or an SSO-provisioned identity.
type User struct {
	ID           int64
	Email        string
	Name         string
	AvatarURL    string
	PasswordHash string
	RoleIDs      []int64
	Active       bool

	// External identity link; at most one provider per user.
	Provider       string
	ProviderUserID string

	// Two-phase MFA state: pending is set when setup starts, promoted to the
	// confirmed secret on first successful code verification.
	MFAPendingSecret []byte
	MFASecret        []byte
	MFAEnabled       bool

	LastAuthenticatedAt *time.Time
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// HasRole reports whether the role is in the user's assigned set.
func (u User) HasRole(roleID int64) bool {
	for _, id := range u.RoleIDs {
		if id == roleID {
			return true
		}
	}
	return false
}

// HasCredential reports whether the user has any means of authenticating.
func (u User) HasCredential() bool {
	return u.PasswordHash != "" || u.Provider != ""
}
