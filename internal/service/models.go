package service

import (
	"time"

	"github.com/loopcraft/iamd/internal/domain"
)

// Session bundles a signed session token with the sanitized user profile.
type Session struct {
	Token     string   `json:"token"`
	TokenType string   `json:"token_type"`
	ExpiresIn int64    `json:"expires_in"`
	User      UserView `json:"user"`
}

// UserView is the user profile returned to clients. Password hashes and MFA
// secrets never leave the service layer.
type UserView struct {
	ID                  int64      `json:"id"`
	Email               string     `json:"email"`
	Name                string     `json:"name,omitempty"`
	AvatarURL           string     `json:"avatar_url,omitempty"`
	RoleIDs             []int64    `json:"role_ids"`
	Active              bool       `json:"active"`
	Provider            string     `json:"provider,omitempty"`
	MFAEnabled          bool       `json:"mfa_enabled"`
	LastAuthenticatedAt *time.Time `json:"last_authenticated_at,omitempty"`
}

func viewOf(user domain.User) UserView {
	return UserView{
		ID:                  user.ID,
		Email:               user.Email,
		Name:                user.Name,
		AvatarURL:           user.AvatarURL,
		RoleIDs:             append([]int64(nil), user.RoleIDs...),
		Active:              user.Active,
		Provider:            user.Provider,
		MFAEnabled:          user.MFAEnabled,
		LastAuthenticatedAt: user.LastAuthenticatedAt,
	}
}
