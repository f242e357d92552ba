package identity

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/loopcraft/iamd/internal/domain"
)

// HTTPVerifier resolves SSO assertions against the identity provider's
// userinfo endpoint: the assertion rides as a bearer token and the response
// body carries the asserted subject.
type HTTPVerifier struct {
	httpClient  *http.Client
	userinfoURL string
	provider    string
}

var _ SSOVerifier = (*HTTPVerifier)(nil)

// NewHTTPVerifier constructs the default verifier. A nil client gets a
// 10-second timeout.
func NewHTTPVerifier(client *http.Client, userinfoURL string) *HTTPVerifier {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &HTTPVerifier{httpClient: client, userinfoURL: userinfoURL, provider: "sso"}
}

// Exchange validates the assertion with the provider and maps the response
// onto a Profile.
func (v *HTTPVerifier) Exchange(ctx context.Context, assertion string) (*Profile, error) {
	if strings.TrimSpace(assertion) == "" {
		return nil, fmt.Errorf("sso exchange: %w", domain.ErrInvalidCredentials)
	}
	if strings.TrimSpace(v.userinfoURL) == "" {
		return nil, fmt.Errorf("sso exchange: %w: userinfo url not configured", domain.ErrExternal)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.userinfoURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build userinfo request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+assertion)
	req.Header.Set("Accept", "application/json")

	resp, err := v.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sso exchange: %w: %v", domain.ErrExternal, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read userinfo: %w: %v", domain.ErrExternal, err)
	}
	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, fmt.Errorf("sso exchange rejected: %w", domain.ErrInvalidCredentials)
	case resp.StatusCode >= 300:
		return nil, fmt.Errorf("sso exchange: %w: status=%d", domain.ErrExternal, resp.StatusCode)
	}

	var raw struct {
		Subject   string `json:"sub"`
		Email     string `json:"email"`
		Name      string `json:"name"`
		Picture   string `json:"picture"`
		AvatarURL string `json:"avatar_url"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("decode userinfo: %w: %v", domain.ErrExternal, err)
	}

	avatar := raw.Picture
	if avatar == "" {
		avatar = raw.AvatarURL
	}
	profile := &Profile{
		Provider:   v.provider,
		ExternalID: raw.Subject,
		Email:      raw.Email,
		Name:       raw.Name,
		AvatarURL:  avatar,
	}
	if err := profile.Validate(); err != nil {
		return nil, fmt.Errorf("sso exchange: %w", domain.ErrInvalidCredentials)
	}
	return profile, nil
}
