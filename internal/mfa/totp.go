// Package mfa implements time-based one-time password second factors with a
// two-phase activation flow: a generated secret stays pending until the user
// proves possession by submitting a valid code.
package mfa

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha1"
	"crypto/subtle"
	"encoding/base32"
	"encoding/binary"
	"fmt"
	"net/url"
	"time"
)

const (
	secretLen = 20
	period    = 30
	digits    = 6
	skew      = 1
)

var b32 = base32.StdEncoding.WithPadding(base32.NoPadding)

// Manager derives and checks TOTP codes (RFC 6238: SHA1, 30s period, 6 digits)
// and renders provisioning URIs for authenticator apps.
type Manager struct {
	issuer string
}

// NewManager constructs a Manager labelling provisioning URIs with issuer.
func NewManager(issuer string) *Manager {
	return &Manager{issuer: issuer}
}

// GenerateSecret returns a fresh 160-bit shared secret.
func (m *Manager) GenerateSecret() ([]byte, error) {
	secret := make([]byte, secretLen)
	if _, err := rand.Read(secret); err != nil {
		return nil, fmt.Errorf("generate totp secret: %w", err)
	}
	return secret, nil
}

// EncodeSecret renders the secret in the base32 form authenticator apps expect.
func (m *Manager) EncodeSecret(secret []byte) string {
	return b32.EncodeToString(secret)
}

// ProvisioningURI renders the otpauth:// URI encoding the secret and account
// label, suitable for QR display during setup.
func (m *Manager) ProvisioningURI(secret []byte, account string) string {
	label := url.PathEscape(m.issuer + ":" + account)
	params := url.Values{}
	params.Set("secret", m.EncodeSecret(secret))
	params.Set("issuer", m.issuer)
	params.Set("algorithm", "SHA1")
	params.Set("digits", fmt.Sprintf("%d", digits))
	params.Set("period", fmt.Sprintf("%d", period))
	return "otpauth://totp/" + label + "?" + params.Encode()
}

// Code computes the TOTP code for the given instant.
func (m *Manager) Code(secret []byte, at time.Time) string {
	return hotpCode(secret, uint64(at.Unix())/period)
}

// VerifyCode checks the code against the current step and one step either
// side, tolerating clock drift between the server and the authenticator.
func (m *Manager) VerifyCode(secret []byte, code string, at time.Time) bool {
	if len(secret) == 0 || len(code) != digits {
		return false
	}
	counter := uint64(at.Unix()) / period
	for delta := -int64(skew); delta <= int64(skew); delta++ {
		candidate := int64(counter) + delta
		if candidate < 0 {
			continue
		}
		expected := hotpCode(secret, uint64(candidate))
		if subtle.ConstantTimeCompare([]byte(expected), []byte(code)) == 1 {
			return true
		}
	}
	return false
}

// hotpCode is the RFC 4226 dynamic truncation of HMAC-SHA1 over the counter.
func hotpCode(secret []byte, counter uint64) string {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], counter)

	mac := hmac.New(sha1.New, secret)
	mac.Write(buf[:])
	sum := mac.Sum(nil)

	offset := sum[len(sum)-1] & 0x0f
	value := (uint32(sum[offset])&0x7f)<<24 |
		uint32(sum[offset+1])<<16 |
		uint32(sum[offset+2])<<8 |
		uint32(sum[offset+3])

	mod := uint32(1)
	for i := 0; i < digits; i++ {
		mod *= 10
	}
	return fmt.Sprintf("%0*d", digits, value%mod)
}
