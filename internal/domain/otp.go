package domain

import "time"

// OTPRecord is the live password-reset passcode for an email address. At most
// one record exists per email; issuing a new code overwrites the old one.
type OTPRecord struct {
	Email     string    `json:"email"`
	Code      string    `json:"code"`
	ExpiresAt time.Time `json:"expires_at"`
	Verified  bool      `json:"verified"`
}
