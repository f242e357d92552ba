package domain

import "time"

// SigningKey stores the session token signing secret. A single key is active
// at a time; rotation is out of scope.
type SigningKey struct {
	ID        int64
	KID       string
	Secret    []byte
	Algorithm string
	IsActive  bool
	CreatedAt time.Time
}
