package repository

import (
	"context"
	"time"

	"github.com/loopcraft/iamd/internal/domain"
)

// UserRepository exposes persistence for identity records. Missing rows are
// reported as domain.ErrNotFound.
type UserRepository interface {
	GetByID(ctx context.Context, userID int64) (domain.User, error)
	GetByEmail(ctx context.Context, email string) (domain.User, error)
	GetByProviderID(ctx context.Context, provider, externalID string) (domain.User, error)
	Create(ctx context.Context, user domain.User) (domain.User, error)
	Update(ctx context.Context, user domain.User) (domain.User, error)
}

// RoleRepository exposes role persistence and the reference count used to
// block deletion of roles still held by users.
type RoleRepository interface {
	GetByID(ctx context.Context, roleID int64) (domain.Role, error)
	GetByName(ctx context.Context, name string) (domain.Role, error)
	List(ctx context.Context) ([]domain.Role, error)
	ListByIDs(ctx context.Context, roleIDs []int64) ([]domain.Role, error)
	ListDefault(ctx context.Context) ([]domain.Role, error)
	Create(ctx context.Context, role domain.Role) (domain.Role, error)
	Update(ctx context.Context, role domain.Role) (domain.Role, error)
	Delete(ctx context.Context, roleID int64) error
	CountUsers(ctx context.Context, roleID int64) (int64, error)
}

// PermissionRepository exposes permission persistence.
type PermissionRepository interface {
	List(ctx context.Context) ([]domain.Permission, error)
	GetByName(ctx context.Context, name string) (domain.Permission, error)
	Create(ctx context.Context, perm domain.Permission) (domain.Permission, error)
}

// KeyRepository stores session token signing keys.
type KeyRepository interface {
	GetActiveKey(ctx context.Context) (domain.SigningKey, error)
	CreateKey(ctx context.Context, key domain.SigningKey) (domain.SigningKey, error)
}

// OTPStore holds the live passcode record per email. Get returns (nil, nil)
// when no record exists so evicted and never-issued records look alike.
type OTPStore interface {
	Save(ctx context.Context, email string, record domain.OTPRecord, ttl time.Duration) error
	Get(ctx context.Context, email string) (*domain.OTPRecord, error)
	Delete(ctx context.Context, email string) error
}
