package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/loopcraft/iamd/internal/domain"
	"github.com/loopcraft/iamd/internal/identity"
	"github.com/loopcraft/iamd/internal/repository"
)

// In-memory fakes implementing the repository contracts for service tests.

type memoryUserRepo struct {
	mu    sync.Mutex
	users map[int64]domain.User
}

var _ repository.UserRepository = (*memoryUserRepo)(nil)

func newMemoryUserRepo(users ...domain.User) *memoryUserRepo {
	repo := &memoryUserRepo{users: map[int64]domain.User{}}
	for _, u := range users {
		repo.users[u.ID] = u
	}
	return repo
}

func (r *memoryUserRepo) GetByID(_ context.Context, userID int64) (domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[userID]
	if !ok {
		return domain.User{}, fmt.Errorf("get user: %w", domain.ErrNotFound)
	}
	return user, nil
}

func (r *memoryUserRepo) GetByEmail(_ context.Context, email string) (domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Email == email {
			return u, nil
		}
	}
	return domain.User{}, fmt.Errorf("get user: %w", domain.ErrNotFound)
}

func (r *memoryUserRepo) GetByProviderID(_ context.Context, provider, externalID string) (domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Provider == provider && u.ProviderUserID == externalID {
			return u, nil
		}
	}
	return domain.User{}, fmt.Errorf("get user: %w", domain.ErrNotFound)
}

func (r *memoryUserRepo) Create(_ context.Context, user domain.User) (domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Email == user.Email {
			return domain.User{}, fmt.Errorf("create user: %w", domain.ErrConflict)
		}
	}
	r.users[user.ID] = user
	return user, nil
}

func (r *memoryUserRepo) Update(_ context.Context, user domain.User) (domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[user.ID]; !ok {
		return domain.User{}, fmt.Errorf("update user: %w", domain.ErrNotFound)
	}
	r.users[user.ID] = user
	return user, nil
}

type memoryRoleRepo struct {
	mu    sync.Mutex
	users *memoryUserRepo
	roles map[int64]domain.Role
}

var _ repository.RoleRepository = (*memoryRoleRepo)(nil)

func newMemoryRoleRepo(users *memoryUserRepo, roles ...domain.Role) *memoryRoleRepo {
	repo := &memoryRoleRepo{users: users, roles: map[int64]domain.Role{}}
	for _, role := range roles {
		repo.roles[role.ID] = role
	}
	return repo
}

func (r *memoryRoleRepo) GetByID(_ context.Context, roleID int64) (domain.Role, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	role, ok := r.roles[roleID]
	if !ok {
		return domain.Role{}, fmt.Errorf("get role: %w", domain.ErrNotFound)
	}
	return role, nil
}

func (r *memoryRoleRepo) GetByName(_ context.Context, name string) (domain.Role, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, role := range r.roles {
		if role.Name == name {
			return role, nil
		}
	}
	return domain.Role{}, fmt.Errorf("get role: %w", domain.ErrNotFound)
}

func (r *memoryRoleRepo) List(_ context.Context) ([]domain.Role, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var roles []domain.Role
	for _, role := range r.roles {
		roles = append(roles, role)
	}
	return roles, nil
}

func (r *memoryRoleRepo) ListByIDs(_ context.Context, roleIDs []int64) ([]domain.Role, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var roles []domain.Role
	for _, id := range roleIDs {
		if role, ok := r.roles[id]; ok {
			roles = append(roles, role)
		}
	}
	return roles, nil
}

func (r *memoryRoleRepo) ListDefault(_ context.Context) ([]domain.Role, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var roles []domain.Role
	for _, role := range r.roles {
		if role.IsDefault {
			roles = append(roles, role)
		}
	}
	return roles, nil
}

func (r *memoryRoleRepo) Create(_ context.Context, role domain.Role) (domain.Role, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.roles[role.ID] = role
	return role, nil
}

func (r *memoryRoleRepo) Update(_ context.Context, role domain.Role) (domain.Role, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.roles[role.ID]; !ok {
		return domain.Role{}, fmt.Errorf("update role: %w", domain.ErrNotFound)
	}
	r.roles[role.ID] = role
	return role, nil
}

func (r *memoryRoleRepo) Delete(_ context.Context, roleID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.roles[roleID]; !ok {
		return fmt.Errorf("delete role: %w", domain.ErrNotFound)
	}
	delete(r.roles, roleID)
	return nil
}

func (r *memoryRoleRepo) CountUsers(ctx context.Context, roleID int64) (int64, error) {
	r.users.mu.Lock()
	defer r.users.mu.Unlock()
	var count int64
	for _, u := range r.users.users {
		for _, id := range u.RoleIDs {
			if id == roleID {
				count++
				break
			}
		}
	}
	return count, nil
}

type memoryPermRepo struct {
	mu    sync.Mutex
	perms map[int64]domain.Permission
}

var _ repository.PermissionRepository = (*memoryPermRepo)(nil)

func newMemoryPermRepo() *memoryPermRepo {
	return &memoryPermRepo{perms: map[int64]domain.Permission{}}
}

func (r *memoryPermRepo) List(_ context.Context) ([]domain.Permission, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var perms []domain.Permission
	for _, p := range r.perms {
		perms = append(perms, p)
	}
	return perms, nil
}

func (r *memoryPermRepo) GetByName(_ context.Context, name string) (domain.Permission, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.perms {
		if p.Name == name {
			return p, nil
		}
	}
	return domain.Permission{}, fmt.Errorf("get permission: %w", domain.ErrNotFound)
}

func (r *memoryPermRepo) Create(_ context.Context, perm domain.Permission) (domain.Permission, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.perms[perm.ID] = perm
	return perm, nil
}

type memoryKeyRepo struct {
	mu  sync.Mutex
	key *domain.SigningKey
}

var _ repository.KeyRepository = (*memoryKeyRepo)(nil)

func (r *memoryKeyRepo) GetActiveKey(_ context.Context) (domain.SigningKey, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.key == nil {
		return domain.SigningKey{}, fmt.Errorf("get key: %w", domain.ErrNotFound)
	}
	return *r.key, nil
}

func (r *memoryKeyRepo) CreateKey(_ context.Context, key domain.SigningKey) (domain.SigningKey, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key.ID = 1
	key.CreatedAt = time.Now()
	r.key = &key
	return key, nil
}

type memoryOTPStore struct {
	mu      sync.Mutex
	records map[string]domain.OTPRecord
}

var _ repository.OTPStore = (*memoryOTPStore)(nil)

func newMemoryOTPStore() *memoryOTPStore {
	return &memoryOTPStore{records: map[string]domain.OTPRecord{}}
}

func (s *memoryOTPStore) Save(_ context.Context, email string, record domain.OTPRecord, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[email] = record
	return nil
}

func (s *memoryOTPStore) Get(_ context.Context, email string) (*domain.OTPRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.records[email]
	if !ok {
		return nil, nil
	}
	return &record, nil
}

func (s *memoryOTPStore) Delete(_ context.Context, email string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, email)
	return nil
}

type fakeSSOVerifier struct {
	profiles map[string]identity.Profile
}

func (v *fakeSSOVerifier) Exchange(_ context.Context, assertion string) (*identity.Profile, error) {
	profile, ok := v.profiles[assertion]
	if !ok {
		return nil, fmt.Errorf("sso exchange rejected: %w", domain.ErrInvalidCredentials)
	}
	return &profile, nil
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []sentNotification
	fail bool
}

type sentNotification struct {
	UserID   int64
	Title    string
	Message  string
	Category string
}

func (n *recordingNotifier) Send(_ context.Context, userID int64, title, message, category string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.fail {
		return fmt.Errorf("smtp unreachable")
	}
	n.sent = append(n.sent, sentNotification{UserID: userID, Title: title, Message: message, Category: category})
	return nil
}

func (n *recordingNotifier) byCategory(category string) []sentNotification {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []sentNotification
	for _, msg := range n.sent {
		if msg.Category == category {
			out = append(out, msg)
		}
	}
	return out
}
