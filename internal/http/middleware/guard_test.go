package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/loopcraft/iamd/internal/domain"
	"github.com/loopcraft/iamd/internal/token"
)

type memoryRoleRepo struct {
	roles map[int64]domain.Role
	fail  bool
}

func (m *memoryRoleRepo) GetByID(_ context.Context, roleID int64) (domain.Role, error) {
	role, ok := m.roles[roleID]
	if !ok {
		return domain.Role{}, domain.ErrNotFound
	}
	return role, nil
}

func (m *memoryRoleRepo) GetByName(_ context.Context, name string) (domain.Role, error) {
	for _, role := range m.roles {
		if role.Name == name {
			return role, nil
		}
	}
	return domain.Role{}, domain.ErrNotFound
}

func (m *memoryRoleRepo) List(_ context.Context) ([]domain.Role, error) {
	out := make([]domain.Role, 0, len(m.roles))
	for _, role := range m.roles {
		out = append(out, role)
	}
	return out, nil
}

func (m *memoryRoleRepo) ListByIDs(_ context.Context, roleIDs []int64) ([]domain.Role, error) {
	if m.fail {
		return nil, domain.ErrExternal
	}
	var out []domain.Role
	for _, id := range roleIDs {
		if role, ok := m.roles[id]; ok {
			out = append(out, role)
		}
	}
	return out, nil
}

func (m *memoryRoleRepo) ListDefault(_ context.Context) ([]domain.Role, error) {
	var out []domain.Role
	for _, role := range m.roles {
		if role.IsDefault {
			out = append(out, role)
		}
	}
	return out, nil
}

func (m *memoryRoleRepo) Create(_ context.Context, role domain.Role) (domain.Role, error) {
	m.roles[role.ID] = role
	return role, nil
}

func (m *memoryRoleRepo) Update(_ context.Context, role domain.Role) (domain.Role, error) {
	m.roles[role.ID] = role
	return role, nil
}

func (m *memoryRoleRepo) Delete(_ context.Context, roleID int64) error {
	delete(m.roles, roleID)
	return nil
}

func (m *memoryRoleRepo) CountUsers(_ context.Context, _ int64) (int64, error) {
	return 0, nil
}

func guardFixture(t *testing.T, repo *memoryRoleRepo, claims *token.Claims, handlers ...gin.HandlerFunc) *httptest.ResponseRecorder {
	t.Helper()
	gin.SetMode(gin.TestMode)

	r := gin.New()
	if claims != nil {
		r.Use(func(c *gin.Context) {
			c.Set(claimsKey, claims)
			c.Next()
		})
	}
	r.GET("/protected", append(handlers, func(c *gin.Context) {
		c.Status(http.StatusOK)
	})...)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	r.ServeHTTP(rec, req)
	return rec
}

func TestRequirePermissionAllowsUnionMember(t *testing.T) {
	repo := &memoryRoleRepo{roles: map[int64]domain.Role{
		1: {ID: 1, Name: "admin", Permissions: []string{"iam:manage"}},
		2: {ID: 2, Name: "member", Permissions: []string{"profile:read"}},
	}}
	guard := &Guard{Roles: repo}
	claims := &token.Claims{UserID: 10, RoleIDs: []int64{1, 2}}

	rec := guardFixture(t, repo, claims, guard.RequirePermission("iam:manage"))
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestRequirePermissionRejectsMissingPermission(t *testing.T) {
	repo := &memoryRoleRepo{roles: map[int64]domain.Role{
		2: {ID: 2, Name: "member", Permissions: []string{"profile:read"}},
	}}
	guard := &Guard{Roles: repo}
	claims := &token.Claims{UserID: 10, RoleIDs: []int64{2}}

	rec := guardFixture(t, repo, claims, guard.RequirePermission("iam:manage"))
	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestRequirePermissionRejectsAnonymous(t *testing.T) {
	repo := &memoryRoleRepo{roles: map[int64]domain.Role{}}
	guard := &Guard{Roles: repo}

	rec := guardFixture(t, repo, nil, guard.RequirePermission("iam:manage"))
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequirePermissionSeesFreshRoleDefinition(t *testing.T) {
	repo := &memoryRoleRepo{roles: map[int64]domain.Role{
		2: {ID: 2, Name: "member", Permissions: []string{"profile:read"}},
	}}
	guard := &Guard{Roles: repo}
	claims := &token.Claims{UserID: 10, RoleIDs: []int64{2}}

	rec := guardFixture(t, repo, claims, guard.RequirePermission("reports:read"))
	require.Equal(t, http.StatusForbidden, rec.Code)

	role := repo.roles[2]
	role.Permissions = append(role.Permissions, "reports:read")
	repo.roles[2] = role

	rec = guardFixture(t, repo, claims, guard.RequirePermission("reports:read"))
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestRequireRole(t *testing.T) {
	repo := &memoryRoleRepo{roles: map[int64]domain.Role{
		1: {ID: 1, Name: "admin"},
		2: {ID: 2, Name: "member"},
	}}
	guard := &Guard{Roles: repo}
	claims := &token.Claims{UserID: 10, RoleIDs: []int64{2}}

	rec := guardFixture(t, repo, claims, guard.RequireRole("admin"))
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = guardFixture(t, repo, claims, guard.RequireRole("admin", "member"))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = guardFixture(t, repo, claims, guard.RequireRole())
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestGuardReportsLookupFailure(t *testing.T) {
	repo := &memoryRoleRepo{roles: map[int64]domain.Role{}, fail: true}
	guard := &Guard{Roles: repo}
	claims := &token.Claims{UserID: 10, RoleIDs: []int64{1}}

	rec := guardFixture(t, repo, claims, guard.RequirePermission("iam:manage"))
	require.Equal(t, http.StatusBadGateway, rec.Code)
}
