package rbac

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/loopcraft/iamd/internal/domain"
)

func TestUnionDeduplicatesAndSorts(t *testing.T) {
	roles := []domain.Role{
		{Name: "editor", Permissions: []string{"posts:write", "posts:read"}},
		{Name: "viewer", Permissions: []string{"posts:read", "media:read"}},
	}

	perms := Union(roles)
	require.Equal(t, []string{"media:read", "posts:read", "posts:write"}, perms)
}

func TestUnionEmptyInputs(t *testing.T) {
	require.NotNil(t, Union(nil))
	require.Empty(t, Union(nil))

	perms := Union([]domain.Role{{Name: "bare"}, {Name: "blank", Permissions: []string{""}}})
	require.Empty(t, perms)
}

func TestContains(t *testing.T) {
	perms := []string{"iam:manage", "posts:read"}
	require.True(t, Contains(perms, "iam:manage"))
	require.False(t, Contains(perms, "posts:write"))
	require.False(t, Contains(nil, "anything"))
}

func TestAnyRole(t *testing.T) {
	held := []string{"member", "auditor"}
	require.True(t, AnyRole(held, []string{"admin", "auditor"}))
	require.False(t, AnyRole(held, []string{"admin"}))
	require.True(t, AnyRole(held, nil))
	require.True(t, AnyRole(nil, nil))
	require.False(t, AnyRole(nil, []string{"admin"}))
}
