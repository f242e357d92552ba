// Package rbac holds the pure set algebra behind permission resolution.
// Permissions are opaque names; a user's effective set is the union of the
// permission lists on their assigned roles.
package rbac

import (
	"sort"

	"github.com/loopcraft/iamd/internal/domain"
)

// Union returns the deduplicated, sorted union of the permission names across
// the given roles. Roles without permissions contribute nothing; an empty
// role set resolves to an empty (non-nil) slice.
func Union(roles []domain.Role) []string {
	seen := map[string]struct{}{}
	for _, role := range roles {
		for _, perm := range role.Permissions {
			if perm == "" {
				continue
			}
			seen[perm] = struct{}{}
		}
	}

	perms := make([]string, 0, len(seen))
	for perm := range seen {
		perms = append(perms, perm)
	}
	sort.Strings(perms)
	return perms
}

// Contains reports whether the permission name is present in the set.
func Contains(perms []string, name string) bool {
	for _, p := range perms {
		if p == name {
			return true
		}
	}
	return false
}

// RoleNames extracts the names of the given roles.
func RoleNames(roles []domain.Role) []string {
	names := make([]string, 0, len(roles))
	for _, role := range roles {
		names = append(names, role.Name)
	}
	return names
}

// AnyRole reports whether the held role names intersect the required set.
// An empty required set is satisfied by any caller.
func AnyRole(held, required []string) bool {
	if len(required) == 0 {
		return true
	}
	for _, want := range required {
		for _, have := range held {
			if have == want {
				return true
			}
		}
	}
	return false
}
