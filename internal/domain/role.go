package domain

import "time"

// Role bundles permission names under a unique name. Default roles are granted
// to newly created users that carry no explicit role.
type Role struct {
	ID          int64
	Name        string
	Description string
	Permissions []string
	IsDefault   bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Permission is an atomic capability addressed by name. The resource/action
// tags exist for grouping only; enforcement treats the name as opaque.
type Permission struct {
	ID        int64
	Name      string
	Resource  string
	Action    string
	CreatedAt time.Time
}
