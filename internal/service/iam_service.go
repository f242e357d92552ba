package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/loopcraft/iamd/internal/domain"
	"github.com/loopcraft/iamd/internal/rbac"
	"github.com/loopcraft/iamd/internal/repository"
)

// IAMService manages roles, permissions, and role assignment. Role and
// permission names are unique; a role cannot be deleted while any user still
// holds it.
type IAMService struct {
	users     repository.UserRepository
	roles     repository.RoleRepository
	perms     repository.PermissionRepository
	snowflake *snowflake.Node
	logger    *zap.Logger
	tracer    trace.Tracer
}

// NewIAMService wires dependencies.
func NewIAMService(
	users repository.UserRepository,
	roles repository.RoleRepository,
	perms repository.PermissionRepository,
	node *snowflake.Node,
	logger *zap.Logger,
) *IAMService {
	return &IAMService{
		users:     users,
		roles:     roles,
		perms:     perms,
		snowflake: node,
		logger:    logger,
		tracer:    otel.Tracer("github.com/loopcraft/iamd/internal/service"),
	}
}

// CreateRole creates a role with a unique name.
func (s *IAMService) CreateRole(ctx context.Context, name, description string, permissions []string, isDefault bool) (domain.Role, error) {
	ctx, span := s.startSpan(ctx, "IAMService.CreateRole")
	defer span.End()

	name = strings.TrimSpace(name)
	if name == "" {
		return domain.Role{}, fmt.Errorf("%w: role name required", domain.ErrInvalidInput)
	}
	if err := s.ensureRoleNameFree(ctx, name); err != nil {
		return domain.Role{}, err
	}

	role, err := s.roles.Create(ctx, domain.Role{
		ID:          s.snowflake.Generate().Int64(),
		Name:        name,
		Description: strings.TrimSpace(description),
		Permissions: permissions,
		IsDefault:   isDefault,
	})
	if err != nil {
		span.RecordError(err)
		return domain.Role{}, err
	}

	s.audit("role.created", "role_id", role.ID, "name", role.Name)
	return role, nil
}

// UpdateRole replaces the role's name, description, permission list, and
// default flag. Renames keep the uniqueness guarantee.
func (s *IAMService) UpdateRole(ctx context.Context, roleID int64, name, description string, permissions []string, isDefault bool) (domain.Role, error) {
	ctx, span := s.startSpan(ctx, "IAMService.UpdateRole")
	defer span.End()

	role, err := s.roles.GetByID(ctx, roleID)
	if err != nil {
		span.RecordError(err)
		return domain.Role{}, err
	}

	name = strings.TrimSpace(name)
	if name == "" {
		return domain.Role{}, fmt.Errorf("%w: role name required", domain.ErrInvalidInput)
	}
	if name != role.Name {
		if err := s.ensureRoleNameFree(ctx, name); err != nil {
			return domain.Role{}, err
		}
	}

	role.Name = name
	role.Description = strings.TrimSpace(description)
	role.Permissions = permissions
	role.IsDefault = isDefault

	updated, err := s.roles.Update(ctx, role)
	if err != nil {
		span.RecordError(err)
		return domain.Role{}, err
	}

	s.audit("role.updated", "role_id", updated.ID, "name", updated.Name)
	return updated, nil
}

// DeleteRole removes a role no user holds.
func (s *IAMService) DeleteRole(ctx context.Context, roleID int64) error {
	ctx, span := s.startSpan(ctx, "IAMService.DeleteRole")
	defer span.End()

	role, err := s.roles.GetByID(ctx, roleID)
	if err != nil {
		span.RecordError(err)
		return err
	}

	count, err := s.roles.CountUsers(ctx, roleID)
	if err != nil {
		span.RecordError(err)
		return err
	}
	if count > 0 {
		return fmt.Errorf("%w: held by %d users", domain.ErrRoleReferenced, count)
	}

	if err := s.roles.Delete(ctx, roleID); err != nil {
		span.RecordError(err)
		return err
	}

	s.audit("role.deleted", "role_id", roleID, "name", role.Name)
	return nil
}

// ListRoles returns all roles.
func (s *IAMService) ListRoles(ctx context.Context) ([]domain.Role, error) {
	return s.roles.List(ctx)
}

// CreatePermission registers a permission with a unique name.
func (s *IAMService) CreatePermission(ctx context.Context, name, resource, action string) (domain.Permission, error) {
	ctx, span := s.startSpan(ctx, "IAMService.CreatePermission")
	defer span.End()

	name = strings.TrimSpace(name)
	if name == "" {
		return domain.Permission{}, fmt.Errorf("%w: permission name required", domain.ErrInvalidInput)
	}
	if _, err := s.perms.GetByName(ctx, name); err == nil {
		return domain.Permission{}, fmt.Errorf("%w: permission %q exists", domain.ErrConflict, name)
	} else if !errors.Is(err, domain.ErrNotFound) {
		span.RecordError(err)
		return domain.Permission{}, err
	}

	perm, err := s.perms.Create(ctx, domain.Permission{
		ID:       s.snowflake.Generate().Int64(),
		Name:     name,
		Resource: strings.TrimSpace(resource),
		Action:   strings.TrimSpace(action),
	})
	if err != nil {
		span.RecordError(err)
		return domain.Permission{}, err
	}

	s.audit("permission.created", "permission_id", perm.ID, "name", perm.Name)
	return perm, nil
}

// ListPermissions returns all registered permissions.
func (s *IAMService) ListPermissions(ctx context.Context) ([]domain.Permission, error) {
	return s.perms.List(ctx)
}

// AssignRole adds the role to the user's set. Assigning a role the user
// already holds is a conflict; role sets carry no duplicates.
func (s *IAMService) AssignRole(ctx context.Context, userID, roleID int64) error {
	ctx, span := s.startSpan(ctx, "IAMService.AssignRole")
	defer span.End()

	role, err := s.roles.GetByID(ctx, roleID)
	if err != nil {
		span.RecordError(err)
		return err
	}
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		span.RecordError(err)
		return err
	}
	if user.HasRole(roleID) {
		return fmt.Errorf("%w: role already assigned", domain.ErrConflict)
	}

	user.RoleIDs = append(user.RoleIDs, roleID)
	if _, err := s.users.Update(ctx, user); err != nil {
		span.RecordError(err)
		return err
	}

	s.audit("role.assigned", "user_id", userID, "role_id", roleID, "name", role.Name)
	return nil
}

// RemoveRole takes the role out of the user's set.
func (s *IAMService) RemoveRole(ctx context.Context, userID, roleID int64) error {
	ctx, span := s.startSpan(ctx, "IAMService.RemoveRole")
	defer span.End()

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		span.RecordError(err)
		return err
	}
	if !user.HasRole(roleID) {
		return fmt.Errorf("%w: role not assigned", domain.ErrNotFound)
	}

	kept := make([]int64, 0, len(user.RoleIDs))
	for _, id := range user.RoleIDs {
		if id != roleID {
			kept = append(kept, id)
		}
	}
	user.RoleIDs = kept
	if _, err := s.users.Update(ctx, user); err != nil {
		span.RecordError(err)
		return err
	}

	s.audit("role.removed", "user_id", userID, "role_id", roleID)
	return nil
}

// ResolvePermissions computes the user's effective permission set: the
// deduplicated union across their current roles, sorted by name.
func (s *IAMService) ResolvePermissions(ctx context.Context, userID int64) ([]string, error) {
	ctx, span := s.startSpan(ctx, "IAMService.ResolvePermissions")
	defer span.End()

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	roles, err := s.roles.ListByIDs(ctx, user.RoleIDs)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return rbac.Union(roles), nil
}

func (s *IAMService) ensureRoleNameFree(ctx context.Context, name string) error {
	if _, err := s.roles.GetByName(ctx, name); err == nil {
		return fmt.Errorf("%w: role %q exists", domain.ErrConflict, name)
	} else if !errors.Is(err, domain.ErrNotFound) {
		return err
	}
	return nil
}

func (s *IAMService) startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	if s == nil || s.tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return s.tracer.Start(ctx, name)
}

func (s *IAMService) audit(event string, attrs ...any) {
	logger := s.logger
	if logger == nil {
		logger = zap.L()
	}
	fields := make([]zap.Field, 0, len(attrs)/2+2)
	fields = append(fields, zap.String("event", event), zap.Time("timestamp", time.Now().UTC()))
	for i := 0; i+1 < len(attrs); i += 2 {
		key, ok := attrs[i].(string)
		if !ok {
			continue
		}
		fields = append(fields, zap.Any(key, attrs[i+1]))
	}
	logger.Info("audit", fields...)
}
