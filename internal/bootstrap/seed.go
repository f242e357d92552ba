package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/loopcraft/iamd/internal/config"
	"github.com/loopcraft/iamd/internal/domain"
	"github.com/loopcraft/iamd/internal/password"
	"github.com/loopcraft/iamd/internal/repository"
)

const (
	adminRoleName    = "admin"
	memberRoleName   = "member"
	managePermission = "iam:manage"
)

// EnsureSeed creates the baseline permission, roles, and admin account on
// startup if they are missing. Safe to run on every boot.
func EnsureSeed(
	lc fx.Lifecycle,
	cfg config.Config,
	users repository.UserRepository,
	roles repository.RoleRepository,
	perms repository.PermissionRepository,
	node *snowflake.Node,
	logger *zap.Logger,
) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return ensureSeed(ctx, cfg, users, roles, perms, node, logger)
		},
	})
}

func ensureSeed(
	ctx context.Context,
	cfg config.Config,
	users repository.UserRepository,
	roles repository.RoleRepository,
	perms repository.PermissionRepository,
	node *snowflake.Node,
	logger *zap.Logger,
) error {
	if err := ensurePermission(ctx, perms, node, managePermission, "iam", "manage"); err != nil {
		return err
	}

	adminRole, err := ensureRole(ctx, roles, node, domain.Role{
		Name:        adminRoleName,
		Description: "Full identity and access administration.",
		Permissions: []string{managePermission},
	})
	if err != nil {
		return err
	}

	if _, err := ensureRole(ctx, roles, node, domain.Role{
		Name:        memberRoleName,
		Description: "Baseline role granted to every new account.",
		IsDefault:   true,
	}); err != nil {
		return err
	}

	email := strings.ToLower(strings.TrimSpace(cfg.SeedAdminEmail))
	if _, err := users.GetByEmail(ctx, email); err == nil {
		return nil
	} else if !errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("seed lookup admin: %w", err)
	}

	hashed, err := password.Hash(cfg.SeedAdminPassword)
	if err != nil {
		return fmt.Errorf("seed hash password: %w", err)
	}

	now := time.Now().UTC()
	created, err := users.Create(ctx, domain.User{
		ID:           node.Generate().Int64(),
		Email:        email,
		Name:         "Admin",
		PasswordHash: hashed,
		RoleIDs:      []int64{adminRole.ID},
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	})
	if err != nil {
		return fmt.Errorf("seed create admin: %w", err)
	}

	if logger != nil {
		logger.Info("seed admin user created",
			zap.String("email", created.Email),
			zap.Int64("user_id", created.ID),
		)
	}
	return nil
}

func ensurePermission(ctx context.Context, perms repository.PermissionRepository, node *snowflake.Node, name, resource, action string) error {
	if _, err := perms.GetByName(ctx, name); err == nil {
		return nil
	} else if !errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("seed lookup permission %s: %w", name, err)
	}

	_, err := perms.Create(ctx, domain.Permission{
		ID:        node.Generate().Int64(),
		Name:      name,
		Resource:  resource,
		Action:    action,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("seed create permission %s: %w", name, err)
	}
	return nil
}

func ensureRole(ctx context.Context, roles repository.RoleRepository, node *snowflake.Node, role domain.Role) (domain.Role, error) {
	if existing, err := roles.GetByName(ctx, role.Name); err == nil {
		return existing, nil
	} else if !errors.Is(err, domain.ErrNotFound) {
		return domain.Role{}, fmt.Errorf("seed lookup role %s: %w", role.Name, err)
	}

	now := time.Now().UTC()
	role.ID = node.Generate().Int64()
	role.CreatedAt = now
	role.UpdatedAt = now
	created, err := roles.Create(ctx, role)
	if err != nil {
		return domain.Role{}, fmt.Errorf("seed create role %s: %w", role.Name, err)
	}
	return created, nil
}
