package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/loopcraft/iamd/internal/domain"
)

// Compile-time interface assertions.
var (
	_ UserRepository       = (*PostgresUserRepo)(nil)
	_ RoleRepository       = (*PostgresRoleRepo)(nil)
	_ PermissionRepository = (*PostgresPermissionRepo)(nil)
	_ KeyRepository        = (*PostgresKeyRepo)(nil)
)

const uniqueViolation = "23505"

// mapErr translates driver errors into the shared taxonomy so raw pgx errors
// never cross the repository boundary.
func mapErr(op string, err error) error {
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return fmt.Errorf("%s: %w", op, domain.ErrNotFound)
	default:
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return fmt.Errorf("%s: %w", op, domain.ErrConflict)
		}
		return fmt.Errorf("%s: %w: %v", op, domain.ErrExternal, err)
	}
}

// PostgresUserRepo implements UserRepository with raw SQL on the pool.
type PostgresUserRepo struct {
	db *pgxpool.Pool
}

func NewPostgresUserRepo(pool *pgxpool.Pool) *PostgresUserRepo {
	return &PostgresUserRepo{db: pool}
}

const userColumns = `id, email, name, avatar_url, password_hash, role_ids, active,
provider, provider_user_id, mfa_pending_secret, mfa_secret, mfa_enabled,
last_authenticated_at, created_at, updated_at`

func scanUser(row pgx.Row) (domain.User, error) {
	var u domain.User
	err := row.Scan(
		&u.ID,
		&u.Email,
		&u.Name,
		&u.AvatarURL,
		&u.PasswordHash,
		&u.RoleIDs,
		&u.Active,
		&u.Provider,
		&u.ProviderUserID,
		&u.MFAPendingSecret,
		&u.MFASecret,
		&u.MFAEnabled,
		&u.LastAuthenticatedAt,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	return u, err
}

func (r *PostgresUserRepo) GetByID(ctx context.Context, userID int64) (domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	user, err := scanUser(r.db.QueryRow(ctx, query, userID))
	if err != nil {
		return domain.User{}, mapErr("get user by id", err)
	}
	return user, nil
}

func (r *PostgresUserRepo) GetByEmail(ctx context.Context, email string) (domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE lower(email) = lower($1)`
	user, err := scanUser(r.db.QueryRow(ctx, query, email))
	if err != nil {
		return domain.User{}, mapErr("get user by email", err)
	}
	return user, nil
}

func (r *PostgresUserRepo) GetByProviderID(ctx context.Context, provider, externalID string) (domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE provider = $1 AND provider_user_id = $2`
	user, err := scanUser(r.db.QueryRow(ctx, query, provider, externalID))
	if err != nil {
		return domain.User{}, mapErr("get user by provider", err)
	}
	return user, nil
}

const insertUserSQL = `INSERT INTO users
(id, email, name, avatar_url, password_hash, role_ids, active, provider, provider_user_id, mfa_pending_secret, mfa_secret, mfa_enabled, last_authenticated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
RETURNING ` + userColumns

func (r *PostgresUserRepo) Create(ctx context.Context, user domain.User) (domain.User, error) {
	row := r.db.QueryRow(ctx, insertUserSQL,
		user.ID,
		user.Email,
		user.Name,
		user.AvatarURL,
		user.PasswordHash,
		user.RoleIDs,
		user.Active,
		user.Provider,
		user.ProviderUserID,
		user.MFAPendingSecret,
		user.MFASecret,
		user.MFAEnabled,
		user.LastAuthenticatedAt,
	)
	created, err := scanUser(row)
	if err != nil {
		return domain.User{}, mapErr("create user", err)
	}
	return created, nil
}

const updateUserSQL = `UPDATE users SET
email = $2, name = $3, avatar_url = $4, password_hash = $5, role_ids = $6, active = $7,
provider = $8, provider_user_id = $9, mfa_pending_secret = $10, mfa_secret = $11,
mfa_enabled = $12, last_authenticated_at = $13, updated_at = now()
WHERE id = $1
RETURNING ` + userColumns

func (r *PostgresUserRepo) Update(ctx context.Context, user domain.User) (domain.User, error) {
	row := r.db.QueryRow(ctx, updateUserSQL,
		user.ID,
		user.Email,
		user.Name,
		user.AvatarURL,
		user.PasswordHash,
		user.RoleIDs,
		user.Active,
		user.Provider,
		user.ProviderUserID,
		user.MFAPendingSecret,
		user.MFASecret,
		user.MFAEnabled,
		user.LastAuthenticatedAt,
	)
	updated, err := scanUser(row)
	if err != nil {
		return domain.User{}, mapErr("update user", err)
	}
	return updated, nil
}

// PostgresRoleRepo implements RoleRepository.
type PostgresRoleRepo struct {
	db *pgxpool.Pool
}

func NewPostgresRoleRepo(pool *pgxpool.Pool) *PostgresRoleRepo {
	return &PostgresRoleRepo{db: pool}
}

const roleColumns = `id, name, description, permissions, is_default, created_at, updated_at`

func scanRole(row pgx.Row) (domain.Role, error) {
	var role domain.Role
	err := row.Scan(&role.ID, &role.Name, &role.Description, &role.Permissions, &role.IsDefault, &role.CreatedAt, &role.UpdatedAt)
	return role, err
}

func (r *PostgresRoleRepo) GetByID(ctx context.Context, roleID int64) (domain.Role, error) {
	role, err := scanRole(r.db.QueryRow(ctx, `SELECT `+roleColumns+` FROM roles WHERE id = $1`, roleID))
	if err != nil {
		return domain.Role{}, mapErr("get role by id", err)
	}
	return role, nil
}

func (r *PostgresRoleRepo) GetByName(ctx context.Context, name string) (domain.Role, error) {
	role, err := scanRole(r.db.QueryRow(ctx, `SELECT `+roleColumns+` FROM roles WHERE name = $1`, name))
	if err != nil {
		return domain.Role{}, mapErr("get role by name", err)
	}
	return role, nil
}

func (r *PostgresRoleRepo) List(ctx context.Context) ([]domain.Role, error) {
	return r.listWhere(ctx, `SELECT `+roleColumns+` FROM roles ORDER BY name`)
}

func (r *PostgresRoleRepo) ListByIDs(ctx context.Context, roleIDs []int64) ([]domain.Role, error) {
	if len(roleIDs) == 0 {
		return nil, nil
	}
	return r.listWhere(ctx, `SELECT `+roleColumns+` FROM roles WHERE id = ANY($1) ORDER BY name`, roleIDs)
}

func (r *PostgresRoleRepo) ListDefault(ctx context.Context) ([]domain.Role, error) {
	return r.listWhere(ctx, `SELECT `+roleColumns+` FROM roles WHERE is_default ORDER BY name`)
}

func (r *PostgresRoleRepo) listWhere(ctx context.Context, query string, args ...any) ([]domain.Role, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, mapErr("list roles", err)
	}
	defer rows.Close()

	var roles []domain.Role
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, mapErr("scan role", err)
		}
		roles = append(roles, role)
	}
	if err := rows.Err(); err != nil {
		return nil, mapErr("list roles", err)
	}
	return roles, nil
}

const insertRoleSQL = `INSERT INTO roles (id, name, description, permissions, is_default)
VALUES ($1, $2, $3, $4, $5)
RETURNING ` + roleColumns

func (r *PostgresRoleRepo) Create(ctx context.Context, role domain.Role) (domain.Role, error) {
	row := r.db.QueryRow(ctx, insertRoleSQL, role.ID, role.Name, role.Description, role.Permissions, role.IsDefault)
	created, err := scanRole(row)
	if err != nil {
		return domain.Role{}, mapErr("create role", err)
	}
	return created, nil
}

const updateRoleSQL = `UPDATE roles SET
name = $2, description = $3, permissions = $4, is_default = $5, updated_at = now()
WHERE id = $1
RETURNING ` + roleColumns

func (r *PostgresRoleRepo) Update(ctx context.Context, role domain.Role) (domain.Role, error) {
	row := r.db.QueryRow(ctx, updateRoleSQL, role.ID, role.Name, role.Description, role.Permissions, role.IsDefault)
	updated, err := scanRole(row)
	if err != nil {
		return domain.Role{}, mapErr("update role", err)
	}
	return updated, nil
}

func (r *PostgresRoleRepo) Delete(ctx context.Context, roleID int64) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM roles WHERE id = $1`, roleID)
	if err != nil {
		return mapErr("delete role", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("delete role: %w", domain.ErrNotFound)
	}
	return nil
}

func (r *PostgresRoleRepo) CountUsers(ctx context.Context, roleID int64) (int64, error) {
	var count int64
	err := r.db.QueryRow(ctx, `SELECT count(*) FROM users WHERE role_ids @> ARRAY[$1]::bigint[]`, roleID).Scan(&count)
	if err != nil {
		return 0, mapErr("count role users", err)
	}
	return count, nil
}

// PostgresPermissionRepo implements PermissionRepository.
type PostgresPermissionRepo struct {
	db *pgxpool.Pool
}

func NewPostgresPermissionRepo(pool *pgxpool.Pool) *PostgresPermissionRepo {
	return &PostgresPermissionRepo{db: pool}
}

const permColumns = `id, name, resource, action, created_at`

func (r *PostgresPermissionRepo) List(ctx context.Context) ([]domain.Permission, error) {
	rows, err := r.db.Query(ctx, `SELECT `+permColumns+` FROM permissions ORDER BY name`)
	if err != nil {
		return nil, mapErr("list permissions", err)
	}
	defer rows.Close()

	var perms []domain.Permission
	for rows.Next() {
		var p domain.Permission
		if err := rows.Scan(&p.ID, &p.Name, &p.Resource, &p.Action, &p.CreatedAt); err != nil {
			return nil, mapErr("scan permission", err)
		}
		perms = append(perms, p)
	}
	if err := rows.Err(); err != nil {
		return nil, mapErr("list permissions", err)
	}
	return perms, nil
}

func (r *PostgresPermissionRepo) GetByName(ctx context.Context, name string) (domain.Permission, error) {
	var p domain.Permission
	err := r.db.QueryRow(ctx, `SELECT `+permColumns+` FROM permissions WHERE name = $1`, name).
		Scan(&p.ID, &p.Name, &p.Resource, &p.Action, &p.CreatedAt)
	if err != nil {
		return domain.Permission{}, mapErr("get permission", err)
	}
	return p, nil
}

const insertPermSQL = `INSERT INTO permissions (id, name, resource, action)
VALUES ($1, $2, $3, $4)
RETURNING ` + permColumns

func (r *PostgresPermissionRepo) Create(ctx context.Context, perm domain.Permission) (domain.Permission, error) {
	var p domain.Permission
	err := r.db.QueryRow(ctx, insertPermSQL, perm.ID, perm.Name, perm.Resource, perm.Action).
		Scan(&p.ID, &p.Name, &p.Resource, &p.Action, &p.CreatedAt)
	if err != nil {
		return domain.Permission{}, mapErr("create permission", err)
	}
	return p, nil
}

// PostgresKeyRepo implements KeyRepository.
type PostgresKeyRepo struct {
	db *pgxpool.Pool
}

func NewPostgresKeyRepo(pool *pgxpool.Pool) *PostgresKeyRepo {
	return &PostgresKeyRepo{db: pool}
}

func (r *PostgresKeyRepo) GetActiveKey(ctx context.Context) (domain.SigningKey, error) {
	const query = `SELECT id, kid, secret, algorithm, is_active, created_at
FROM signing_keys WHERE is_active ORDER BY created_at DESC LIMIT 1`

	var key domain.SigningKey
	err := r.db.QueryRow(ctx, query).Scan(&key.ID, &key.KID, &key.Secret, &key.Algorithm, &key.IsActive, &key.CreatedAt)
	if err != nil {
		return domain.SigningKey{}, mapErr("get active key", err)
	}
	return key, nil
}

func (r *PostgresKeyRepo) CreateKey(ctx context.Context, key domain.SigningKey) (domain.SigningKey, error) {
	const query = `INSERT INTO signing_keys (kid, secret, algorithm, is_active)
VALUES ($1, $2, $3, $4)
RETURNING id, kid, secret, algorithm, is_active, created_at`

	var created domain.SigningKey
	err := r.db.QueryRow(ctx, query, key.KID, key.Secret, key.Algorithm, key.IsActive).
		Scan(&created.ID, &created.KID, &created.Secret, &created.Algorithm, &created.IsActive, &created.CreatedAt)
	if err != nil {
		return domain.SigningKey{}, mapErr("create key", err)
	}
	return created, nil
}
