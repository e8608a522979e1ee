package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/ivanmru/store-inventory-reservation/internal/model"
)

// RoleRepo reads and mutates the roles / permissions / role_permissions
// tables. A role's effective permission set is exactly the join of its
// role_permissions rows; there is no hardcoded set in code.
type RoleRepo struct{ DB *sql.DB }

func NewRoleRepo(db *sql.DB) *RoleRepo { return &RoleRepo{DB: db} }

// GetRoleByCode fetches one role by its unique code.
func (r *RoleRepo) GetRoleByCode(ctx context.Context, code string) (model.Role, error) {
	var role model.Role
	err := r.DB.QueryRowContext(ctx,
		"SELECT id, code, name, level, description FROM roles WHERE code=? LIMIT 1",
		code).Scan(&role.ID, &role.Code, &role.Name, &role.Level, &role.Description)
	if errors.Is(err, sql.ErrNoRows) {
		return role, ErrNotFound
	}
	return role, err
}

// ListRoles returns all roles ordered by privilege level.
func (r *RoleRepo) ListRoles(ctx context.Context) ([]model.Role, error) {
	rows, err := r.DB.QueryContext(ctx,
		"SELECT id, code, name, level, description FROM roles ORDER BY level")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Role
	for rows.Next() {
		var role model.Role
		if err := rows.Scan(&role.ID, &role.Code, &role.Name, &role.Level, &role.Description); err != nil {
			return nil, err
		}
		out = append(out, role)
	}
	return out, rows.Err()
}

// ListPermissions returns all permissions ordered by code.
func (r *RoleRepo) ListPermissions(ctx context.Context) ([]model.Permission, error) {
	rows, err := r.DB.QueryContext(ctx,
		"SELECT id, code, name, module, description FROM permissions ORDER BY code")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Permission
	for rows.Next() {
		var p model.Permission
		if err := rows.Scan(&p.ID, &p.Code, &p.Name, &p.Module, &p.Description); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// GetPermissionCodes returns the permission codes granted to a role.
func (r *RoleRepo) GetPermissionCodes(ctx context.Context, roleCode string) ([]string, error) {
	rows, err := r.DB.QueryContext(ctx, `
		SELECT p.code
		FROM role_permissions rp
		JOIN roles r ON r.id = rp.role_id
		JOIN permissions p ON p.id = rp.permission_id
		WHERE r.code = ?
		ORDER BY p.code`, roleCode)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Grant adds a permission to a role, recording who granted it. Granting an
// already-held permission is a no-op.
func (r *RoleRepo) Grant(ctx context.Context, roleCode, permCode string, grantedBy uint64) error {
	roleID, permID, err := r.resolvePair(ctx, roleCode, permCode)
	if err != nil {
		return err
	}
	_, err = r.DB.ExecContext(ctx,
		"INSERT IGNORE INTO role_permissions (role_id, permission_id, granted_by) VALUES (?,?,?)",
		roleID, permID, grantedBy)
	return err
}

// Revoke removes a permission from a role.
func (r *RoleRepo) Revoke(ctx context.Context, roleCode, permCode string) error {
	roleID, permID, err := r.resolvePair(ctx, roleCode, permCode)
	if err != nil {
		return err
	}
	_, err = r.DB.ExecContext(ctx,
		"DELETE FROM role_permissions WHERE role_id=? AND permission_id=?", roleID, permID)
	return err
}

func (r *RoleRepo) resolvePair(ctx context.Context, roleCode, permCode string) (roleID, permID uint64, err error) {
	err = r.DB.QueryRowContext(ctx, "SELECT id FROM roles WHERE code=?", roleCode).Scan(&roleID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, 0, ErrNotFound
	}
	if err != nil {
		return 0, 0, err
	}
	err = r.DB.QueryRowContext(ctx, "SELECT id FROM permissions WHERE code=?", permCode).Scan(&permID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, 0, ErrNotFound
	}
	if err != nil {
		return 0, 0, err
	}
	return roleID, permID, nil
}
