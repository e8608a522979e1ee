package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/ivanmru/store-inventory-reservation/internal/auth"
	"github.com/ivanmru/store-inventory-reservation/internal/model"
)

// UserRepo persists users. Emails are normalized to lower case before any
// read or write so uniqueness is case-insensitive. Rows are never deleted,
// only marked with deleted_at; every query filters on it.
type UserRepo struct{ DB *sql.DB }

func NewUserRepo(db *sql.DB) *UserRepo { return &UserRepo{DB: db} }

const userColumns = "id, email, password_hash, nombre, apellido, rol, provider, avatar_url, is_active, deleted_at, created_at, updated_at"

func scanUser(row *sql.Row) (model.User, error) {
	var u model.User
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Nombre, &u.Apellido,
		&u.Rol, &u.Provider, &u.AvatarURL, &u.IsActive, &u.DeletedAt, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return u, ErrNotFound
	}
	return u, err
}

// Create inserts a local user with a hashed password and returns its ID.
func (r *UserRepo) Create(ctx context.Context, email, password, nombre, apellido string, cost int) (uint64, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	hash, err := auth.HashPassword(password, cost)
	if err != nil {
		return 0, err
	}
	res, err := r.DB.ExecContext(ctx,
		"INSERT INTO users (email, password_hash, nombre, apellido, rol, provider) VALUES (?,?,?,?,?,?)",
		email, hash, nombre, apellido, model.RoleUser, model.ProviderLocal)
	if err != nil {
		if isDuplicate(err) {
			return 0, ErrEmailExists
		}
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return uint64(id), nil
}

// CreateFromGoogle inserts a provider-only user (no password hash) mapped to
// a verified Google identity and returns its ID.
func (r *UserRepo) CreateFromGoogle(ctx context.Context, ident auth.GoogleIdentity) (uint64, error) {
	email := strings.ToLower(strings.TrimSpace(ident.Email))
	res, err := r.DB.ExecContext(ctx,
		"INSERT INTO users (email, password_hash, nombre, apellido, rol, provider, avatar_url) VALUES (?,NULL,?,?,?,?,?)",
		email, ident.Nombre, ident.Apellido, model.RoleUser, model.ProviderGoogle, ident.AvatarURL)
	if err != nil {
		if isDuplicate(err) {
			return 0, ErrEmailExists
		}
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return uint64(id), nil
}

// GetByEmail fetches a non-deleted user by normalized email.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (model.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	return scanUser(r.DB.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE email=? AND deleted_at IS NULL LIMIT 1", email))
}

// GetByID fetches a non-deleted user by id.
func (r *UserRepo) GetByID(ctx context.Context, id uint64) (model.User, error) {
	return scanUser(r.DB.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE id=? AND deleted_at IS NULL LIMIT 1", id))
}

// UpdateRole changes a user's role code. Callers verify the user exists
// first; MySQL reports zero affected rows for no-op updates, so the count is
// not a reliable existence signal here.
func (r *UserRepo) UpdateRole(ctx context.Context, userID uint64, roleCode string) error {
	_, err := r.DB.ExecContext(ctx,
		"UPDATE users SET rol=?, updated_at=NOW() WHERE id=? AND deleted_at IS NULL",
		roleCode, userID)
	return err
}

// isDuplicate detects MySQL error 1062 (duplicate key).
func isDuplicate(err error) bool {
	return err != nil && strings.Contains(err.Error(), "1062")
}
