package model

import "time"

// Provider values for User.Provider.
const (
	ProviderLocal  = "local"
	ProviderGoogle = "google"
)

// Well-known role codes. Roles live in the roles table and new ones can be
// added without code changes; superadmin is the only code the authorization
// layer treats specially.
const (
	RoleUser       = "user"
	RoleEmpleado   = "empleado"
	RoleAdmin      = "admin"
	RoleSuperadmin = "superadmin"
)

// User mirrors the `users` table. Accounts created through Google sign-in
// carry a nil PasswordHash; local accounts always have one. Users are never
// hard-deleted, DeletedAt marks removal.
type User struct {
	ID           uint64
	Email        string // unique, stored lowercased
	PasswordHash *string
	Nombre       string
	Apellido     string
	Rol          string // role code, references roles.code
	Provider     string // "local" | "google"
	AvatarURL    string
	IsActive     bool
	DeletedAt    *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Role maps a code to a display name and a strictly ordered privilege level
// (higher = more privilege).
type Role struct {
	ID          uint64
	Code        string
	Name        string
	Level       int
	Description string
}

// Permission is a fine-grained capability, dot-namespaced by module
// (e.g. "productos.editar").
type Permission struct {
	ID          uint64
	Code        string
	Name        string
	Module      string
	Description string
}

// RolePermission links a role to a permission with audit fields recording
// who granted it and when.
type RolePermission struct {
	RoleID       uint64
	PermissionID uint64
	GrantedBy    uint64
	GrantedAt    time.Time
}

// Session is one refresh-token session row. The raw refresh JWT is never
// stored; only its SHA-256 hash plus the session identifier embedded in the
// token's claims. Revoking the row invalidates the token before its natural
// expiry.
type Session struct {
	ID        uint64
	UserID    uint64
	SessionID string // uuid embedded in the refresh token's "sid" claim
	TokenHash string
	ExpiresAt time.Time
	RevokedAt *time.Time
	CreatedAt time.Time
}
