// Package authz answers role and permission questions about an authenticated
// principal. Policy is an explicit interface invoked by middleware and
// handlers; nothing here is ambient request state.
package authz

import (
	"context"
	"errors"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/ivanmru/store-inventory-reservation/internal/model"
)

// ErrInsufficientPrivilege is returned by middleware when a check fails.
// Handlers translate it into HTTP 403.
var ErrInsufficientPrivilege = errors.New("insufficient privilege")

// Principal is the typed identity produced by the access-token middleware and
// threaded through handlers. Rol is the role code embedded in the access
// token, so role-level checks trust a value that may be one access-TTL stale.
type Principal struct {
	ID    uint64
	Email string
	Rol   string
}

// Policy answers authorization questions. Level and permission-set lookups go
// through the RoleStore; implementations must treat an unknown role code as
// level 0 with no permissions, never as a grant.
type Policy interface {
	// MinimumRole reports whether p's role level is at least roleCode's level.
	MinimumRole(ctx context.Context, p Principal, roleCode string) bool
	// Permission reports whether p's role holds the permission code.
	// Superadmin short-circuits to true regardless of the permission table.
	Permission(ctx context.Context, p Principal, code string) bool
	// AnyPermission reports whether p holds at least one of the codes.
	AnyPermission(ctx context.Context, p Principal, codes ...string) bool
}

// RoleStore is the slice of the RBAC repository the resolver needs.
type RoleStore interface {
	GetRoleByCode(ctx context.Context, code string) (model.Role, error)
	GetPermissionCodes(ctx context.Context, roleCode string) ([]string, error)
}

// Resolver implements Policy over a RoleStore with a short-TTL in-process
// cache. Permission sets are re-fetched rather than trusted from token
// claims, so revocations and role edits take effect within one cache TTL
// instead of one access-token TTL.
type Resolver struct {
	store RoleStore
	cache *gocache.Cache
}

const (
	levelCachePrefix = "level:"
	permCachePrefix  = "perms:"
)

// NewResolver builds a Resolver. ttl bounds how stale cached levels and
// permission sets may be; a few seconds is plenty.
func NewResolver(store RoleStore, ttl time.Duration) *Resolver {
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	return &Resolver{
		store: store,
		cache: gocache.New(ttl, 2*ttl),
	}
}

// Flush drops every cached level and permission set. Called after RBAC
// mutations so grants and revocations apply immediately.
func (r *Resolver) Flush() { r.cache.Flush() }

// level resolves a role code to its privilege level. Unknown roles (deleted
// or renamed after token issuance) resolve to 0.
func (r *Resolver) level(ctx context.Context, roleCode string) int {
	if roleCode == "" {
		return 0
	}
	if v, ok := r.cache.Get(levelCachePrefix + roleCode); ok {
		return v.(int)
	}
	role, err := r.store.GetRoleByCode(ctx, roleCode)
	if err != nil {
		return 0
	}
	r.cache.SetDefault(levelCachePrefix+roleCode, role.Level)
	return role.Level
}

// permissions resolves a role code to its permission set. Unknown roles get
// an empty set.
func (r *Resolver) permissions(ctx context.Context, roleCode string) map[string]bool {
	if roleCode == "" {
		return nil
	}
	if v, ok := r.cache.Get(permCachePrefix + roleCode); ok {
		return v.(map[string]bool)
	}
	codes, err := r.store.GetPermissionCodes(ctx, roleCode)
	if err != nil {
		return nil
	}
	set := make(map[string]bool, len(codes))
	for _, c := range codes {
		set[c] = true
	}
	r.cache.SetDefault(permCachePrefix+roleCode, set)
	return set
}

func (r *Resolver) MinimumRole(ctx context.Context, p Principal, roleCode string) bool {
	required := r.level(ctx, roleCode)
	if required == 0 {
		// An unknown required role would otherwise let everyone through.
		_, err := r.store.GetRoleByCode(ctx, roleCode)
		if err != nil {
			return false
		}
	}
	return r.level(ctx, p.Rol) >= required
}

func (r *Resolver) Permission(ctx context.Context, p Principal, code string) bool {
	if p.Rol == model.RoleSuperadmin {
		return true
	}
	return r.permissions(ctx, p.Rol)[code]
}

func (r *Resolver) AnyPermission(ctx context.Context, p Principal, codes ...string) bool {
	if p.Rol == model.RoleSuperadmin {
		return true
	}
	set := r.permissions(ctx, p.Rol)
	for _, c := range codes {
		if set[c] {
			return true
		}
	}
	return false
}
