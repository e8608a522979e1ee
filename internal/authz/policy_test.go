package authz

import (
	"context"
	"testing"
	"time"

	"github.com/ivanmru/store-inventory-reservation/internal/model"
	"github.com/ivanmru/store-inventory-reservation/internal/repository"
)

// fakeStore is an in-memory RoleStore with call counting so cache behavior
// is observable.
type fakeStore struct {
	roles map[string]model.Role
	perms map[string][]string
	calls int
}

func (f *fakeStore) GetRoleByCode(_ context.Context, code string) (model.Role, error) {
	f.calls++
	r, ok := f.roles[code]
	if !ok {
		return model.Role{}, repository.ErrNotFound
	}
	return r, nil
}

func (f *fakeStore) GetPermissionCodes(_ context.Context, roleCode string) ([]string, error) {
	f.calls++
	return f.perms[roleCode], nil
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		roles: map[string]model.Role{
			"user":       {Code: "user", Level: 10},
			"empleado":   {Code: "empleado", Level: 20},
			"admin":      {Code: "admin", Level: 30},
			"superadmin": {Code: "superadmin", Level: 40},
		},
		perms: map[string][]string{
			"empleado": {"reservas.gestionar"},
			"admin":    {"productos.crear", "productos.editar", "reservas.gestionar"},
		},
	}
}

func TestMinimumRoleMonotonic(t *testing.T) {
	r := NewResolver(newFakeStore(), time.Minute)
	ctx := context.Background()

	order := []string{"user", "empleado", "admin", "superadmin"}
	for i, role := range order {
		p := Principal{ID: 1, Rol: role}
		for j, required := range order {
			got := r.MinimumRole(ctx, p, required)
			want := i >= j
			if got != want {
				t.Fatalf("role %s vs required %s: got %v, want %v", role, required, got, want)
			}
		}
	}
}

func TestMinimumRoleUnknownCodes(t *testing.T) {
	r := NewResolver(newFakeStore(), time.Minute)
	ctx := context.Background()

	// A user whose role was deleted has zero privilege.
	if r.MinimumRole(ctx, Principal{Rol: "ghost"}, "user") {
		t.Fatal("unknown principal role passed a role check")
	}
	// An unknown required role must not become a free pass.
	if r.MinimumRole(ctx, Principal{Rol: "admin"}, "ghost") {
		t.Fatal("unknown required role granted access")
	}
}

func TestPermissionChecks(t *testing.T) {
	r := NewResolver(newFakeStore(), time.Minute)
	ctx := context.Background()

	admin := Principal{Rol: "admin"}
	if !r.Permission(ctx, admin, "productos.crear") {
		t.Fatal("granted permission denied")
	}
	if r.Permission(ctx, admin, "auditoria.ver") {
		t.Fatal("ungranted permission allowed")
	}
	if !r.AnyPermission(ctx, admin, "auditoria.ver", "productos.editar") {
		t.Fatal("any-permission missed a granted code")
	}
	if r.AnyPermission(ctx, Principal{Rol: "user"}, "productos.crear") {
		t.Fatal("permissionless role passed any-permission")
	}
}

func TestSuperadminBypass(t *testing.T) {
	// superadmin has no rows in the permission table here; the role alone
	// must grant everything.
	r := NewResolver(newFakeStore(), time.Minute)
	ctx := context.Background()
	p := Principal{Rol: "superadmin"}

	if !r.Permission(ctx, p, "anything.at.all") {
		t.Fatal("superadmin denied")
	}
	if !r.AnyPermission(ctx, p, "nope") {
		t.Fatal("superadmin denied on any-permission")
	}
}

func TestResolverCachesAndFlushes(t *testing.T) {
	store := newFakeStore()
	r := NewResolver(store, time.Minute)
	ctx := context.Background()
	p := Principal{Rol: "empleado"}

	if !r.Permission(ctx, p, "reservas.gestionar") {
		t.Fatal("granted permission denied")
	}
	before := store.calls
	r.Permission(ctx, p, "reservas.gestionar")
	if store.calls != before {
		t.Fatalf("cached lookup hit the store (%d -> %d)", before, store.calls)
	}

	// Revoke in the store; the stale cache still answers until flushed.
	store.perms["empleado"] = nil
	if !r.Permission(ctx, p, "reservas.gestionar") {
		t.Fatal("cache did not serve the stale set")
	}
	r.Flush()
	if r.Permission(ctx, p, "reservas.gestionar") {
		t.Fatal("revocation not visible after flush")
	}
}
