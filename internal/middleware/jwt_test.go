package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/ivanmru/store-inventory-reservation/internal/auth"
	"github.com/ivanmru/store-inventory-reservation/internal/authz"
	"github.com/ivanmru/store-inventory-reservation/internal/model"
)

func testIssuer(t *testing.T) *auth.Issuer {
	t.Helper()
	i, err := auth.NewIssuer("access-secret", "refresh-secret", time.Minute, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	return i
}

// okHandler echoes the principal so tests can assert what the middleware
// stored.
func okHandler(c echo.Context) error {
	p, ok := Principal(c)
	if !ok {
		return c.NoContent(http.StatusInternalServerError)
	}
	return c.JSON(http.StatusOK, echo.Map{"id": p.ID, "rol": p.Rol})
}

func runTokenAuth(t *testing.T, issuer *auth.Issuer, prep func(*http.Request)) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/v1/auth/me", nil)
	prep(req)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	if err := TokenAuth(issuer)(okHandler)(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	return rec
}

func TestTokenAuthFromCookie(t *testing.T) {
	issuer := testIssuer(t)
	token, _, err := issuer.IssueAccess(model.User{ID: 7, Email: "a@b.c", Rol: "admin"})
	if err != nil {
		t.Fatal(err)
	}
	rec := runTokenAuth(t, issuer, func(r *http.Request) {
		r.AddCookie(&http.Cookie{Name: AccessCookieName, Value: token})
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
}

func TestTokenAuthBearerFallback(t *testing.T) {
	issuer := testIssuer(t)
	token, _, _ := issuer.IssueAccess(model.User{ID: 7, Email: "a@b.c", Rol: "user"})
	rec := runTokenAuth(t, issuer, func(r *http.Request) {
		r.Header.Set("Authorization", "Bearer "+token)
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
}

func TestTokenAuthRejects(t *testing.T) {
	issuer := testIssuer(t)

	// No credentials at all.
	rec := runTokenAuth(t, issuer, func(*http.Request) {})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("missing token: status %d", rec.Code)
	}

	// Garbage cookie.
	rec = runTokenAuth(t, issuer, func(r *http.Request) {
		r.AddCookie(&http.Cookie{Name: AccessCookieName, Value: "not-a-jwt"})
	})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("garbage token: status %d", rec.Code)
	}

	// Token signed by someone else.
	stranger, _ := auth.NewIssuer("other-a", "other-r", time.Minute, time.Hour)
	token, _, _ := stranger.IssueAccess(model.User{ID: 7, Rol: "user"})
	rec = runTokenAuth(t, issuer, func(r *http.Request) {
		r.AddCookie(&http.Cookie{Name: AccessCookieName, Value: token})
	})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("foreign token: status %d", rec.Code)
	}
}

// staticPolicy grants or denies everything, for middleware tests.
type staticPolicy bool

func (s staticPolicy) MinimumRole(context.Context, authz.Principal, string) bool { return bool(s) }
func (s staticPolicy) Permission(context.Context, authz.Principal, string) bool  { return bool(s) }
func (s staticPolicy) AnyPermission(context.Context, authz.Principal, ...string) bool {
	return bool(s)
}

func TestRequirePermission(t *testing.T) {
	e := echo.New()
	run := func(policy authz.Policy, withPrincipal bool) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/v1/admin/products", nil)
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)
		if withPrincipal {
			c.Set(principalKey, authz.Principal{ID: 1, Rol: "admin"})
		}
		h := RequirePermission(policy, "productos.crear")(func(c echo.Context) error {
			return c.NoContent(http.StatusOK)
		})
		if err := h(c); err != nil {
			t.Fatal(err)
		}
		return rec
	}

	if rec := run(staticPolicy(true), true); rec.Code != http.StatusOK {
		t.Fatalf("allowed: status %d", rec.Code)
	}
	if rec := run(staticPolicy(false), true); rec.Code != http.StatusForbidden {
		t.Fatalf("denied: status %d", rec.Code)
	}
	if rec := run(staticPolicy(true), false); rec.Code != http.StatusUnauthorized {
		t.Fatalf("no principal: status %d", rec.Code)
	}
}
