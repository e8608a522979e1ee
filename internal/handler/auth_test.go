package handler

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/ivanmru/store-inventory-reservation/internal/auth"
	"github.com/ivanmru/store-inventory-reservation/internal/config"
	"github.com/ivanmru/store-inventory-reservation/internal/middleware"
	"github.com/ivanmru/store-inventory-reservation/internal/model"
	"github.com/ivanmru/store-inventory-reservation/internal/repository"
)

// fakeUsers serves a single registered account.
type fakeUsers struct {
	user model.User
}

func (f *fakeUsers) Create(context.Context, string, string, string, string, int) (uint64, error) {
	return 0, repository.ErrEmailExists
}
func (f *fakeUsers) CreateFromGoogle(context.Context, auth.GoogleIdentity) (uint64, error) {
	return 0, repository.ErrNotFound
}
func (f *fakeUsers) GetByEmail(_ context.Context, email string) (model.User, error) {
	if email != f.user.Email {
		return model.User{}, repository.ErrNotFound
	}
	return f.user, nil
}
func (f *fakeUsers) GetByID(_ context.Context, id uint64) (model.User, error) {
	if id != f.user.ID {
		return model.User{}, repository.ErrNotFound
	}
	return f.user, nil
}

type sessionRow struct {
	userID  uint64
	hash    string
	exp     time.Time
	revoked bool
}

// fakeSessions mirrors the live/revoked semantics of the sessions table.
type fakeSessions struct {
	mu        sync.Mutex
	rows      map[string]*sessionRow
	recordErr error
}

func newFakeSessions() *fakeSessions {
	return &fakeSessions{rows: make(map[string]*sessionRow)}
}

func (f *fakeSessions) Record(_ context.Context, userID uint64, sessionID, tokenHash string, exp time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.recordErr != nil {
		return f.recordErr
	}
	f.rows[sessionID] = &sessionRow{userID: userID, hash: tokenHash, exp: exp}
	return nil
}

func (f *fakeSessions) Validate(_ context.Context, userID uint64, sessionID, tokenHash string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	row, ok := f.rows[sessionID]
	if !ok || row.userID != userID || row.revoked || row.hash != tokenHash {
		return false, nil
	}
	return time.Now().Before(row.exp), nil
}

func (f *fakeSessions) Revoke(_ context.Context, userID uint64, sessionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if row, ok := f.rows[sessionID]; ok && row.userID == userID {
		row.revoked = true
	}
	return nil
}

func (f *fakeSessions) RevokeAll(_ context.Context, userID uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, row := range f.rows {
		if row.userID == userID {
			row.revoked = true
		}
	}
	return nil
}

func newAuthFixture(t *testing.T) (*AuthHandler, *fakeSessions) {
	t.Helper()
	hash, err := auth.HashPassword("Password123", 4)
	if err != nil {
		t.Fatal(err)
	}
	issuer, err := auth.NewIssuer("access-secret", "refresh-secret", 15*time.Minute, 7*24*time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	sessions := newFakeSessions()
	users := &fakeUsers{user: model.User{
		ID: 7, Email: "ana@example.com", PasswordHash: &hash,
		Rol: model.RoleUser, Provider: model.ProviderLocal, IsActive: true,
	}}
	h := NewAuthHandler(config.Config{BcryptCost: 4}, users, sessions, issuer, nil, nil)
	return h, sessions
}

func postJSON(e *echo.Echo, path, body string, cookies ...*http.Cookie) (echo.Context, *httptest.ResponseRecorder) {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	for _, ck := range cookies {
		req.AddCookie(ck)
	}
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func cookieByName(rec *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, ck := range rec.Result().Cookies() {
		if ck.Name == name {
			return ck
		}
	}
	return nil
}

func loginFixture(t *testing.T, e *echo.Echo, h *AuthHandler) (access, refresh *http.Cookie) {
	t.Helper()
	c, rec := postJSON(e, "/v1/auth/login", `{"email":"ana@example.com","password":"Password123"}`)
	if err := h.Login(c); err != nil {
		t.Fatal(err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("login status %d: %s", rec.Code, rec.Body.String())
	}
	access = cookieByName(rec, middleware.AccessCookieName)
	refresh = cookieByName(rec, middleware.RefreshCookieName)
	if access == nil || refresh == nil {
		t.Fatal("login did not set both cookies")
	}
	return access, refresh
}

func TestRefreshRotatesAndRejectsReplay(t *testing.T) {
	h, _ := newAuthFixture(t)
	e := echo.New()
	_, refresh := loginFixture(t, e, h)

	// First refresh succeeds and issues a different refresh token.
	c, rec := postJSON(e, "/v1/auth/refresh", "", refresh)
	if err := h.Refresh(c); err != nil {
		t.Fatal(err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("refresh status %d: %s", rec.Code, rec.Body.String())
	}
	rotated := cookieByName(rec, middleware.RefreshCookieName)
	if rotated == nil || rotated.Value == refresh.Value {
		t.Fatal("refresh did not rotate the refresh token")
	}

	// Replaying the pre-rotation token must fail and clear the cookies.
	c, rec = postJSON(e, "/v1/auth/refresh", "", refresh)
	if err := h.Refresh(c); err != nil {
		t.Fatal(err)
	}
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("replay status %d, want 401", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "session revoked") {
		t.Fatalf("replay body %q", rec.Body.String())
	}
	if ck := cookieByName(rec, middleware.RefreshCookieName); ck == nil || ck.MaxAge != -1 {
		t.Fatal("replay did not clear the refresh cookie")
	}

	// The rotated token is still good.
	c, rec = postJSON(e, "/v1/auth/refresh", "", rotated)
	if err := h.Refresh(c); err != nil {
		t.Fatal(err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("rotated refresh status %d: %s", rec.Code, rec.Body.String())
	}
}

func TestLogoutAllRevokesEveryRefreshToken(t *testing.T) {
	h, _ := newAuthFixture(t)
	e := echo.New()

	// Two live sessions, as from two devices.
	access, refresh1 := loginFixture(t, e, h)
	_, refresh2 := loginFixture(t, e, h)

	c, rec := postJSON(e, "/v1/auth/logout-all", "", access)
	if err := middleware.TokenAuth(h.Issuer)(h.LogoutAll)(c); err != nil {
		t.Fatal(err)
	}
	if rec.Code != http.StatusNoContent {
		t.Fatalf("logout-all status %d: %s", rec.Code, rec.Body.String())
	}

	for i, refresh := range []*http.Cookie{refresh1, refresh2} {
		c, rec := postJSON(e, "/v1/auth/refresh", "", refresh)
		if err := h.Refresh(c); err != nil {
			t.Fatal(err)
		}
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("session %d: refresh after logout-all status %d, want 401", i+1, rec.Code)
		}
		if !strings.Contains(rec.Body.String(), "session revoked") {
			t.Fatalf("session %d: body %q", i+1, rec.Body.String())
		}
	}
}

func TestRefreshIssueFailureKeepsOldSession(t *testing.T) {
	h, sessions := newAuthFixture(t)
	e := echo.New()
	_, refresh := loginFixture(t, e, h)

	// Recording the replacement fails; the presented session must survive.
	sessions.mu.Lock()
	sessions.recordErr = fmt.Errorf("insert failed")
	sessions.mu.Unlock()

	c, rec := postJSON(e, "/v1/auth/refresh", "", refresh)
	if err := h.Refresh(c); err != nil {
		t.Fatal(err)
	}
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("refresh during outage status %d, want 500", rec.Code)
	}

	sessions.mu.Lock()
	sessions.recordErr = nil
	sessions.mu.Unlock()

	// A retry with the same token succeeds.
	c, rec = postJSON(e, "/v1/auth/refresh", "", refresh)
	if err := h.Refresh(c); err != nil {
		t.Fatal(err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("retry status %d: %s", rec.Code, rec.Body.String())
	}
}
