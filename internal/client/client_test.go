package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// fakeBackend simulates the cookie-session API surface: login and refresh
// set an access cookie, a protected endpoint validates it.
type fakeBackend struct {
	mu          sync.Mutex
	valid       string // the access cookie value currently accepted
	refreshes   int32
	failRefresh bool
	refreshLag  time.Duration
	failLogout  bool
}

func (f *fakeBackend) handler() http.Handler {
	writeUser := func(w http.ResponseWriter) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"expiresIn": 900, "tokenType": "Bearer",
			"user": map[string]any{"userId": 7, "email": "ana@example.com", "rol": "user"},
		})
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/auth/login", func(w http.ResponseWriter, r *http.Request) {
		var body struct{ Email, Password string }
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body.Password != "Password123" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":"invalid credentials"}`))
			return
		}
		f.mu.Lock()
		f.valid = "tok-login"
		f.mu.Unlock()
		http.SetCookie(w, &http.Cookie{Name: "accessToken", Value: "tok-login", Path: "/"})
		writeUser(w)
	})
	mux.HandleFunc("/v1/auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&f.refreshes, 1)
		time.Sleep(f.refreshLag)
		if f.failRefresh {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":"session revoked"}`))
			return
		}
		f.mu.Lock()
		f.valid = "tok-refreshed"
		f.mu.Unlock()
		http.SetCookie(w, &http.Cookie{Name: "accessToken", Value: "tok-refreshed", Path: "/"})
		writeUser(w)
	})
	mux.HandleFunc("/v1/auth/logout", func(w http.ResponseWriter, r *http.Request) {
		if f.failLogout {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("/api/data", func(w http.ResponseWriter, r *http.Request) {
		ck, err := r.Cookie("accessToken")
		f.mu.Lock()
		valid := f.valid
		f.mu.Unlock()
		if err != nil || ck.Value != valid {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":"invalid or expired token"}`))
			return
		}
		_, _ = w.Write([]byte(`{"ok":true}`))
	})
	return mux
}

func newTestClient(t *testing.T, backend *fakeBackend, opts ...Option) *Client {
	t.Helper()
	srv := httptest.NewServer(backend.handler())
	t.Cleanup(srv.Close)
	c, err := New(srv.URL, NewMemoryStorage(), opts...)
	require.NoError(t, err)
	return c
}

func TestHydrateStates(t *testing.T) {
	dir := t.TempDir()
	storage := NewFileStorage(filepath.Join(dir, "session.json"))

	c, err := New("http://localhost:0", storage)
	require.NoError(t, err)
	require.Equal(t, StateUnhydrated, c.State())
	require.NoError(t, c.Hydrate())
	require.Equal(t, StateAnonymous, c.State())

	// A persisted view-model hydrates straight to authenticated.
	require.NoError(t, storage.Save(UserView{UserID: 7, Email: "ana@example.com", Rol: "user"}))
	c2, err := New("http://localhost:0", storage)
	require.NoError(t, err)
	require.NoError(t, c2.Hydrate())
	require.Equal(t, StateAuthenticated, c2.State())
	require.Equal(t, "ana@example.com", c2.CurrentUser().Email)
}

func TestLogin(t *testing.T) {
	c := newTestClient(t, &fakeBackend{})
	ctx := context.Background()

	u, err := c.Login(ctx, "ana@example.com", "Password123")
	require.NoError(t, err)
	require.Equal(t, uint64(7), u.UserID)
	require.Equal(t, StateAuthenticated, c.State())

	// Wrong password leaves the client anonymous with the backend's uniform
	// message.
	_, err = c.Login(ctx, "ana@example.com", "wrong")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, http.StatusUnauthorized, apiErr.Status)
	require.Equal(t, "invalid credentials", apiErr.Message)
	require.Equal(t, StateAnonymous, c.State())
}

func TestDoRefreshesOnce(t *testing.T) {
	backend := &fakeBackend{refreshLag: 50 * time.Millisecond}
	c := newTestClient(t, backend)
	ctx := context.Background()

	_, err := c.Login(ctx, "ana@example.com", "Password123")
	require.NoError(t, err)

	// Invalidate the access cookie server-side, as an expiry would.
	backend.mu.Lock()
	backend.valid = "tok-refreshed"
	backend.mu.Unlock()

	var wg sync.WaitGroup
	errs := make([]error, 5)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			var out struct{ OK bool }
			errs[i] = c.Do(ctx, http.MethodGet, "/api/data", nil, &out)
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		require.NoError(t, err, "request %d", i)
	}
	require.Equal(t, int32(1), atomic.LoadInt32(&backend.refreshes),
		"concurrent 401s must share one refresh")
}

func TestDoRefreshFailure(t *testing.T) {
	backend := &fakeBackend{failRefresh: true, refreshLag: 50 * time.Millisecond}
	var logouts int32
	c := newTestClient(t, backend, WithLogoutHandler(func() {
		atomic.AddInt32(&logouts, 1)
	}))
	ctx := context.Background()

	_, err := c.Login(ctx, "ana@example.com", "Password123")
	require.NoError(t, err)
	backend.mu.Lock()
	backend.valid = "revoked"
	backend.mu.Unlock()

	var wg sync.WaitGroup
	errs := make([]error, 5)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = c.Do(ctx, http.MethodGet, "/api/data", nil, nil)
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		require.ErrorIs(t, err, ErrSessionExpired, "request %d", i)
	}
	require.Equal(t, int32(1), atomic.LoadInt32(&logouts),
		"failed refresh must fire exactly one logout")
	require.Equal(t, int32(1), atomic.LoadInt32(&backend.refreshes))
	require.Equal(t, StateAnonymous, c.State())
}

func TestAuthEndpointsExemptFromRetry(t *testing.T) {
	backend := &fakeBackend{failRefresh: true}
	c := newTestClient(t, backend)

	// A 401 from an auth path must surface directly, never loop into
	// refresh.
	err := c.Do(context.Background(), http.MethodPost, "/v1/auth/refresh", nil, nil)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, int32(1), atomic.LoadInt32(&backend.refreshes))
}

func TestLogoutAlwaysClearsLocalState(t *testing.T) {
	backend := &fakeBackend{failLogout: true}
	c := newTestClient(t, backend)
	ctx := context.Background()

	_, err := c.Login(ctx, "ana@example.com", "Password123")
	require.NoError(t, err)

	c.Logout(ctx)
	require.Equal(t, StateAnonymous, c.State())
	require.Nil(t, c.CurrentUser())
}
