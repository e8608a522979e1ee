// Package client is the Go consumer of the API. It owns the session
// life-cycle on the caller's side: cookies in a jar, the cached user
// view-model, and transparent access-token refresh with deduplication when
// many concurrent calls hit a 401 at once.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// State of the coordinator. Callers should not treat the user as logged out
// until hydration has completed, otherwise a restart flashes an anonymous
// view before the persisted session is read.
type State int

const (
	StateUnhydrated State = iota
	StateAnonymous
	StateAuthenticated
)

// ErrSessionExpired is returned for requests whose retry was abandoned
// because the refresh call failed. The logout handler has already fired by
// the time a caller sees it.
var ErrSessionExpired = errors.New("client: session expired")

// APIError carries a non-2xx backend response.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api: %d %s", e.Status, e.Message)
}

// Client coordinates authentication against the backend. Safe for concurrent
// use.
type Client struct {
	baseURL  string
	http     *http.Client
	storage  Storage
	onLogout func()

	mu    sync.Mutex
	state State
	user  *UserView

	// refresh collapses concurrent 401-triggered refresh attempts into a
	// single backend call; every waiter shares its outcome.
	refresh singleflight.Group
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient substitutes the transport. A cookie jar is installed if the
// given client has none.
func WithHTTPClient(h *http.Client) Option { return func(c *Client) { c.http = h } }

// WithLogoutHandler registers a callback fired exactly once per failed
// refresh, no matter how many requests were waiting on it.
func WithLogoutHandler(fn func()) Option { return func(c *Client) { c.onLogout = fn } }

func New(baseURL string, storage Storage, opts ...Option) (*Client, error) {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		storage: storage,
		state:   StateUnhydrated,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.http == nil {
		c.http = &http.Client{Timeout: 15 * time.Second}
	}
	if c.http.Jar == nil {
		jar, err := cookiejar.New(nil)
		if err != nil {
			return nil, err
		}
		c.http.Jar = jar
	}
	if c.storage == nil {
		c.storage = NewMemoryStorage()
	}
	return c, nil
}

// Hydrate loads the persisted view-model and moves the client out of
// StateUnhydrated. It does not touch the network; the cached identity may be
// stale until the next call round-trips.
func (c *Client) Hydrate() error {
	u, err := c.storage.Load()
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if u != nil {
		c.user = u
		c.state = StateAuthenticated
	} else {
		c.state = StateAnonymous
	}
	return nil
}

func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// CurrentUser returns the cached view-model, nil when anonymous.
func (c *Client) CurrentUser() *UserView {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.user == nil {
		return nil
	}
	u := *c.user
	return &u
}

type authResponse struct {
	ExpiresIn int64    `json:"expiresIn"`
	TokenType string   `json:"tokenType"`
	User      UserView `json:"user"`
}

// Login authenticates with email and password. On failure the client is left
// anonymous and the backend's uniform credential error is surfaced.
func (c *Client) Login(ctx context.Context, email, password string) (*UserView, error) {
	return c.authenticate(ctx, "/v1/auth/login", map[string]string{
		"email": email, "password": password,
	})
}

// LoginWithGoogle exchanges a Google ID token for a session.
func (c *Client) LoginWithGoogle(ctx context.Context, credential string) (*UserView, error) {
	return c.authenticate(ctx, "/v1/auth/google", map[string]string{
		"credential": credential,
	})
}

// Register creates an account and signs it in.
func (c *Client) Register(ctx context.Context, email, password, nombre, apellido string) (*UserView, error) {
	return c.authenticate(ctx, "/v1/auth/register", map[string]string{
		"email": email, "password": password, "nombre": nombre, "apellido": apellido,
	})
}

func (c *Client) authenticate(ctx context.Context, path string, body any) (*UserView, error) {
	var resp authResponse
	if err := c.call(ctx, http.MethodPost, path, body, &resp); err != nil {
		c.clearLocal()
		return nil, err
	}
	c.mu.Lock()
	c.user = &resp.User
	c.state = StateAuthenticated
	c.mu.Unlock()
	if err := c.storage.Save(resp.User); err != nil {
		return &resp.User, err
	}
	return &resp.User, nil
}

// Logout ends the current session. Network failures are swallowed; local
// state always clears.
func (c *Client) Logout(ctx context.Context) {
	_ = c.call(ctx, http.MethodPost, "/v1/auth/logout", nil, nil)
	c.clearLocal()
}

// LogoutAll revokes every session of the user, then clears local state.
func (c *Client) LogoutAll(ctx context.Context) {
	_ = c.call(ctx, http.MethodPost, "/v1/auth/logout-all", nil, nil)
	c.clearLocal()
}

// Me fetches the live identity behind the session cookie.
func (c *Client) Me(ctx context.Context) (*UserView, error) {
	var u UserView
	if err := c.call(ctx, http.MethodGet, "/v1/auth/me", nil, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// Do sends an authenticated JSON request and decodes a 2xx response into out
// (out may be nil). A 401 outside the auth endpoints triggers one shared
// refresh and at most one replay of the request; a second 401 after replay is
// final.
func (c *Client) Do(ctx context.Context, method, path string, body, out any) error {
	err := c.call(ctx, method, path, body, out)
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusUnauthorized || isAuthPath(path) {
		return err
	}
	if err := c.refreshSession(); err != nil {
		return ErrSessionExpired
	}
	return c.call(ctx, method, path, body, out)
}

// isAuthPath exempts the authentication endpoints from the refresh/retry
// path; a 401 from /v1/auth/refresh must never trigger another refresh.
func isAuthPath(path string) bool {
	return strings.HasPrefix(path, "/v1/auth/")
}

// refreshSession funnels every concurrent caller into one refresh round
// trip. On failure it clears local state and fires the logout handler once.
func (c *Client) refreshSession() error {
	_, err, _ := c.refresh.Do("refresh", func() (any, error) {
		// Detached context: the first waiter cancelling must not fail the
		// refresh for everyone queued behind it.
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		var resp authResponse
		if err := c.call(ctx, http.MethodPost, "/v1/auth/refresh", nil, &resp); err != nil {
			c.clearLocal()
			if c.onLogout != nil {
				c.onLogout()
			}
			return nil, err
		}
		c.mu.Lock()
		c.user = &resp.User
		c.state = StateAuthenticated
		c.mu.Unlock()
		_ = c.storage.Save(resp.User)
		return nil, nil
	})
	return err
}

func (c *Client) clearLocal() {
	c.mu.Lock()
	c.user = nil
	c.state = StateAnonymous
	c.mu.Unlock()
	_ = c.storage.Clear()
}

// call performs one round trip with JSON encoding on both sides. Non-2xx
// responses become *APIError with the backend's "error" field as message.
func (c *Client) call(ctx context.Context, method, path string, body, out any) error {
	var payload io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		payload = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, payload)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := struct {
			Error string `json:"error"`
		}{}
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		_ = json.Unmarshal(raw, &msg)
		if msg.Error == "" {
			msg.Error = http.StatusText(resp.StatusCode)
		}
		return &APIError{Status: resp.StatusCode, Message: msg.Error}
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
