package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/ivanmru/store-inventory-reservation/internal/auth"
	"github.com/ivanmru/store-inventory-reservation/internal/config"
	"github.com/ivanmru/store-inventory-reservation/internal/middleware"
	"github.com/ivanmru/store-inventory-reservation/internal/model"
	"github.com/ivanmru/store-inventory-reservation/internal/queue"
	"github.com/ivanmru/store-inventory-reservation/internal/repository"
	"github.com/ivanmru/store-inventory-reservation/internal/service"
)

// UserStore is the slice of the user repository the auth endpoints need.
type UserStore interface {
	Create(ctx context.Context, email, password, nombre, apellido string, cost int) (uint64, error)
	CreateFromGoogle(ctx context.Context, ident auth.GoogleIdentity) (uint64, error)
	GetByEmail(ctx context.Context, email string) (model.User, error)
	GetByID(ctx context.Context, id uint64) (model.User, error)
}

// SessionStore is the revocation store behind refresh tokens.
type SessionStore interface {
	Record(ctx context.Context, userID uint64, sessionID, tokenHash string, exp time.Time) error
	Validate(ctx context.Context, userID uint64, sessionID, tokenHash string) (bool, error)
	Revoke(ctx context.Context, userID uint64, sessionID string) error
	RevokeAll(ctx context.Context, userID uint64) error
}

// AuthHandler bundles dependencies for the auth endpoints.
type AuthHandler struct {
	Cfg      config.Config
	Users    UserStore
	Sessions SessionStore
	Issuer   *auth.Issuer
	Google   *auth.GoogleVerifier
	Audit    *service.AuditPublisher
}

func NewAuthHandler(cfg config.Config, users UserStore, sessions SessionStore,
	issuer *auth.Issuer, google *auth.GoogleVerifier, audit *service.AuditPublisher) *AuthHandler {
	return &AuthHandler{Cfg: cfg, Users: users, Sessions: sessions, Issuer: issuer, Google: google, Audit: audit}
}

// ----- DTOs -----

type registerReq struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Nombre   string `json:"nombre"`
	Apellido string `json:"apellido"`
}
type loginReq struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}
type googleReq struct {
	Credential string `json:"credential"`
}

type userView struct {
	UserID   uint64 `json:"userId"`
	Email    string `json:"email"`
	Nombre   string `json:"nombre,omitempty"`
	Apellido string `json:"apellido,omitempty"`
	Rol      string `json:"rol"`
}
type authResp struct {
	ExpiresIn int64    `json:"expiresIn"` // access token lifetime in seconds
	TokenType string   `json:"tokenType"`
	User      userView `json:"user"`
}

func viewOf(u model.User) userView {
	return userView{UserID: u.ID, Email: u.Email, Nombre: u.Nombre, Apellido: u.Apellido, Rol: u.Rol}
}

// uniform 401 body for every credential failure; must not reveal which check
// failed.
var errInvalidCredentials = echo.Map{"error": "invalid credentials"}

// ----- session transport (cookies) -----

// issueSession mints an access/refresh pair for the user, records the refresh
// session server-side and sets both cookies. The raw tokens never appear in
// the response body.
func (h *AuthHandler) issueSession(c echo.Context, ctx context.Context, u model.User) error {
	access, _, err := h.Issuer.IssueAccess(u)
	if err != nil {
		return err
	}
	refresh, sessionID, refreshExp, err := h.Issuer.IssueRefresh(u)
	if err != nil {
		return err
	}
	if err := h.Sessions.Record(ctx, u.ID, sessionID, auth.HashToken(refresh), refreshExp); err != nil {
		return err
	}
	h.setCookie(c, middleware.AccessCookieName, access, h.Issuer.AccessTTL())
	h.setCookie(c, middleware.RefreshCookieName, refresh, h.Issuer.RefreshTTL())
	return nil
}

func (h *AuthHandler) setCookie(c echo.Context, name, value string, ttl time.Duration) {
	c.SetCookie(&http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   int(ttl / time.Second),
		HttpOnly: true,
		Secure:   h.Cfg.IsProd(),
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *AuthHandler) clearCookie(c echo.Context, name string) {
	c.SetCookie(&http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.Cfg.IsProd(),
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *AuthHandler) clearAuthCookies(c echo.Context) {
	h.clearCookie(c, middleware.AccessCookieName)
	h.clearCookie(c, middleware.RefreshCookieName)
}

func (h *AuthHandler) authResponse(c echo.Context, status int, u model.User) error {
	return c.JSON(status, authResp{
		ExpiresIn: int64(h.Issuer.AccessTTL() / time.Second),
		TokenType: "Bearer",
		User:      viewOf(u),
	})
}

func (h *AuthHandler) audit(ctx context.Context, u model.User, action string, entityID uint64) {
	if h.Audit == nil {
		return
	}
	// Best effort: audit delivery never fails the request.
	_ = h.Audit.Publish(ctx, queue.AuditEvent{
		ActorID:    u.ID,
		ActorEmail: u.Email,
		Action:     action,
		Entity:     "user",
		EntityID:   entityID,
	})
}

// ----- endpoints -----

// Register creates a local account and opens a session immediately.
func (h *AuthHandler) Register(c echo.Context) error {
	var req registerReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if req.Email == "" || !strings.Contains(req.Email, "@") {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "valid email required"})
	}
	if ok, reasons := auth.ValidatePassword(req.Password); !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "password does not meet policy", "reasons": reasons})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	uid, err := h.Users.Create(ctx, req.Email, req.Password, strings.TrimSpace(req.Nombre), strings.TrimSpace(req.Apellido), h.Cfg.BcryptCost)
	if err != nil {
		if errors.Is(err, repository.ErrEmailExists) {
			return c.JSON(http.StatusConflict, echo.Map{"error": "email already registered"})
		}
		logrus.WithError(err).Error("register: create user failed")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "registration failed"})
	}

	u, err := h.Users.GetByID(ctx, uid)
	if err != nil {
		logrus.WithError(err).Error("register: load user failed")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "registration failed"})
	}
	if err := h.issueSession(c, ctx, u); err != nil {
		logrus.WithError(err).Error("register: issue session failed")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "registration failed"})
	}
	h.audit(ctx, u, queue.ActionRegister, u.ID)
	return h.authResponse(c, http.StatusCreated, u)
}

// Login verifies an email/password pair. The failure path is deliberately
// uniform: unknown email burns a bcrypt comparison so its latency matches a
// wrong password, and both return the same 401 body.
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if req.Email == "" || req.Password == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "email/password required"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	u, err := h.Users.GetByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			auth.BurnPasswordCheck(req.Password)
			return c.JSON(http.StatusUnauthorized, errInvalidCredentials)
		}
		logrus.WithError(err).Error("login: query failed")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "login failed"})
	}
	if !auth.VerifyPassword(u.PasswordHash, req.Password) || !u.IsActive {
		logrus.WithField("user", u.ID).Info("login rejected")
		return c.JSON(http.StatusUnauthorized, errInvalidCredentials)
	}

	if err := h.issueSession(c, ctx, u); err != nil {
		logrus.WithError(err).Error("login: issue session failed")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "login failed"})
	}
	h.audit(ctx, u, queue.ActionLogin, u.ID)
	return h.authResponse(c, http.StatusOK, u)
}

// LoginGoogle exchanges a verified Google ID token for a local session. New
// identities get a provider-only account with the default role.
func (h *AuthHandler) LoginGoogle(c echo.Context) error {
	var req googleReq
	if err := c.Bind(&req); err != nil || strings.TrimSpace(req.Credential) == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "credential required"})
	}

	ident, err := h.Google.Verify(strings.TrimSpace(req.Credential))
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid identity token"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	u, err := h.Users.GetByEmail(ctx, ident.Email)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		uid, err := h.Users.CreateFromGoogle(ctx, *ident)
		if err != nil {
			logrus.WithError(err).Error("google login: create user failed")
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "login failed"})
		}
		if u, err = h.Users.GetByID(ctx, uid); err != nil {
			logrus.WithError(err).Error("google login: load user failed")
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "login failed"})
		}
	case err != nil:
		logrus.WithError(err).Error("google login: query failed")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "login failed"})
	}
	if !u.IsActive {
		return c.JSON(http.StatusUnauthorized, errInvalidCredentials)
	}

	if err := h.issueSession(c, ctx, u); err != nil {
		logrus.WithError(err).Error("google login: issue session failed")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "login failed"})
	}
	h.audit(ctx, u, queue.ActionLoginGoogle, u.ID)
	return h.authResponse(c, http.StatusOK, u)
}

// Refresh consumes the refresh cookie and rotates the session: the presented
// session row is revoked and a new cookie pair is issued. A rotated or
// revoked token therefore fails here with 401 no matter how far from its
// natural expiry it is.
func (h *AuthHandler) Refresh(c echo.Context) error {
	ck, err := c.Cookie(middleware.RefreshCookieName)
	if err != nil || ck.Value == "" {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "refresh token required"})
	}
	raw := ck.Value

	claims, err := h.Issuer.VerifyRefresh(raw)
	if err != nil {
		h.clearAuthCookies(c)
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid refresh token"})
	}
	uid, err := claims.UserID()
	if err != nil {
		h.clearAuthCookies(c)
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid refresh token"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	ok, err := h.Sessions.Validate(ctx, uid, claims.SessionID, auth.HashToken(raw))
	if err != nil {
		logrus.WithError(err).Error("refresh: session lookup failed")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "refresh failed"})
	}
	if !ok {
		logrus.WithFields(logrus.Fields{"user": uid, "sid": claims.SessionID}).Info("refresh rejected: session revoked")
		h.clearAuthCookies(c)
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "session revoked"})
	}

	u, err := h.Users.GetByID(ctx, uid)
	if err != nil || !u.IsActive {
		h.clearAuthCookies(c)
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "session revoked"})
	}

	// Rotation: record the replacement first, then revoke the presented
	// session. A failed issuance leaves the old token usable for a retry
	// instead of stranding the client sessionless.
	if err := h.issueSession(c, ctx, u); err != nil {
		logrus.WithError(err).Error("refresh: issue session failed")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "refresh failed"})
	}
	if err := h.Sessions.Revoke(ctx, uid, claims.SessionID); err != nil {
		logrus.WithError(err).Error("refresh: revoke old session failed")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "refresh failed"})
	}
	return h.authResponse(c, http.StatusOK, u)
}

// Logout revokes the session named by the refresh cookie (when present and
// valid) and clears both cookies. It always succeeds from the client's
// perspective, even when no session existed.
func (h *AuthHandler) Logout(c echo.Context) error {
	if ck, err := c.Cookie(middleware.RefreshCookieName); err == nil && ck.Value != "" {
		if claims, err := h.Issuer.VerifyRefresh(ck.Value); err == nil {
			if uid, err := claims.UserID(); err == nil {
				ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
				defer cancel()
				if err := h.Sessions.Revoke(ctx, uid, claims.SessionID); err != nil {
					logrus.WithError(err).Warn("logout: revoke failed")
				}
			}
		}
	}
	h.clearAuthCookies(c)
	return c.NoContent(http.StatusNoContent)
}

// LogoutAll revokes every session of the authenticated user and clears the
// cookies. Requires a valid access token (TokenAuth runs first).
func (h *AuthHandler) LogoutAll(c echo.Context) error {
	p, ok := middleware.Principal(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	if err := h.Sessions.RevokeAll(ctx, p.ID); err != nil {
		logrus.WithError(err).Error("logout-all failed")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "logout failed"})
	}
	h.clearAuthCookies(c)
	h.audit(ctx, model.User{ID: p.ID, Email: p.Email}, queue.ActionLogoutAll, p.ID)
	return c.NoContent(http.StatusNoContent)
}

// Me is a cheap identity check for already-authenticated sessions.
func (h *AuthHandler) Me(c echo.Context) error {
	p, ok := middleware.Principal(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
	}
	return c.JSON(http.StatusOK, echo.Map{
		"userId": p.ID,
		"email":  p.Email,
		"rol":    p.Rol,
	})
}
