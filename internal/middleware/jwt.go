package middleware // reusable HTTP middleware shared by the route groups

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/ivanmru/store-inventory-reservation/internal/auth"
	"github.com/ivanmru/store-inventory-reservation/internal/authz"
)

// principalKey is the context key the access-token middleware stores the
// authenticated principal under.
const principalKey = "principal"

// AccessCookieName and RefreshCookieName are the cookie names used by the
// session transport. Tokens travel in httpOnly cookies so page script can
// never read them; the Authorization header is a supported fallback for
// non-browser clients.
const (
	AccessCookieName  = "accessToken"
	RefreshCookieName = "refreshToken"
)

// Principal returns the authenticated principal stored by TokenAuth. The
// second return is false on routes that did not run the middleware.
func Principal(c echo.Context) (authz.Principal, bool) {
	p, ok := c.Get(principalKey).(authz.Principal)
	return p, ok
}

// TokenAuth returns middleware that authenticates a request from the access
// token cookie, falling back to an "Authorization: Bearer" header. Tokens are
// never read from the query string or body. On success a typed Principal is
// stored in the context for handlers and downstream middleware; on failure
// the request ends with 401 and a generic message.
func TokenAuth(issuer *auth.Issuer) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			raw := ""
			if ck, err := c.Cookie(AccessCookieName); err == nil && ck.Value != "" {
				raw = ck.Value
			} else if h := c.Request().Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
				raw = strings.TrimPrefix(h, "Bearer ")
			}
			if raw == "" {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
			}

			claims, err := issuer.VerifyAccess(raw)
			if err != nil {
				// Expired and invalid collapse to the same client response;
				// the client coordinator reacts to the 401, not the reason.
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid or expired token"})
			}
			uid, err := claims.UserID()
			if err != nil {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid or expired token"})
			}

			c.Set(principalKey, authz.Principal{ID: uid, Email: claims.Email, Rol: claims.Rol})
			return next(c)
		}
	}
}
