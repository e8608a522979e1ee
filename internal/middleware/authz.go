package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/ivanmru/store-inventory-reservation/internal/authz"
)

// RequireMinimumRole returns middleware that rejects principals whose role
// sits below roleCode in the privilege order. The role comes from the access
// token, so a demotion takes effect only once the token expires; that window
// is deliberate (see the policy docs). Assumes TokenAuth ran first.
func RequireMinimumRole(policy authz.Policy, roleCode string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			p, ok := Principal(c)
			if !ok {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
			}
			if !policy.MinimumRole(c.Request().Context(), p, roleCode) {
				logrus.WithFields(logrus.Fields{"user": p.ID, "rol": p.Rol, "required": roleCode}).
					Info("authorization denied: minimum role")
				return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
			}
			return next(c)
		}
	}
}

// RequirePermission returns middleware that rejects principals whose role
// does not hold any of the given permission codes. The permission set is
// re-fetched through the resolver (short cache TTL) rather than trusted from
// token claims, so revocations apply before the access token expires.
func RequirePermission(policy authz.Policy, codes ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			p, ok := Principal(c)
			if !ok {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
			}
			if !policy.AnyPermission(c.Request().Context(), p, codes...) {
				logrus.WithFields(logrus.Fields{"user": p.ID, "rol": p.Rol, "permissions": codes}).
					Info("authorization denied: permission")
				return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
			}
			return next(c)
		}
	}
}
