// Package router wires handlers and middleware onto the Echo instance. It
// owns the URL surface of the service; handlers never register themselves.
package router

import (
	"github.com/labstack/echo/v4"

	"github.com/ivanmru/store-inventory-reservation/internal/authz"
	"github.com/ivanmru/store-inventory-reservation/internal/handler"
	"github.com/ivanmru/store-inventory-reservation/internal/middleware"
)

// Deps bundles everything the route table needs. RateLimit and Cache may be
// nil when Redis is unavailable; the affected groups then run unprotected.
type Deps struct {
	Auth      *handler.AuthHandler
	Catalog   *handler.CatalogHandler
	Products  *handler.AdminProductHandler
	Reserve   *handler.ReservationHandler
	RBAC      *handler.RBACAdminHandler
	TokenAuth echo.MiddlewareFunc
	Policy    authz.Policy
	RateLimit echo.MiddlewareFunc
	Cache     echo.MiddlewareFunc
}

// Register installs every route on e.
func Register(e *echo.Echo, d Deps) {
	e.GET("/healthz", handler.Health)

	// Credential-bearing endpoints are rate limited per client IP.
	pub := e.Group("/v1/auth")
	if d.RateLimit != nil {
		pub.Use(d.RateLimit)
	}
	pub.POST("/register", d.Auth.Register)
	pub.POST("/login", d.Auth.Login)
	pub.POST("/google", d.Auth.LoginGoogle)
	pub.POST("/refresh", d.Auth.Refresh)
	pub.POST("/logout", d.Auth.Logout)

	priv := e.Group("/v1/auth", d.TokenAuth)
	priv.POST("/logout-all", d.Auth.LogoutAll)
	priv.GET("/me", d.Auth.Me)

	// Guest-browsable catalog, served through the response cache when Redis
	// is up.
	catalog := e.Group("/v1")
	if d.Cache != nil {
		catalog.Use(d.Cache)
	}
	catalog.GET("/products", d.Catalog.ListProducts)
	catalog.GET("/products/:id", d.Catalog.GetProduct)

	res := e.Group("/v1/reservations", d.TokenAuth)
	res.POST("", d.Reserve.Create)
	res.GET("", d.Reserve.List)
	res.POST("/:id/cancel", d.Reserve.Cancel)

	admin := e.Group("/v1/admin", d.TokenAuth)
	admin.POST("/reservations/:id/confirm", d.Reserve.Confirm,
		middleware.RequirePermission(d.Policy, "reservas.gestionar"))
	admin.POST("/products", d.Products.CreateProduct,
		middleware.RequirePermission(d.Policy, "productos.crear"))
	admin.PUT("/products/:id", d.Products.UpdateProduct,
		middleware.RequirePermission(d.Policy, "productos.editar"))
	admin.DELETE("/products/:id", d.Products.DeleteProduct,
		middleware.RequirePermission(d.Policy, "productos.eliminar"))
	admin.POST("/products/:id/variants", d.Products.CreateVariant,
		middleware.RequirePermission(d.Policy, "productos.editar"))
	admin.POST("/variants/:id/stock", d.Products.AdjustStock,
		middleware.RequirePermission(d.Policy, "inventario.ajustar"))

	admin.GET("/audit", d.RBAC.ListAudit,
		middleware.RequirePermission(d.Policy, "auditoria.ver"))

	// Only superadmins may reshape the role model itself.
	rbac := e.Group("/v1/admin", d.TokenAuth,
		middleware.RequireMinimumRole(d.Policy, "superadmin"))
	rbac.GET("/roles", d.RBAC.ListRoles)
	rbac.GET("/permissions", d.RBAC.ListPermissions)
	rbac.GET("/roles/:code/permissions", d.RBAC.RolePermissions)
	rbac.POST("/roles/:code/permissions", d.RBAC.GrantPermission)
	rbac.DELETE("/roles/:code/permissions/:perm", d.RBAC.RevokePermission)
	rbac.PUT("/users/:id/role", d.RBAC.ChangeUserRole)
}
