package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/ivanmru/store-inventory-reservation/internal/authz"
	"github.com/ivanmru/store-inventory-reservation/internal/middleware"
	"github.com/ivanmru/store-inventory-reservation/internal/queue"
	"github.com/ivanmru/store-inventory-reservation/internal/repository"
	"github.com/ivanmru/store-inventory-reservation/internal/service"
)

// RBACAdminHandler exposes role/permission administration and the audit log.
// Every route is gated on minimum role superadmin except the audit view,
// which is permission-gated. RBAC mutations flush the resolver cache so they
// apply immediately.
type RBACAdminHandler struct {
	Roles    *repository.RoleRepo
	Users    *repository.UserRepo
	Audits   *repository.AuditRepo
	Resolver *authz.Resolver
	Audit    *service.AuditPublisher
}

func NewRBACAdminHandler(roles *repository.RoleRepo, users *repository.UserRepo, audits *repository.AuditRepo,
	resolver *authz.Resolver, audit *service.AuditPublisher) *RBACAdminHandler {
	return &RBACAdminHandler{Roles: roles, Users: users, Audits: audits, Resolver: resolver, Audit: audit}
}

type grantReq struct {
	Permission string `json:"permission"`
}

type roleChangeReq struct {
	Rol string `json:"rol"`
}

// ListRoles returns every role ordered by privilege level.
func (h *RBACAdminHandler) ListRoles(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	roles, err := h.Roles.ListRoles(ctx)
	if err != nil {
		logrus.WithError(err).Error("rbac: list roles failed")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "list failed"})
	}
	out := make([]echo.Map, 0, len(roles))
	for _, r := range roles {
		out = append(out, echo.Map{"code": r.Code, "name": r.Name, "level": r.Level, "description": r.Description})
	}
	return c.JSON(http.StatusOK, out)
}

// ListPermissions returns the full permission catalog.
func (h *RBACAdminHandler) ListPermissions(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	perms, err := h.Roles.ListPermissions(ctx)
	if err != nil {
		logrus.WithError(err).Error("rbac: list permissions failed")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "list failed"})
	}
	out := make([]echo.Map, 0, len(perms))
	for _, p := range perms {
		out = append(out, echo.Map{"code": p.Code, "name": p.Name, "module": p.Module, "description": p.Description})
	}
	return c.JSON(http.StatusOK, out)
}

// RolePermissions returns the permission codes currently granted to a role.
func (h *RBACAdminHandler) RolePermissions(c echo.Context) error {
	code := c.Param("code")

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	if _, err := h.Roles.GetRoleByCode(ctx, code); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "role not found"})
		}
		logrus.WithError(err).Error("rbac: load role failed")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "lookup failed"})
	}
	codes, err := h.Roles.GetPermissionCodes(ctx, code)
	if err != nil {
		logrus.WithError(err).Error("rbac: load permissions failed")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "lookup failed"})
	}
	if codes == nil {
		codes = []string{}
	}
	return c.JSON(http.StatusOK, echo.Map{"role": code, "permissions": codes})
}

// GrantPermission adds a permission to a role.
func (h *RBACAdminHandler) GrantPermission(c echo.Context) error {
	p, ok := middleware.Principal(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
	}
	code := c.Param("code")
	var req grantReq
	if err := c.Bind(&req); err != nil || strings.TrimSpace(req.Permission) == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "permission required"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	if err := h.Roles.Grant(ctx, code, strings.TrimSpace(req.Permission), p.ID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "role or permission not found"})
		}
		logrus.WithError(err).Error("rbac: grant failed")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "grant failed"})
	}
	h.Resolver.Flush()
	h.publishAudit(c, queue.ActionPermissionGrant, "role", echo.Map{"role": code, "permission": req.Permission})
	return c.NoContent(http.StatusNoContent)
}

// RevokePermission removes a permission from a role.
func (h *RBACAdminHandler) RevokePermission(c echo.Context) error {
	code := c.Param("code")
	perm := c.Param("perm")

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	if err := h.Roles.Revoke(ctx, code, perm); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "role or permission not found"})
		}
		logrus.WithError(err).Error("rbac: revoke failed")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "revoke failed"})
	}
	h.Resolver.Flush()
	h.publishAudit(c, queue.ActionPermissionRevoke, "role", echo.Map{"role": code, "permission": perm})
	return c.NoContent(http.StatusNoContent)
}

// ChangeUserRole assigns a user a new role. The target keeps their old role
// inside already-issued access tokens until those expire; permission-gated
// routes pick up the change within one resolver-cache TTL.
func (h *RBACAdminHandler) ChangeUserRole(c echo.Context) error {
	userID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid user id"})
	}
	var req roleChangeReq
	if err := c.Bind(&req); err != nil || strings.TrimSpace(req.Rol) == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "rol required"})
	}
	roleCode := strings.TrimSpace(req.Rol)

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	if _, err := h.Roles.GetRoleByCode(ctx, roleCode); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "unknown role"})
		}
		logrus.WithError(err).Error("rbac: load role failed")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "role change failed"})
	}
	if _, err := h.Users.GetByID(ctx, userID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "user not found"})
		}
		logrus.WithError(err).Error("rbac: load user failed")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "role change failed"})
	}
	if err := h.Users.UpdateRole(ctx, userID, roleCode); err != nil {
		logrus.WithError(err).Error("rbac: update role failed")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "role change failed"})
	}
	h.publishAudit(c, queue.ActionRoleChange, "user", echo.Map{"user_id": userID, "rol": roleCode})
	return c.NoContent(http.StatusNoContent)
}

// ListAudit returns audit entries newest first. Requires auditoria.ver.
func (h *RBACAdminHandler) ListAudit(c echo.Context) error {
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	offset, _ := strconv.Atoi(c.QueryParam("offset"))

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	entries, err := h.Audits.List(ctx, limit, offset)
	if err != nil {
		logrus.WithError(err).Error("audit: list failed")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "list failed"})
	}
	out := make([]echo.Map, 0, len(entries))
	for _, e := range entries {
		out = append(out, echo.Map{
			"id": e.ID, "actorId": e.ActorID, "actorEmail": e.ActorEmail,
			"action": e.Action, "entity": e.Entity, "entityId": e.EntityID,
			"detail": e.Detail, "createdAt": e.CreatedAt,
		})
	}
	return c.JSON(http.StatusOK, out)
}

func (h *RBACAdminHandler) publishAudit(c echo.Context, action, entity string, detail any) {
	p, ok := middleware.Principal(c)
	if !ok || h.Audit == nil {
		return
	}
	body, _ := json.Marshal(detail)
	_ = h.Audit.Publish(c.Request().Context(), queue.AuditEvent{
		ActorID:    p.ID,
		ActorEmail: p.Email,
		Action:     action,
		Entity:     entity,
		Detail:     string(body),
	})
}
