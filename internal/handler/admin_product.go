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

	"github.com/ivanmru/store-inventory-reservation/internal/middleware"
	"github.com/ivanmru/store-inventory-reservation/internal/model"
	"github.com/ivanmru/store-inventory-reservation/internal/queue"
	"github.com/ivanmru/store-inventory-reservation/internal/repository"
	"github.com/ivanmru/store-inventory-reservation/internal/service"
)

// AdminProductHandler implements the permission-gated catalog management
// endpoints. Every successful mutation publishes an audit event.
type AdminProductHandler struct {
	Products *repository.ProductRepo
	Audit    *service.AuditPublisher
}

func NewAdminProductHandler(products *repository.ProductRepo, audit *service.AuditPublisher) *AdminProductHandler {
	return &AdminProductHandler{Products: products, Audit: audit}
}

type productReq struct {
	SKU         string `json:"sku"`
	Name        string `json:"name"`
	Description string `json:"description"`
	IsActive    *bool  `json:"isActive"`
}

type variantReq struct {
	SKU        string `json:"sku"`
	Name       string `json:"name"`
	PriceCents uint32 `json:"priceCents"`
	StockTotal uint32 `json:"stockTotal"`
}

type stockReq struct {
	StockTotal uint32 `json:"stockTotal"`
}

func (h *AdminProductHandler) publishAudit(c echo.Context, action, entity string, entityID uint64, detail any) {
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
		EntityID:   entityID,
		Detail:     string(body),
	})
}

// CreateProduct inserts a product. Requires productos.crear.
func (h *AdminProductHandler) CreateProduct(c echo.Context) error {
	var req productReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	req.SKU = strings.TrimSpace(req.SKU)
	req.Name = strings.TrimSpace(req.Name)
	if req.SKU == "" || req.Name == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "sku and name required"})
	}
	active := true
	if req.IsActive != nil {
		active = *req.IsActive
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	id, err := h.Products.Create(ctx, model.Product{SKU: req.SKU, Name: req.Name, Description: req.Description, IsActive: active})
	if err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return c.JSON(http.StatusConflict, echo.Map{"error": "sku already exists"})
		}
		logrus.WithError(err).Error("admin: create product failed")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "create failed"})
	}
	h.publishAudit(c, queue.ActionProductCreate, "product", id, req)
	return c.JSON(http.StatusCreated, echo.Map{"id": id})
}

// UpdateProduct rewrites a product's mutable fields. Requires productos.editar.
func (h *AdminProductHandler) UpdateProduct(c echo.Context) error {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid product id"})
	}
	var req productReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	if strings.TrimSpace(req.Name) == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "name required"})
	}
	active := true
	if req.IsActive != nil {
		active = *req.IsActive
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	err = h.Products.Update(ctx, model.Product{ID: id, Name: strings.TrimSpace(req.Name), Description: req.Description, IsActive: active})
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "product not found"})
		}
		logrus.WithError(err).Error("admin: update product failed")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "update failed"})
	}
	h.publishAudit(c, queue.ActionProductUpdate, "product", id, req)
	return c.NoContent(http.StatusNoContent)
}

// DeleteProduct soft-deletes a product. Requires productos.eliminar.
func (h *AdminProductHandler) DeleteProduct(c echo.Context) error {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid product id"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	if err := h.Products.SoftDelete(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "product not found"})
		}
		logrus.WithError(err).Error("admin: delete product failed")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "delete failed"})
	}
	h.publishAudit(c, queue.ActionProductDelete, "product", id, nil)
	return c.NoContent(http.StatusNoContent)
}

// CreateVariant adds a variant to a product. Requires productos.editar.
func (h *AdminProductHandler) CreateVariant(c echo.Context) error {
	productID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid product id"})
	}
	var req variantReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	req.SKU = strings.TrimSpace(req.SKU)
	if req.SKU == "" || strings.TrimSpace(req.Name) == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "sku and name required"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	if _, err := h.Products.GetByID(ctx, productID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "product not found"})
		}
		logrus.WithError(err).Error("admin: load product failed")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "create failed"})
	}
	id, err := h.Products.CreateVariant(ctx, model.Variant{
		ProductID: productID, SKU: req.SKU, Name: strings.TrimSpace(req.Name),
		PriceCents: req.PriceCents, StockTotal: req.StockTotal,
	})
	if err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return c.JSON(http.StatusConflict, echo.Map{"error": "sku already exists"})
		}
		logrus.WithError(err).Error("admin: create variant failed")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "create failed"})
	}
	h.publishAudit(c, queue.ActionProductUpdate, "variant", id, req)
	return c.JSON(http.StatusCreated, echo.Map{"id": id})
}

// AdjustStock sets a variant's absolute stock total. Requires
// inventario.ajustar. The new total may not undercut currently reserved
// units; that returns 409.
func (h *AdminProductHandler) AdjustStock(c echo.Context) error {
	variantID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid variant id"})
	}
	var req stockReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	if err := h.Products.SetStockTotal(ctx, variantID, req.StockTotal); err != nil {
		switch {
		case errors.Is(err, repository.ErrNotFound):
			return c.JSON(http.StatusNotFound, echo.Map{"error": "variant not found"})
		case errors.Is(err, repository.ErrConflict):
			return c.JSON(http.StatusConflict, echo.Map{"error": "reserved stock exceeds new total"})
		}
		logrus.WithError(err).Error("admin: adjust stock failed")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "adjust failed"})
	}
	h.publishAudit(c, queue.ActionStockAdjust, "variant", variantID, req)
	return c.NoContent(http.StatusNoContent)
}
