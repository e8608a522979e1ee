package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/ivanmru/store-inventory-reservation/internal/model"
	"github.com/ivanmru/store-inventory-reservation/internal/repository"
)

// CatalogHandler serves the public, unauthenticated product browse routes.
// Responses expose available stock, never the raw reserved counter.
type CatalogHandler struct {
	Products *repository.ProductRepo
}

func NewCatalogHandler(products *repository.ProductRepo) *CatalogHandler {
	return &CatalogHandler{Products: products}
}

type variantView struct {
	ID         uint64 `json:"id"`
	SKU        string `json:"sku"`
	Name       string `json:"name"`
	PriceCents uint32 `json:"priceCents"`
	Available  uint32 `json:"available"`
}

type productView struct {
	ID          uint64        `json:"id"`
	SKU         string        `json:"sku"`
	Name        string        `json:"name"`
	Description string        `json:"description,omitempty"`
	Variants    []variantView `json:"variants"`
}

func productViewOf(p model.Product, variants []model.Variant) productView {
	pv := productView{ID: p.ID, SKU: p.SKU, Name: p.Name, Description: p.Description, Variants: []variantView{}}
	for _, v := range variants {
		pv.Variants = append(pv.Variants, variantView{
			ID: v.ID, SKU: v.SKU, Name: v.Name, PriceCents: v.PriceCents, Available: v.Available(),
		})
	}
	return pv
}

// ListProducts returns all active products with variants and availability.
func (h *CatalogHandler) ListProducts(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	products, err := h.Products.ListActive(ctx)
	if err != nil {
		logrus.WithError(err).Error("catalog: list products failed")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "catalog unavailable"})
	}
	out := make([]productView, 0, len(products))
	for _, p := range products {
		variants, err := h.Products.VariantsByProduct(ctx, p.ID)
		if err != nil {
			logrus.WithError(err).Error("catalog: list variants failed")
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "catalog unavailable"})
		}
		out = append(out, productViewOf(p, variants))
	}
	return c.JSON(http.StatusOK, out)
}

// GetProduct returns one active product by id.
func (h *CatalogHandler) GetProduct(c echo.Context) error {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid product id"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	p, err := h.Products.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "product not found"})
		}
		logrus.WithError(err).Error("catalog: get product failed")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "catalog unavailable"})
	}
	variants, err := h.Products.VariantsByProduct(ctx, p.ID)
	if err != nil {
		logrus.WithError(err).Error("catalog: list variants failed")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "catalog unavailable"})
	}
	return c.JSON(http.StatusOK, productViewOf(p, variants))
}
