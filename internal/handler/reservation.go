package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/ivanmru/store-inventory-reservation/internal/authz"
	"github.com/ivanmru/store-inventory-reservation/internal/middleware"
	"github.com/ivanmru/store-inventory-reservation/internal/model"
	"github.com/ivanmru/store-inventory-reservation/internal/queue"
	"github.com/ivanmru/store-inventory-reservation/internal/repository"
	"github.com/ivanmru/store-inventory-reservation/internal/service"
)

// ReservationHandler implements customer reservation endpoints plus the
// admin confirm operation.
type ReservationHandler struct {
	Reservations *repository.ReservationRepo
	Policy       authz.Policy
	Audit        *service.AuditPublisher
	TTL          time.Duration
}

func NewReservationHandler(reservations *repository.ReservationRepo, policy authz.Policy,
	audit *service.AuditPublisher, ttl time.Duration) *ReservationHandler {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &ReservationHandler{Reservations: reservations, Policy: policy, Audit: audit, TTL: ttl}
}

type reservationItemReq struct {
	VariantID uint64 `json:"variantId"`
	Quantity  uint32 `json:"quantity"`
}

type reservationReq struct {
	Items []reservationItemReq `json:"items"`
}

type reservationItemView struct {
	VariantID  uint64 `json:"variantId"`
	Quantity   uint32 `json:"quantity"`
	PriceCents uint32 `json:"priceCents"`
}

type reservationView struct {
	ID         uint64                `json:"id"`
	Status     string                `json:"status"`
	ExpiresAt  time.Time             `json:"expiresAt"`
	TotalCents uint64                `json:"totalCents"`
	Items      []reservationItemView `json:"items"`
}

func reservationViewOf(r model.Reservation) reservationView {
	view := reservationView{
		ID: r.ID, Status: r.Status, ExpiresAt: r.ExpiresAt,
		TotalCents: r.TotalCents(), Items: []reservationItemView{},
	}
	for _, it := range r.Items {
		view.Items = append(view.Items, reservationItemView{
			VariantID: it.VariantID, Quantity: it.Quantity, PriceCents: it.PriceCents,
		})
	}
	return view
}

// Create reserves stock for the requested items. 409 when any variant lacks
// availability; the whole request is atomic.
func (h *ReservationHandler) Create(c echo.Context) error {
	p, ok := middleware.Principal(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
	}
	var req reservationReq
	if err := c.Bind(&req); err != nil || len(req.Items) == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "items required"})
	}
	items := make([]repository.ItemRequest, 0, len(req.Items))
	for _, it := range req.Items {
		if it.Quantity == 0 {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "quantity must be positive"})
		}
		items = append(items, repository.ItemRequest{VariantID: it.VariantID, Quantity: it.Quantity})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	res, err := h.Reservations.Create(ctx, p.ID, items, time.Now().UTC().Add(h.TTL))
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrNotFound):
			return c.JSON(http.StatusNotFound, echo.Map{"error": "variant not found"})
		case errors.Is(err, repository.ErrInsufficientStock):
			return c.JSON(http.StatusConflict, echo.Map{"error": "insufficient stock"})
		case errors.Is(err, repository.ErrConflict):
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "items required"})
		}
		logrus.WithError(err).Error("reservation: create failed")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "reservation failed"})
	}
	return c.JSON(http.StatusCreated, reservationViewOf(res))
}

// List returns the caller's reservations, newest first.
func (h *ReservationHandler) List(c echo.Context) error {
	p, ok := middleware.Principal(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	list, err := h.Reservations.ListByUser(ctx, p.ID)
	if err != nil {
		logrus.WithError(err).Error("reservation: list failed")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "list failed"})
	}
	out := make([]reservationView, 0, len(list))
	for _, r := range list {
		out = append(out, reservationViewOf(r))
	}
	return c.JSON(http.StatusOK, out)
}

// Cancel releases a pending reservation. The owner may always cancel their
// own; staff with reservas.gestionar may cancel anyone's.
func (h *ReservationHandler) Cancel(c echo.Context) error {
	p, ok := middleware.Principal(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
	}
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid reservation id"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	res, err := h.Reservations.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "reservation not found"})
		}
		logrus.WithError(err).Error("reservation: load failed")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "cancel failed"})
	}
	if res.UserID != p.ID && !h.Policy.Permission(ctx, p, "reservas.gestionar") {
		return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
	}

	if err := h.Reservations.Cancel(ctx, id); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return c.JSON(http.StatusConflict, echo.Map{"error": "reservation is not pending"})
		}
		logrus.WithError(err).Error("reservation: cancel failed")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "cancel failed"})
	}
	h.publishAudit(c, queue.ActionReservationCancel, id)
	return c.NoContent(http.StatusNoContent)
}

// Confirm converts a pending reservation into a confirmed sale. Requires
// reservas.gestionar (enforced by route middleware).
func (h *ReservationHandler) Confirm(c echo.Context) error {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid reservation id"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	if err := h.Reservations.Confirm(ctx, id); err != nil {
		switch {
		case errors.Is(err, repository.ErrNotFound):
			return c.JSON(http.StatusNotFound, echo.Map{"error": "reservation not found"})
		case errors.Is(err, repository.ErrConflict):
			return c.JSON(http.StatusConflict, echo.Map{"error": "reservation is not pending"})
		}
		logrus.WithError(err).Error("reservation: confirm failed")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "confirm failed"})
	}
	h.publishAudit(c, queue.ActionReservationConfirm, id)
	return c.NoContent(http.StatusNoContent)
}

func (h *ReservationHandler) publishAudit(c echo.Context, action string, reservationID uint64) {
	p, ok := middleware.Principal(c)
	if !ok || h.Audit == nil {
		return
	}
	detail, _ := json.Marshal(echo.Map{"reservation_id": reservationID})
	_ = h.Audit.Publish(c.Request().Context(), queue.AuditEvent{
		ActorID:    p.ID,
		ActorEmail: p.Email,
		Action:     action,
		Entity:     "reservation",
		EntityID:   reservationID,
		Detail:     string(detail),
	})
}
