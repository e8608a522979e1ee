package model

import "time"

// Reservation status values.
const (
	ReservationPending   = "PENDING"
	ReservationConfirmed = "CONFIRMED"
	ReservationCancelled = "CANCELLED"
	ReservationExpired   = "EXPIRED"
)

// Reservation mirrors the `reservations` table. A pending reservation holds
// reserved stock until it is confirmed, cancelled or swept as expired.
type Reservation struct {
	ID        uint64
	UserID    uint64
	Status    string
	ExpiresAt time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
	Items     []ReservationItem
}

// ReservationItem mirrors the `reservation_items` table. PriceCents is the
// variant price captured at reservation time.
type ReservationItem struct {
	ReservationID uint64
	VariantID     uint64
	Quantity      uint32
	PriceCents    uint32
}

// TotalCents sums the captured item prices.
func (r Reservation) TotalCents() uint64 {
	var total uint64
	for _, it := range r.Items {
		total += uint64(it.PriceCents) * uint64(it.Quantity)
	}
	return total
}
