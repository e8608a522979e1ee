package model

import "time"

// Product mirrors the `products` table. Products are soft-deleted so that
// reservation history keeps pointing at a real row.
type Product struct {
	ID          uint64
	SKU         string
	Name        string
	Description string
	IsActive    bool
	DeletedAt   *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Variant mirrors the `product_variants` table. Stock is tracked as two
// counters: StockTotal is what physically exists, StockReserved is the part
// currently held by pending reservations. Available stock is the difference;
// the repository enforces 0 <= StockReserved <= StockTotal.
type Variant struct {
	ID            uint64
	ProductID     uint64
	SKU           string
	Name          string
	PriceCents    uint32
	StockTotal    uint32
	StockReserved uint32
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Available returns the stock a new reservation may still claim.
func (v Variant) Available() uint32 {
	if v.StockReserved > v.StockTotal {
		return 0
	}
	return v.StockTotal - v.StockReserved
}
