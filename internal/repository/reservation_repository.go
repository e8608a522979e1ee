package repository

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"time"

	"github.com/ivanmru/store-inventory-reservation/internal/model"
)

// ReservationRepo manages reservations and their stock side effects. Every
// state transition that touches stock runs inside one transaction with the
// affected variant rows locked (SELECT ... FOR UPDATE), so the invariant
// 0 <= stock_reserved <= stock_total holds under concurrent traffic.
type ReservationRepo struct{ DB *sql.DB }

func NewReservationRepo(db *sql.DB) *ReservationRepo { return &ReservationRepo{DB: db} }

// ItemRequest is one line of a reservation request.
type ItemRequest struct {
	VariantID uint64
	Quantity  uint32
}

// Create reserves stock for the requested items and inserts a PENDING
// reservation expiring at exp. If any variant lacks available stock the
// whole transaction rolls back and ErrInsufficientStock is returned.
func (r *ReservationRepo) Create(ctx context.Context, userID uint64, items []ItemRequest, exp time.Time) (model.Reservation, error) {
	var res model.Reservation
	if len(items) == 0 {
		return res, ErrConflict
	}

	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return res, err
	}
	defer func() { _ = tx.Rollback() }()

	// Lock variants in id order to keep concurrent reservations deadlock-free.
	ordered := make([]ItemRequest, len(items))
	copy(ordered, items)
	sortItems(ordered)

	type lockedVariant struct {
		id         uint64
		priceCents uint32
	}
	locked := make([]lockedVariant, 0, len(ordered))
	for _, it := range ordered {
		var (
			price    uint32
			total    uint32
			reserved uint32
		)
		err := tx.QueryRowContext(ctx,
			"SELECT price_cents, stock_total, stock_reserved FROM product_variants WHERE id=? FOR UPDATE",
			it.VariantID).Scan(&price, &total, &reserved)
		if errors.Is(err, sql.ErrNoRows) {
			return res, ErrNotFound
		}
		if err != nil {
			return res, err
		}
		if total-reserved < it.Quantity {
			return res, ErrInsufficientStock
		}
		if _, err := tx.ExecContext(ctx,
			"UPDATE product_variants SET stock_reserved = stock_reserved + ?, updated_at=NOW() WHERE id=?",
			it.Quantity, it.VariantID); err != nil {
			return res, err
		}
		locked = append(locked, lockedVariant{id: it.VariantID, priceCents: price})
	}

	ins, err := tx.ExecContext(ctx,
		"INSERT INTO reservations (user_id, status, expires_at) VALUES (?,?,?)",
		userID, model.ReservationPending, exp)
	if err != nil {
		return res, err
	}
	id, err := ins.LastInsertId()
	if err != nil {
		return res, err
	}
	res.ID = uint64(id)
	res.UserID = userID
	res.Status = model.ReservationPending
	res.ExpiresAt = exp

	for i, it := range ordered {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO reservation_items (reservation_id, variant_id, quantity, price_cents) VALUES (?,?,?,?)",
			res.ID, it.VariantID, it.Quantity, locked[i].priceCents); err != nil {
			return res, err
		}
		res.Items = append(res.Items, model.ReservationItem{
			ReservationID: res.ID,
			VariantID:     it.VariantID,
			Quantity:      it.Quantity,
			PriceCents:    locked[i].priceCents,
		})
	}

	if err := tx.Commit(); err != nil {
		return res, err
	}
	return res, nil
}

// Cancel releases the reserved stock of a PENDING reservation and marks it
// CANCELLED. Reservations in any other state return ErrConflict.
func (r *ReservationRepo) Cancel(ctx context.Context, id uint64) error {
	return r.release(ctx, id, model.ReservationCancelled)
}

// Confirm converts a PENDING reservation into a CONFIRMED one: the reserved
// units leave both stock_reserved and stock_total.
func (r *ReservationRepo) Confirm(ctx context.Context, id uint64) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if err := r.lockPending(ctx, tx, id); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE product_variants pv
		JOIN reservation_items ri ON ri.variant_id = pv.id
		SET pv.stock_reserved = pv.stock_reserved - ri.quantity,
		    pv.stock_total    = pv.stock_total - ri.quantity,
		    pv.updated_at     = NOW()
		WHERE ri.reservation_id = ?`, id); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		"UPDATE reservations SET status=?, updated_at=NOW() WHERE id=?",
		model.ReservationConfirmed, id); err != nil {
		return err
	}
	return tx.Commit()
}

// ExpireOverdue marks overdue PENDING reservations as EXPIRED and releases
// their stock. Returns how many reservations were expired.
func (r *ReservationRepo) ExpireOverdue(ctx context.Context, now time.Time) (int, error) {
	rows, err := r.DB.QueryContext(ctx,
		"SELECT id FROM reservations WHERE status=? AND expires_at < ?",
		model.ReservationPending, now.UTC())
	if err != nil {
		return 0, err
	}
	var ids []uint64
	for rows.Next() {
		var id uint64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return 0, err
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}

	expired := 0
	for _, id := range ids {
		// Each reservation is its own transaction; a race with a concurrent
		// confirm/cancel surfaces as ErrConflict and is simply skipped.
		if err := r.release(ctx, id, model.ReservationExpired); err != nil {
			if errors.Is(err, ErrConflict) {
				continue
			}
			return expired, err
		}
		expired++
	}
	return expired, nil
}

// release moves a PENDING reservation to a terminal state that returns its
// units to the available pool.
func (r *ReservationRepo) release(ctx context.Context, id uint64, status string) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if err := r.lockPending(ctx, tx, id); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE product_variants pv
		JOIN reservation_items ri ON ri.variant_id = pv.id
		SET pv.stock_reserved = pv.stock_reserved - ri.quantity,
		    pv.updated_at     = NOW()
		WHERE ri.reservation_id = ?`, id); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		"UPDATE reservations SET status=?, updated_at=NOW() WHERE id=?", status, id); err != nil {
		return err
	}
	return tx.Commit()
}

// lockPending locks the reservation row and verifies it is still PENDING.
func (r *ReservationRepo) lockPending(ctx context.Context, tx *sql.Tx, id uint64) error {
	var status string
	err := tx.QueryRowContext(ctx,
		"SELECT status FROM reservations WHERE id=? FOR UPDATE", id).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	if status != model.ReservationPending {
		return ErrConflict
	}
	return nil
}

// GetByID fetches a reservation with its items.
func (r *ReservationRepo) GetByID(ctx context.Context, id uint64) (model.Reservation, error) {
	var res model.Reservation
	err := r.DB.QueryRowContext(ctx,
		"SELECT id, user_id, status, expires_at, created_at, updated_at FROM reservations WHERE id=? LIMIT 1",
		id).Scan(&res.ID, &res.UserID, &res.Status, &res.ExpiresAt, &res.CreatedAt, &res.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return res, ErrNotFound
	}
	if err != nil {
		return res, err
	}
	res.Items, err = r.itemsFor(ctx, res.ID)
	return res, err
}

// ListByUser returns a user's reservations, newest first, items included.
func (r *ReservationRepo) ListByUser(ctx context.Context, userID uint64) ([]model.Reservation, error) {
	rows, err := r.DB.QueryContext(ctx,
		"SELECT id, user_id, status, expires_at, created_at, updated_at FROM reservations WHERE user_id=? ORDER BY id DESC",
		userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Reservation
	for rows.Next() {
		var res model.Reservation
		if err := rows.Scan(&res.ID, &res.UserID, &res.Status, &res.ExpiresAt, &res.CreatedAt, &res.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, res)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range out {
		if out[i].Items, err = r.itemsFor(ctx, out[i].ID); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (r *ReservationRepo) itemsFor(ctx context.Context, reservationID uint64) ([]model.ReservationItem, error) {
	rows, err := r.DB.QueryContext(ctx,
		"SELECT reservation_id, variant_id, quantity, price_cents FROM reservation_items WHERE reservation_id=? ORDER BY variant_id",
		reservationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []model.ReservationItem
	for rows.Next() {
		var it model.ReservationItem
		if err := rows.Scan(&it.ReservationID, &it.VariantID, &it.Quantity, &it.PriceCents); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

func sortItems(items []ItemRequest) {
	sort.Slice(items, func(a, b int) bool { return items[a].VariantID < items[b].VariantID })
}
