package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/ivanmru/store-inventory-reservation/internal/model"
)

// ProductRepo provides catalog CRUD. Products are soft-deleted; variants stay
// attached to their product row either way.
type ProductRepo struct{ DB *sql.DB }

func NewProductRepo(db *sql.DB) *ProductRepo { return &ProductRepo{DB: db} }

// Create inserts a product and returns its ID.
func (r *ProductRepo) Create(ctx context.Context, p model.Product) (uint64, error) {
	res, err := r.DB.ExecContext(ctx,
		"INSERT INTO products (sku, name, description, is_active) VALUES (?,?,?,?)",
		p.SKU, p.Name, p.Description, p.IsActive)
	if err != nil {
		if isDuplicate(err) {
			return 0, ErrConflict
		}
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return uint64(id), nil
}

// Update rewrites the mutable product fields.
func (r *ProductRepo) Update(ctx context.Context, p model.Product) error {
	res, err := r.DB.ExecContext(ctx,
		"UPDATE products SET name=?, description=?, is_active=?, updated_at=NOW() WHERE id=? AND deleted_at IS NULL",
		p.Name, p.Description, p.IsActive, p.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		if _, err := r.GetByID(ctx, p.ID); err != nil {
			return err
		}
	}
	return nil
}

// SoftDelete marks a product as deleted.
func (r *ProductRepo) SoftDelete(ctx context.Context, id uint64) error {
	res, err := r.DB.ExecContext(ctx,
		"UPDATE products SET deleted_at=NOW(), is_active=0 WHERE id=? AND deleted_at IS NULL", id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// GetByID fetches one non-deleted product.
func (r *ProductRepo) GetByID(ctx context.Context, id uint64) (model.Product, error) {
	var p model.Product
	err := r.DB.QueryRowContext(ctx,
		"SELECT id, sku, name, description, is_active, deleted_at, created_at, updated_at FROM products WHERE id=? AND deleted_at IS NULL LIMIT 1",
		id).Scan(&p.ID, &p.SKU, &p.Name, &p.Description, &p.IsActive, &p.DeletedAt, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return p, ErrNotFound
	}
	return p, err
}

// ListActive returns active, non-deleted products.
func (r *ProductRepo) ListActive(ctx context.Context) ([]model.Product, error) {
	rows, err := r.DB.QueryContext(ctx,
		"SELECT id, sku, name, description, is_active, deleted_at, created_at, updated_at FROM products WHERE is_active=1 AND deleted_at IS NULL ORDER BY name")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Product
	for rows.Next() {
		var p model.Product
		if err := rows.Scan(&p.ID, &p.SKU, &p.Name, &p.Description, &p.IsActive, &p.DeletedAt, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// CreateVariant inserts a variant for a product and returns its ID.
func (r *ProductRepo) CreateVariant(ctx context.Context, v model.Variant) (uint64, error) {
	res, err := r.DB.ExecContext(ctx,
		"INSERT INTO product_variants (product_id, sku, name, price_cents, stock_total) VALUES (?,?,?,?,?)",
		v.ProductID, v.SKU, v.Name, v.PriceCents, v.StockTotal)
	if err != nil {
		if isDuplicate(err) {
			return 0, ErrConflict
		}
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return uint64(id), nil
}

// VariantsByProduct returns a product's variants.
func (r *ProductRepo) VariantsByProduct(ctx context.Context, productID uint64) ([]model.Variant, error) {
	rows, err := r.DB.QueryContext(ctx,
		"SELECT id, product_id, sku, name, price_cents, stock_total, stock_reserved, created_at, updated_at FROM product_variants WHERE product_id=? ORDER BY id",
		productID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Variant
	for rows.Next() {
		var v model.Variant
		if err := rows.Scan(&v.ID, &v.ProductID, &v.SKU, &v.Name, &v.PriceCents, &v.StockTotal, &v.StockReserved, &v.CreatedAt, &v.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// SetStockTotal sets a variant's absolute stock level after a restock or
// recount. The new total may not undercut the units currently reserved.
func (r *ProductRepo) SetStockTotal(ctx context.Context, variantID uint64, total uint32) error {
	var reserved uint32
	err := r.DB.QueryRowContext(ctx,
		"SELECT stock_reserved FROM product_variants WHERE id=?", variantID).Scan(&reserved)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	if reserved > total {
		return ErrConflict
	}
	// The WHERE guard re-checks under write: a reservation may have raced the
	// read above.
	_, err = r.DB.ExecContext(ctx,
		"UPDATE product_variants SET stock_total=?, updated_at=NOW() WHERE id=? AND stock_reserved <= ?",
		total, variantID, total)
	return err
}
