package repository

import (
	"context"
	"database/sql"

	"github.com/ivanmru/store-inventory-reservation/internal/model"
)

// AuditRepo appends to and reads the audit_log table. Writes come from the
// queue consumer, never directly from request handlers.
type AuditRepo struct{ DB *sql.DB }

func NewAuditRepo(db *sql.DB) *AuditRepo { return &AuditRepo{DB: db} }

// Insert appends one audit entry.
func (r *AuditRepo) Insert(ctx context.Context, e model.AuditEntry) error {
	_, err := r.DB.ExecContext(ctx,
		"INSERT INTO audit_log (actor_id, actor_email, action, entity, entity_id, detail) VALUES (?,?,?,?,?,?)",
		e.ActorID, e.ActorEmail, e.Action, e.Entity, e.EntityID, e.Detail)
	return err
}

// List returns audit entries newest first with keyset-free offset paging.
func (r *AuditRepo) List(ctx context.Context, limit, offset int) ([]model.AuditEntry, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	rows, err := r.DB.QueryContext(ctx,
		"SELECT id, actor_id, actor_email, action, entity, entity_id, detail, created_at FROM audit_log ORDER BY id DESC LIMIT ? OFFSET ?",
		limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.AuditEntry
	for rows.Next() {
		var e model.AuditEntry
		if err := rows.Scan(&e.ID, &e.ActorID, &e.ActorEmail, &e.Action, &e.Entity, &e.EntityID, &e.Detail, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
