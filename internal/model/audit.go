package model

import "time"

// AuditEntry mirrors the `audit_log` table. Detail carries a free-form JSON
// document describing the change.
type AuditEntry struct {
	ID         uint64
	ActorID    uint64
	ActorEmail string
	Action     string
	Entity     string
	EntityID   uint64
	Detail     string
	CreatedAt  time.Time
}
