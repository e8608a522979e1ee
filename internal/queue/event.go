// Package queue defines the audit event payload exchanged over the message
// broker and the background consumer that persists it.
package queue

// AuditQueueName is the durable queue audit events travel through.
const AuditQueueName = "audit.events"

// Audit actions published by the handlers.
const (
	ActionLogin               = "auth.login"
	ActionLoginGoogle         = "auth.login_google"
	ActionRegister            = "auth.register"
	ActionLogoutAll           = "auth.logout_all"
	ActionRoleChange          = "rbac.role_change"
	ActionPermissionGrant     = "rbac.permission_grant"
	ActionPermissionRevoke    = "rbac.permission_revoke"
	ActionProductCreate       = "productos.create"
	ActionProductUpdate       = "productos.update"
	ActionProductDelete       = "productos.delete"
	ActionStockAdjust         = "inventario.adjust"
	ActionReservationConfirm  = "reservas.confirm"
	ActionReservationCancel   = "reservas.cancel"
)

// AuditEvent is published whenever a sensitive operation succeeds. It carries
// enough context for the consumer to write an audit_log row without touching
// the primary tables.
type AuditEvent struct {
	ActorID    uint64 `json:"actor_id"`
	ActorEmail string `json:"actor_email"`
	Action     string `json:"action"`
	Entity     string `json:"entity"`
	EntityID   uint64 `json:"entity_id"`
	Detail     string `json:"detail"`
	OccurredAt string `json:"occurred_at"`
}
