package models

import "time"

const (
	AuditObjectChip = "chip"
	AuditObjectPool = "pool"
)

// AuditEvent is an append-only observability record. It is never mutated and
// never consulted to derive current state.
type AuditEvent struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	ObjectType     string    `gorm:"type:varchar(10);not null;index:idx_audit_events_object,priority:1" json:"object_type"`
	ObjectID       uint      `gorm:"not null;index:idx_audit_events_object,priority:2" json:"object_id"`
	ContributionID *uint     `gorm:"index" json:"contribution_id,omitempty"`
	EventType      string    `gorm:"type:varchar(100);not null;index" json:"event_type"`
	Metadata       string    `gorm:"type:text" json:"metadata"`
	CreatedAt      time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}
