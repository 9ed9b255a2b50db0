package models

import "time"

// WebhookEvent is the append-only deduplication ledger for inbound processor
// events, keyed by the processor-assigned event id. Inserting an id that is
// already present makes the delivery a no-op duplicate.
type WebhookEvent struct {
	EventID         string     `gorm:"primaryKey;type:varchar(191)" json:"event_id"`
	Type            string     `gorm:"type:varchar(100);not null;index" json:"type"`
	Livemode        bool       `gorm:"not null;default:false" json:"livemode"`
	Payload         string     `gorm:"type:longtext;not null" json:"payload"`
	ProcessedAt     *time.Time `gorm:"type:timestamp;default:null" json:"processed_at,omitempty"`
	ProcessingError string     `gorm:"type:text" json:"processing_error"`
	CreatedAt       time.Time  `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt       time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}
