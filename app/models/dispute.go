package models

import "time"

// Dispute mirrors one processor dispute, one row per processor dispute id.
// The contribution link is best effort; disputes for unknown charges are
// still recorded.
type Dispute struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	DisputeID      string    `gorm:"uniqueIndex;type:varchar(191);not null" json:"dispute_id"`
	ContributionID *uint     `gorm:"index" json:"contribution_id,omitempty"`
	AmountCents    int64     `gorm:"not null" json:"amount_cents"`
	Reason         string    `gorm:"type:varchar(100)" json:"reason"`
	Status         string    `gorm:"type:varchar(50);not null" json:"status"`
	Payload        string    `gorm:"type:longtext" json:"payload"`
	CreatedAt      time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
