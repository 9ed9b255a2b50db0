package models

import "time"

const (
	ContributionStatusPending   = "pending"
	ContributionStatusSucceeded = "succeeded"
	ContributionStatusRefunded  = "refunded"
	ContributionStatusFailed    = "failed"
)

// Contribution is one participant's payment toward a pool. A pending row is
// committed before the hosted checkout is requested; rows abandoned at
// checkout stay pending forever, which is normal.
type Contribution struct {
	ID               uint       `gorm:"primaryKey" json:"id"`
	PoolID           uint       `gorm:"index;not null" json:"pool_id"`
	ContributorName  string     `gorm:"type:varchar(80);not null" json:"contributor_name"`
	AmountCents      int64      `gorm:"not null" json:"amount_cents"`
	PlatformFeeCents int64      `gorm:"not null;default:0" json:"platform_fee_cents"`
	Status           string     `gorm:"type:varchar(20);not null;default:'pending';index" json:"status"`
	PaidAt           *time.Time `gorm:"type:timestamp;default:null" json:"paid_at,omitempty"`
	RefundedAt       *time.Time `gorm:"type:timestamp;default:null" json:"refunded_at,omitempty"`
	CreatedAt        time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}
