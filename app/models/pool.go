package models

import (
	"time"

	"github.com/go-playground/validator/v10"
)

const (
	PoolStatusActive    = "active"
	PoolStatusFunded    = "funded"
	PoolStatusRefunding = "refunding"
	PoolStatusExpired   = "expired"
	PoolStatusCanceled  = "canceled"
)

// Pool is the monetary variant of a chip: contributions are collected toward
// a funding goal, and refunded when the deadline passes short of it.
type Pool struct {
	ID                   uint       `gorm:"primaryKey" json:"id"`
	PublicCode           string     `gorm:"uniqueIndex;type:varchar(20);not null" json:"public_code"`
	OrganizerID          uint       `gorm:"index;not null" json:"organizer_id"`
	Organizer            User       `gorm:"foreignKey:OrganizerID" json:"organizer,omitempty" validate:"-"`
	Title                string     `gorm:"type:varchar(100);not null" json:"title" validate:"required,min=1,max=100"`
	RestaurantName       string     `gorm:"type:varchar(100)" json:"restaurant_name" validate:"max=100"`
	GoalAmountCents      *int64     `json:"goal_amount_cents,omitempty"`
	DeadlineAt           time.Time  `gorm:"index;not null" json:"deadline_at"`
	TipPercent           int        `gorm:"not null;default:0" json:"tip_percent" validate:"min=0,max=35"`
	Status               string     `gorm:"type:varchar(20);not null;default:'active';index" json:"status"`
	CollectedAmountCents int64      `gorm:"not null;default:0" json:"collected_amount_cents"`
	FundedAt             *time.Time `gorm:"type:timestamp;default:null" json:"funded_at,omitempty"`
	ExpiredAt            *time.Time `gorm:"type:timestamp;default:null" json:"expired_at,omitempty"`
	CanceledAt           *time.Time `gorm:"type:timestamp;default:null" json:"canceled_at,omitempty"`
	CreatedAt            time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt            time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func (p *Pool) Validate() error {
	v := validator.New()

	return v.Struct(p)
}

// IsTerminalPoolStatus reports whether no transition may ever leave the status.
// refunding is an in-flight marker, not terminal: the sweeper finishes it.
func IsTerminalPoolStatus(status string) bool {
	switch status {
	case PoolStatusFunded, PoolStatusExpired, PoolStatusCanceled:
		return true
	}
	return false
}

// CanTransitionPool reports whether from→to is a legal edge of the pool
// lifecycle.
func CanTransitionPool(from, to string) bool {
	switch from {
	case PoolStatusActive:
		return to == PoolStatusFunded || to == PoolStatusRefunding || to == PoolStatusCanceled
	case PoolStatusRefunding:
		return to == PoolStatusExpired
	}
	return false
}

// PoolStatusTimestampColumn returns the column stamped when a pool reaches
// the given status, or "" for statuses without one (refunding carries none).
func PoolStatusTimestampColumn(status string) string {
	switch status {
	case PoolStatusFunded:
		return "funded_at"
	case PoolStatusExpired:
		return "expired_at"
	case PoolStatusCanceled:
		return "canceled_at"
	}
	return ""
}

// GoalMet reports whether the collected sum reaches the goal. Pools without a
// numeric goal never auto-fund; only the deadline sweep resolves them.
func (p *Pool) GoalMet(collectedCents int64) bool {
	return p.GoalAmountCents != nil && collectedCents >= *p.GoalAmountCents
}
