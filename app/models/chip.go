package models

import (
	"time"

	"github.com/go-playground/validator/v10"
)

const (
	ChipStatusPending   = "pending"
	ChipStatusActive    = "active"
	ChipStatusCompleted = "completed"
	ChipStatusExpired   = "expired"
	ChipStatusCanceled  = "canceled"
)

const (
	ChipMinThreshold  = 1
	ChipMaxThreshold  = 100
	ChipMaxObjectives = 5

	ChipMinDeadlineWindow = 15 * time.Minute
	ChipMaxDeadlineWindow = 7 * 24 * time.Hour
)

// Chip is a group commitment: a shared goal that activates once enough
// participants have joined before the deadline.
type Chip struct {
	ID                      uint       `gorm:"primaryKey" json:"id"`
	PublicCode              string     `gorm:"uniqueIndex;type:varchar(20);not null" json:"public_code"`
	CreatorID               uint       `gorm:"index;not null" json:"creator_id"`
	Creator                 User       `gorm:"foreignKey:CreatorID" json:"creator,omitempty" validate:"-"`
	Title                   string     `gorm:"type:varchar(100);not null" json:"title" validate:"required,min=1,max=100"`
	Description             string     `gorm:"type:text" json:"description" validate:"max=2000"`
	ThresholdCount          int        `gorm:"not null" json:"threshold_count" validate:"min=1,max=100"`
	DeadlineAt              time.Time  `gorm:"index;not null" json:"deadline_at"`
	IsPrivate               bool       `gorm:"default:false" json:"is_private"`
	Status                  string     `gorm:"type:varchar(20);not null;default:'pending';index" json:"status"`
	ParticipantCount        int        `gorm:"not null;default:0" json:"participant_count"`
	ObjectiveCount          int        `gorm:"not null;default:0" json:"objective_count"`
	CompletedObjectiveCount int        `gorm:"not null;default:0" json:"completed_objective_count"`
	ActivatedAt             *time.Time `gorm:"type:timestamp;default:null" json:"activated_at,omitempty"`
	CompletedAt             *time.Time `gorm:"type:timestamp;default:null" json:"completed_at,omitempty"`
	ExpiredAt               *time.Time `gorm:"type:timestamp;default:null" json:"expired_at,omitempty"`
	CanceledAt              *time.Time `gorm:"type:timestamp;default:null" json:"canceled_at,omitempty"`
	CreatedAt               time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt               time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func (ch *Chip) Validate() error {
	v := validator.New()

	return v.Struct(ch)
}

// IsTerminalChipStatus reports whether no transition may ever leave the status.
func IsTerminalChipStatus(status string) bool {
	switch status {
	case ChipStatusCompleted, ChipStatusExpired, ChipStatusCanceled:
		return true
	}
	return false
}

// CanTransitionChip reports whether from→to is a legal edge of the chip
// lifecycle. pending→active is the threshold activation; pending may also
// expire or be canceled directly when the threshold is never met.
func CanTransitionChip(from, to string) bool {
	switch from {
	case ChipStatusPending:
		return to == ChipStatusActive || to == ChipStatusExpired || to == ChipStatusCanceled
	case ChipStatusActive:
		return to == ChipStatusCompleted || to == ChipStatusExpired || to == ChipStatusCanceled
	}
	return false
}

// ChipStatusTimestampColumn returns the column stamped when a chip reaches
// the given status, or "" for statuses without one.
func ChipStatusTimestampColumn(status string) string {
	switch status {
	case ChipStatusActive:
		return "activated_at"
	case ChipStatusCompleted:
		return "completed_at"
	case ChipStatusExpired:
		return "expired_at"
	case ChipStatusCanceled:
		return "canceled_at"
	}
	return ""
}

// IsOpen reports whether the chip still accepts joins and objective toggles.
func (ch *Chip) IsOpen() bool {
	return ch.Status == ChipStatusPending || ch.Status == ChipStatusActive
}
