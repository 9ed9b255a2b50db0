package models

import "time"

// ChipObjective is one checklist entry of a chip. Completion is a single
// atomic toggle: CompletedAt is non-nil exactly when CompletedByParticipantID
// is non-nil.
type ChipObjective struct {
	ID                       uint       `gorm:"primaryKey" json:"id"`
	ChipID                   uint       `gorm:"index;not null" json:"chip_id"`
	Title                    string     `gorm:"type:varchar(150);not null" json:"title"`
	Description              string     `gorm:"type:text" json:"description"`
	SortOrder                int        `gorm:"not null;default:0" json:"sort_order"`
	AssignedParticipantID    *uint      `gorm:"index" json:"assigned_participant_id,omitempty"`
	CompletedByParticipantID *uint      `gorm:"index" json:"completed_by_participant_id,omitempty"`
	CompletedAt              *time.Time `gorm:"type:timestamp;default:null" json:"completed_at,omitempty"`
	CreatedAt                time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt                time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// IsCompleted reports whether the objective currently has a completer.
func (o *ChipObjective) IsCompleted() bool {
	return o.CompletedByParticipantID != nil
}
