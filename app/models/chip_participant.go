package models

import "time"

// ChipParticipant is one member of a chip. Guests carry no UserID and are
// identified only by their display name, unique per chip case-insensitively.
// Both unique indexes live in the database so concurrent duplicate joins
// cannot both win.
type ChipParticipant struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	ChipID      uint      `gorm:"not null;index:ux_chip_participants_user,unique,priority:1;index:ux_chip_participants_name,unique,priority:1" json:"chip_id"`
	UserID      *uint     `gorm:"index:ux_chip_participants_user,unique,priority:2" json:"user_id,omitempty"`
	DisplayName string    `gorm:"type:varchar(80) COLLATE utf8mb4_unicode_ci;not null;index:ux_chip_participants_name,unique,priority:2" json:"display_name"`
	IsCreator   bool      `gorm:"not null;default:false" json:"is_creator"`
	JoinedAt    time.Time `gorm:"autoCreateTime" json:"joined_at"`
}
