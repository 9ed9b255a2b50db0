package models

import "time"

// ContributionPayment correlates a contribution with the processor objects
// created for it. Fields are only ever widened: upserts coalesce new values
// over existing ones and never overwrite a known id with null.
type ContributionPayment struct {
	ID                   uint      `gorm:"primaryKey" json:"id"`
	ContributionID       uint      `gorm:"uniqueIndex;not null" json:"contribution_id"`
	ContributorEmail     string    `gorm:"type:varchar(200)" json:"contributor_email"`
	CheckoutSessionID    string    `gorm:"type:varchar(191);index" json:"checkout_session_id"`
	PaymentIntentID      string    `gorm:"type:varchar(191);index" json:"payment_intent_id"`
	ChargeID             string    `gorm:"type:varchar(191);index" json:"charge_id"`
	RefundID             string    `gorm:"type:varchar(191)" json:"refund_id"`
	TransferID           string    `gorm:"type:varchar(191)" json:"transfer_id"`
	DestinationAccountID string    `gorm:"type:varchar(191)" json:"destination_account_id"`
	CreatedAt            time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt            time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
