package model

import "time"

// ActivationKey is a single-use token granting a subscription tier.
// Redeemed flips false→true exactly once; RedeemedBy and RedeemedAt are set
// in the same transaction that writes the grant to the account.
type ActivationKey struct {
	ID               int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	Code             string     `gorm:"uniqueIndex;size:64;not null" json:"key_code"`
	SubscriptionType string     `gorm:"size:32;not null" json:"subscription_type"`
	DurationDays     int        `gorm:"not null" json:"duration_days"`
	Redeemed         bool       `gorm:"not null;default:false" json:"used"`
	RedeemedBy       *int64     `gorm:"index" json:"used_by"`
	RedeemedAt       *time.Time `json:"used_at"`
	CreatedAt        time.Time  `gorm:"autoCreateTime" json:"created_at"`
}
