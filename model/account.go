package model

import "time"

// Account is a registered user with an optional hardware lock and an
// optional subscription. HardwareID is nil until the first launcher
// authentication binds it; SubscriptionType and SubscriptionExpires are
// always written together by key redemption.
type Account struct {
	ID                  int64      `gorm:"primaryKey;autoIncrement" json:"uid"`
	Username            string     `gorm:"uniqueIndex;size:32;not null" json:"username"`
	PasswordHash        string     `gorm:"size:64;not null" json:"-"`
	HardwareID          *string    `gorm:"size:128" json:"hwid"`
	SubscriptionType    *string    `gorm:"size:32" json:"subscription_type"`
	SubscriptionExpires *time.Time `json:"subscription_expires"`
	CreatedAt           time.Time  `gorm:"autoCreateTime" json:"created_at"`
}
