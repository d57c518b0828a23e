package model

import "time"

// UsageCounter tracks a user's consumption inside the current quota period.
type UsageCounter struct {
	UserID          string    `gorm:"primaryKey;size:36" json:"userId"`
	MessagesCounter int64     `gorm:"not null;default:0" json:"messagesCounter"`
	TokensCounter   int64     `gorm:"not null;default:0" json:"tokensCounter"`
	FilesCounter    int64     `gorm:"not null;default:0" json:"filesCounter"`
	IsOverLimit     bool      `gorm:"not null;default:false" json:"isOverLimit"`
	PeriodStart     time.Time `json:"periodStart"`
	PeriodEnd       time.Time `json:"periodEnd"`
	UpdatedAt       time.Time `json:"updatedAt"`
}
