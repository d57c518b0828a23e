package model

import (
	"time"

	"gorm.io/datatypes"
)

type Message struct {
	ID        string         `gorm:"primaryKey;size:36" json:"id"`
	ChatID    string         `gorm:"size:36;not null;index" json:"chatId"`
	UserID    string         `gorm:"size:36;not null;index" json:"userId"`
	Role      string         `gorm:"size:16;not null" json:"role"`
	Content   string         `gorm:"type:text;not null" json:"content"`
	Metadata  datatypes.JSON `json:"metadata,omitempty"`
	Parts     datatypes.JSON `json:"parts,omitempty"`
	CreatedAt time.Time      `gorm:"index" json:"createdAt"`
}
