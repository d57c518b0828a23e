package model

import "time"

const (
	VisibilityPrivate = "private"
	VisibilityPublic  = "public"
)

// ValidVisibility reports whether v is one of the visibility enum values.
func ValidVisibility(v string) bool {
	return v == VisibilityPrivate || v == VisibilityPublic
}

type Chat struct {
	ID         string    `gorm:"primaryKey;size:36" json:"id"`
	UserID     string    `gorm:"size:36;not null;index" json:"userId"`
	Title      string    `gorm:"size:128;not null" json:"title"`
	Visibility string    `gorm:"size:16;not null;default:private;index" json:"visibility"`
	VisibleAt  time.Time `gorm:"index" json:"visibleAt"`
	CreatedAt  time.Time `gorm:"index" json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// ChatSearchResult is a chat plus a derived excerpt around the matched
// query term. The snippet is never persisted.
type ChatSearchResult struct {
	Chat
	Snippet string `json:"snippet"`
}
