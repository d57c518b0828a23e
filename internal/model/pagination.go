package model

import "time"

// Cursor is a compound pagination position. Pages descend strictly by
// (date, id) so rows sharing a createdAt timestamp are neither skipped
// nor repeated across page boundaries.
type Cursor struct {
	Date time.Time `json:"date"`
	ID   string    `json:"id"`
}

// PaginatedData wraps one page of results. Cursor and NextOffset are set
// only when HasNextPage is true.
type PaginatedData[T any] struct {
	Data        []T     `json:"data"`
	HasNextPage bool    `json:"hasNextPage"`
	NextOffset  *int    `json:"nextOffset,omitempty"`
	Cursor      *Cursor `json:"cursor,omitempty"`
	TotalCount  *int64  `json:"totalCount,omitempty"`
}
