// Package listcache mutates cached pages of a paginated list in place and
// supports undoing the most recent mutation. It backs optimistic updates:
// apply the expected result immediately, revert if the confirming store
// write fails.
package listcache

import (
	"sync"

	"chatvault/internal/model"
)

// ListCache holds the fetched pages for one logical list key. The undo
// depth is deliberately one: a single snapshot slot, overwritten by every
// mutation and discarded by Revert. Two concurrent mutations on the same
// key are last-writer-wins on that slot; only the most recent mutation is
// revertible at any instant.
type ListCache[T any] struct {
	mu       sync.Mutex
	pages    []model.PaginatedData[T]
	hydrated bool
	prev     []model.PaginatedData[T]
	hasPrev  bool
	identity func(T) string
}

func New[T any](identity func(T) string) *ListCache[T] {
	return &ListCache[T]{identity: identity}
}

// Hydrate replaces the cached pages with freshly fetched ones and drops any
// pending snapshot, since it no longer describes the current state.
func (c *ListCache[T]) Hydrate(pages []model.PaginatedData[T]) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pages = clonePages(pages)
	c.hydrated = true
	c.prev = nil
	c.hasPrev = false
}

// Pages returns a copy of the cached pages, or nil when nothing is cached.
func (c *ListCache[T]) Pages() []model.PaginatedData[T] {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.hydrated {
		return nil
	}
	return clonePages(c.pages)
}

// Add prepends item to the first page unless an item with the same identity
// already sits anywhere in page 0. Pages beyond the first are not checked
// for duplicates; an accepted limitation, matching where new items surface.
func (c *ListCache[T]) Add(item T) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.hydrated || len(c.pages) == 0 {
		return
	}
	id := c.identity(item)
	for _, existing := range c.pages[0].Data {
		if c.identity(existing) == id {
			return
		}
	}
	c.snapshot()
	first := &c.pages[0]
	first.Data = append([]T{item}, first.Data...)
}

// Remove filters the item out of every page.
func (c *ListCache[T]) Remove(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.hydrated {
		return
	}
	c.snapshot()
	for i := range c.pages {
		kept := c.pages[i].Data[:0:0]
		for _, item := range c.pages[i].Data {
			if c.identity(item) != id {
				kept = append(kept, item)
			}
		}
		c.pages[i].Data = kept
	}
}

// Update maps the item through fn in every page where it appears.
func (c *ListCache[T]) Update(id string, fn func(T) T) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.hydrated {
		return
	}
	c.snapshot()
	for i := range c.pages {
		for j, item := range c.pages[i].Data {
			if c.identity(item) == id {
				c.pages[i].Data[j] = fn(item)
			}
		}
	}
}

// Clear replaces the whole cache with one empty page.
func (c *ListCache[T]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.hydrated {
		return
	}
	c.snapshot()
	c.pages = []model.PaginatedData[T]{{Data: []T{}, HasNextPage: false}}
}

// Revert restores the snapshot taken before the last mutation, then
// discards it. A second Revert without an intervening mutation is a no-op.
func (c *ListCache[T]) Revert() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.hasPrev {
		return
	}
	c.pages = c.prev
	c.prev = nil
	c.hasPrev = false
}

// snapshot is called with the lock held, before each mutation touches pages.
func (c *ListCache[T]) snapshot() {
	c.prev = clonePages(c.pages)
	c.hasPrev = true
}

func clonePages[T any](pages []model.PaginatedData[T]) []model.PaginatedData[T] {
	if pages == nil {
		return nil
	}
	out := make([]model.PaginatedData[T], len(pages))
	for i, page := range pages {
		copied := page
		if page.Data != nil {
			copied.Data = make([]T, len(page.Data))
			copy(copied.Data, page.Data)
		}
		if page.Cursor != nil {
			cur := *page.Cursor
			copied.Cursor = &cur
		}
		if page.NextOffset != nil {
			off := *page.NextOffset
			copied.NextOffset = &off
		}
		if page.TotalCount != nil {
			total := *page.TotalCount
			copied.TotalCount = &total
		}
		out[i] = copied
	}
	return out
}
