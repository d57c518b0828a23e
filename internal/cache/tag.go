package cache

import (
	"fmt"
	"hash/fnv"
	"strings"
)

// Tag is a structured cache key. Producers and invalidators build tags from
// the same components instead of concatenating strings by hand, so the
// rendered form cannot drift between the two sides. Rendering drops empty
// segments entirely rather than leaving empty colon slots.
type Tag struct {
	Base      string
	Scope     string
	QueryHash string
}

func (t Tag) String() string {
	parts := make([]string, 0, 3)
	if t.Base != "" {
		parts = append(parts, t.Base)
	}
	if t.Scope != "" {
		parts = append(parts, t.Scope)
	}
	if t.QueryHash != "" {
		parts = append(parts, t.QueryHash)
	}
	return strings.Join(parts, ":")
}

func UserChats(userID string) Tag {
	return Tag{Base: "user-chats", Scope: userID}
}

func UserChat(chatID string) Tag {
	return Tag{Base: "user-chat", Scope: chatID}
}

func UserSharedChats(userID string) Tag {
	return Tag{Base: "user-shared-chats", Scope: userID}
}

func UserChatsSearch(userID, query string) Tag {
	return Tag{Base: "user-chats-search", Scope: userID, QueryHash: hashQuery(query)}
}

func UserPreferences(userID string) Tag {
	return Tag{Base: "user-preferences", Scope: userID}
}

func hashQuery(query string) string {
	h := fnv.New32a()
	_, _ = h.Write([]byte(query))
	return fmt.Sprintf("%08x", h.Sum32())
}
