package cache

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTagStringDropsEmptySegments(t *testing.T) {
	cases := []struct {
		name string
		tag  Tag
		want string
	}{
		{"base only", Tag{Base: "user-chats"}, "user-chats"},
		{"base and scope", Tag{Base: "user-chats", Scope: "u1"}, "user-chats:u1"},
		{"all segments", Tag{Base: "user-chats-search", Scope: "u1", QueryHash: "deadbeef"}, "user-chats-search:u1:deadbeef"},
		{"hash without scope", Tag{Base: "user-chats-search", QueryHash: "deadbeef"}, "user-chats-search:deadbeef"},
		{"empty", Tag{}, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.tag.String())
		})
	}
}

func TestSearchTagIsStableForSameQuery(t *testing.T) {
	a := UserChatsSearch("u1", "hello world")
	b := UserChatsSearch("u1", "hello world")
	c := UserChatsSearch("u1", "hello")

	assert.Equal(t, a.String(), b.String())
	assert.NotEqual(t, a.String(), c.String())
	assert.Len(t, a.QueryHash, 8)
}

func TestConstructorBases(t *testing.T) {
	assert.Equal(t, "user-chats:u1", UserChats("u1").String())
	assert.Equal(t, "user-chat:c1", UserChat("c1").String())
	assert.Equal(t, "user-shared-chats:u1", UserSharedChats("u1").String())
	assert.Equal(t, "user-preferences:u1", UserPreferences("u1").String())
}
