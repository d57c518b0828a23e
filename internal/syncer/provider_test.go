package syncer

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	redisv9 "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatvault/internal/model"
	"chatvault/internal/optimistic"
)

const testChannel = "chatvault:sync:test"

func newTestProvider(t *testing.T, mr *miniredis.Miniredis, instanceID string) *Provider {
	t.Helper()
	client := redisv9.NewClient(&redisv9.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewProvider(client, testChannel, instanceID, nil)
}

func hydrateChats(p *Provider, userID string, chats ...model.Chat) {
	p.Cache(userID).Hydrate([]model.PaginatedData[model.Chat]{
		{Data: chats, HasNextPage: false},
	})
}

func chatTitles(p *Provider, userID string) []string {
	var titles []string
	for _, page := range p.Cache(userID).Pages() {
		for _, chat := range page.Data {
			titles = append(titles, chat.Title)
		}
	}
	return titles
}

func mustMessage(t *testing.T, typ Type, data any) Message {
	t.Helper()
	msg, err := NewMessage(typ, data)
	require.NoError(t, err)
	return msg
}

func TestApplyLocalUpdatesHydratedCache(t *testing.T) {
	mr := miniredis.RunT(t)
	p := newTestProvider(t, mr, "a")
	hydrateChats(p, "u1", model.Chat{ID: "c1", Title: "old"}, model.Chat{ID: "c2", Title: "keep"})

	msg := mustMessage(t, TypeChatRenamed, ChatRenamedData{ChatID: "c1", Title: "new"})
	revert, err := p.Apply(context.Background(), "u1", msg, ScopeLocal)
	require.NoError(t, err)

	assert.Equal(t, []string{"new", "keep"}, chatTitles(p, "u1"))

	revert()
	assert.Equal(t, []string{"old", "keep"}, chatTitles(p, "u1"))
}

func TestApplyLocalDoesNotPublish(t *testing.T) {
	mr := miniredis.RunT(t)
	p := newTestProvider(t, mr, "a")
	hydrateChats(p, "u1", model.Chat{ID: "c1", Title: "t"})

	sub := redisv9.NewClient(&redisv9.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = sub.Close() })
	pubsub := sub.Subscribe(context.Background(), testChannel)
	t.Cleanup(func() { _ = pubsub.Close() })
	_, err := pubsub.Receive(context.Background())
	require.NoError(t, err)

	msg := mustMessage(t, TypeChatDeleted, ChatDeletedData{ChatID: "c1"})
	_, err = p.Apply(context.Background(), "u1", msg, ScopeLocal)
	require.NoError(t, err)

	select {
	case got := <-pubsub.Channel():
		t.Fatalf("unexpected publish on local-only apply: %s", got.Payload)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestApplyRemoteDoesNotMutateLocalCache(t *testing.T) {
	mr := miniredis.RunT(t)
	p := newTestProvider(t, mr, "a")
	hydrateChats(p, "u1", model.Chat{ID: "c1", Title: "t"})

	msg := mustMessage(t, TypeChatDeleted, ChatDeletedData{ChatID: "c1"})
	revert, err := p.Apply(context.Background(), "u1", msg, ScopeRemote)
	require.NoError(t, err)

	assert.Equal(t, []string{"t"}, chatTitles(p, "u1"))
	revert() // no-op by contract
	assert.Equal(t, []string{"t"}, chatTitles(p, "u1"))
}

func TestApplyRejectsUnknownMessageType(t *testing.T) {
	mr := miniredis.RunT(t)
	p := newTestProvider(t, mr, "a")

	_, err := p.Apply(context.Background(), "u1", Message{Type: "chat-archived", Data: json.RawMessage(`{}`)}, ScopeLocal)
	require.ErrorIs(t, err, ErrUnknownMessageType)
}

func TestApplyClearsAndDeletes(t *testing.T) {
	mr := miniredis.RunT(t)
	p := newTestProvider(t, mr, "a")
	hydrateChats(p, "u1", model.Chat{ID: "c1", Title: "a"}, model.Chat{ID: "c2", Title: "b"})

	msg := mustMessage(t, TypeChatDeleted, ChatDeletedData{ChatID: "c1"})
	_, err := p.Apply(context.Background(), "u1", msg, ScopeLocal)
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, chatTitles(p, "u1"))

	_, err = p.Apply(context.Background(), "u1", Message{Type: TypeChatsCleared}, ScopeLocal)
	require.NoError(t, err)
	assert.Empty(t, chatTitles(p, "u1"))
}

func TestRenameFieldLifecycleAcrossScopes(t *testing.T) {
	mr := miniredis.RunT(t)
	p := newTestProvider(t, mr, "a")

	// Local-only apply stages the value; the revert closure rolls it back.
	msg := mustMessage(t, TypeUserRenamed, UserRenamedData{Username: "draft"})
	revert, err := p.Apply(context.Background(), "u1", msg, ScopeLocal)
	require.NoError(t, err)
	name, ok := p.Username("u1")
	require.True(t, ok)
	assert.Equal(t, "draft", name)
	assert.Equal(t, optimistic.Pending, p.nameField("u1").State())

	revert()
	assert.Equal(t, optimistic.RolledBack, p.nameField("u1").State())

	// Both scopes: the publish confirms, committing the pending value.
	msg = mustMessage(t, TypeUserRenamed, UserRenamedData{Username: "final"})
	_, err = p.Apply(context.Background(), "u1", msg, ScopeBoth)
	require.NoError(t, err)
	assert.Equal(t, optimistic.Committed, p.nameField("u1").State())
	name, _ = p.Username("u1")
	assert.Equal(t, "final", name)
}

func TestUnrelatedPublishLeavesPendingRenameRevertible(t *testing.T) {
	mr := miniredis.RunT(t)
	p := newTestProvider(t, mr, "a")
	hydrateChats(p, "u1", model.Chat{ID: "c1", Title: "old"})

	// Stage a rename locally; it stays pending until its own publish.
	rename := mustMessage(t, TypeUserRenamed, UserRenamedData{Username: "speculative"})
	revert, err := p.Apply(context.Background(), "u1", rename, ScopeLocal)
	require.NoError(t, err)
	require.Equal(t, optimistic.Pending, p.nameField("u1").State())

	// A concurrent chat mutation for the same user publishes remotely.
	// That publish concerns the chat list, not the name field.
	chatMsg := mustMessage(t, TypeChatRenamed, ChatRenamedData{ChatID: "c1", Title: "new"})
	_, err = p.Apply(context.Background(), "u1", chatMsg, ScopeBoth)
	require.NoError(t, err)
	assert.Equal(t, optimistic.Pending, p.nameField("u1").State(),
		"an unrelated publish must not commit the pending rename")

	// The rename's store write fails; its revert must still take effect.
	revert()
	assert.Equal(t, optimistic.RolledBack, p.nameField("u1").State())
	name, ok := p.Username("u1")
	require.True(t, ok)
	assert.Empty(t, name)
}

func TestConfirmCommitsOnlyTheConcernedField(t *testing.T) {
	mr := miniredis.RunT(t)
	p := newTestProvider(t, mr, "a")
	ctx := context.Background()

	rename := mustMessage(t, TypeUserRenamed, UserRenamedData{Username: "alice"})
	_, err := p.Apply(ctx, "u1", rename, ScopeLocal)
	require.NoError(t, err)

	prefs := mustMessage(t, TypePreferencesUpdated, PreferencesUpdatedData{Preferences: json.RawMessage(`{"theme":"dark"}`)})
	_, err = p.Apply(ctx, "u1", prefs, ScopeBoth)
	require.NoError(t, err)

	assert.Equal(t, optimistic.Committed, p.prefsField("u1").State())
	assert.Equal(t, optimistic.Pending, p.nameField("u1").State())
}

func TestSnapshotCarriesCachedChatsAndUsername(t *testing.T) {
	mr := miniredis.RunT(t)
	p := newTestProvider(t, mr, "a")

	// Nothing tracked yet: the snapshot is empty.
	empty := p.Snapshot("u1")
	assert.Empty(t, empty.Username)
	assert.Empty(t, empty.Chats)

	hydrateChats(p, "u1", model.Chat{ID: "c1", Title: "a"}, model.Chat{ID: "c2", Title: "b"})
	msg := mustMessage(t, TypeUserRenamed, UserRenamedData{Username: "alice"})
	_, err := p.Apply(context.Background(), "u1", msg, ScopeBoth)
	require.NoError(t, err)

	snap := p.Snapshot("u1")
	assert.Equal(t, "alice", snap.Username)
	require.Len(t, snap.Chats, 2)
	assert.Equal(t, "c1", snap.Chats[0].ID)
}

func TestRunAppliesMessagesFromOtherInstances(t *testing.T) {
	mr := miniredis.RunT(t)
	sender := newTestProvider(t, mr, "a")
	receiver := newTestProvider(t, mr, "b")
	hydrateChats(receiver, "u1", model.Chat{ID: "c1", Title: "old"})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go receiver.Run(ctx)
	time.Sleep(50 * time.Millisecond) // let the subscription settle

	msg := mustMessage(t, TypeChatRenamed, ChatRenamedData{ChatID: "c1", Title: "synced"})
	_, err := sender.Apply(ctx, "u1", msg, ScopeRemote)
	require.NoError(t, err)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		titles := chatTitles(receiver, "u1")
		if len(titles) == 1 && titles[0] == "synced" {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("receiver cache never saw the rename, titles=%v", chatTitles(receiver, "u1"))
}

func TestRunSkipsReapplyingOwnEcho(t *testing.T) {
	mr := miniredis.RunT(t)
	p := newTestProvider(t, mr, "a")
	hydrateChats(p, "u1", model.Chat{ID: "c1", Title: "t"})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Run(ctx)
	time.Sleep(50 * time.Millisecond)

	// Remote-only publish from the same instance: the echo must not be
	// applied locally, so the cache keeps the chat.
	msg := mustMessage(t, TypeChatDeleted, ChatDeletedData{ChatID: "c1"})
	_, err := p.Apply(ctx, "u1", msg, ScopeRemote)
	require.NoError(t, err)

	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, []string{"t"}, chatTitles(p, "u1"))
}
