// Package syncer applies chat-list mutations to the local page cache and
// propagates them to the user's other sessions: across instances over a
// redis channel, then to connected clients through the websocket hub.
package syncer

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	redisv9 "github.com/redis/go-redis/v9"

	"chatvault/internal/listcache"
	"chatvault/internal/model"
	"chatvault/internal/optimistic"
)

// Scope selects where a mutation is applied. Local touches only this
// instance's cache; Remote only publishes for other instances/sessions;
// Both (the default for callers) does both.
type Scope string

const (
	ScopeLocal  Scope = "local"
	ScopeRemote Scope = "remote"
	ScopeBoth   Scope = "both"
)

type Provider struct {
	mu     sync.Mutex
	caches map[string]*listcache.ListCache[model.Chat]
	names  map[string]*optimistic.Field[string]
	prefs  map[string]*optimistic.Field[json.RawMessage]

	client     *redisv9.Client
	channel    string
	hub        *Hub
	instanceID string
}

func NewProvider(client *redisv9.Client, channel, instanceID string, hub *Hub) *Provider {
	return &Provider{
		caches:     make(map[string]*listcache.ListCache[model.Chat]),
		names:      make(map[string]*optimistic.Field[string]),
		prefs:      make(map[string]*optimistic.Field[json.RawMessage]),
		client:     client,
		channel:    channel,
		hub:        hub,
		instanceID: instanceID,
	}
}

// Cache returns the chat-list cache for userID, creating the holder on
// first use. The cache itself stays empty (and its mutations no-ops)
// until a fetch hydrates it.
func (p *Provider) Cache(userID string) *listcache.ListCache[model.Chat] {
	p.mu.Lock()
	defer p.mu.Unlock()
	c, ok := p.caches[userID]
	if !ok {
		c = listcache.New(func(chat model.Chat) string { return chat.ID })
		p.caches[userID] = c
	}
	return c
}

// Apply runs msg for userID under the given scope and returns a closure
// reverting the local mutation, so a caller whose confirming store write
// fails can undo the optimistic update without refetching. The revert
// closure is a no-op when scope excluded local application.
func (p *Provider) Apply(ctx context.Context, userID string, msg Message, scope Scope) (func(), error) {
	if scope == "" {
		scope = ScopeBoth
	}

	revert := func() {}
	if scope == ScopeLocal || scope == ScopeBoth {
		r, err := p.applyLocal(userID, msg)
		if err != nil {
			return nil, err
		}
		revert = r
	}

	if scope == ScopeRemote || scope == ScopeBoth {
		if err := p.publish(ctx, userID, msg); err != nil {
			revert()
			return nil, err
		}
		p.confirm(userID, msg)
	}

	return revert, nil
}

// applyLocal dispatches over the closed message set. Every variant must be
// handled here; the default branch is the loud failure for schema drift.
func (p *Provider) applyLocal(userID string, msg Message) (func(), error) {
	cache := p.Cache(userID)

	switch msg.Type {
	case TypeChatRenamed:
		data, err := decodeData[ChatRenamedData](msg)
		if err != nil {
			return nil, err
		}
		cache.Update(data.ChatID, func(chat model.Chat) model.Chat {
			chat.Title = data.Title
			chat.UpdatedAt = time.Now()
			return chat
		})
		return cache.Revert, nil

	case TypeChatVisibilityChanged:
		data, err := decodeData[ChatVisibilityData](msg)
		if err != nil {
			return nil, err
		}
		visibleAt, _ := time.Parse(time.RFC3339, data.VisibleAt)
		cache.Update(data.ChatID, func(chat model.Chat) model.Chat {
			chat.Visibility = data.Visibility
			if !visibleAt.IsZero() {
				chat.VisibleAt = visibleAt
			}
			return chat
		})
		return cache.Revert, nil

	case TypeChatDeleted:
		data, err := decodeData[ChatDeletedData](msg)
		if err != nil {
			return nil, err
		}
		cache.Remove(data.ChatID)
		return cache.Revert, nil

	case TypeChatsCleared:
		cache.Clear()
		return cache.Revert, nil

	case TypeUserRenamed:
		data, err := decodeData[UserRenamedData](msg)
		if err != nil {
			return nil, err
		}
		field := p.nameField(userID)
		field.Begin(data.Username)
		return field.Rollback, nil

	case TypePreferencesUpdated:
		data, err := decodeData[PreferencesUpdatedData](msg)
		if err != nil {
			return nil, err
		}
		field := p.prefsField(userID)
		field.Begin(data.Preferences)
		return field.Rollback, nil

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMessageType, msg.Type)
	}
}

// confirm completes the Pending -> Committed transition for the field the
// published message concerns. Only that field: a concurrent operation's
// publish must not commit another operation's still-pending speculation.
func (p *Provider) confirm(userID string, msg Message) {
	switch msg.Type {
	case TypeUserRenamed:
		p.mu.Lock()
		field, ok := p.names[userID]
		p.mu.Unlock()
		if ok {
			field.Commit()
		}
	case TypePreferencesUpdated:
		p.mu.Lock()
		field, ok := p.prefs[userID]
		p.mu.Unlock()
		if ok {
			field.Commit()
		}
	}
}

func (p *Provider) publish(ctx context.Context, userID string, msg Message) error {
	payload, err := json.Marshal(envelope{
		Origin:  p.instanceID,
		UserID:  userID,
		Message: msg,
	})
	if err != nil {
		return fmt.Errorf("marshal sync envelope failed: %w", err)
	}
	if err := p.client.Publish(ctx, p.channel, payload).Err(); err != nil {
		return fmt.Errorf("publish sync message failed: %w", err)
	}
	return nil
}

// Run subscribes to the sync channel and applies incoming mutations until
// ctx is canceled. Messages echoed from this instance skip the local
// re-apply (it already happened) but still reach this instance's websocket
// clients. Delivery is async and unordered relative to local mutations;
// handlers are idempotent, so duplicate application is safe. Malformed or
// unknown messages are logged, not fatal: one bad peer must not take the
// subscription down.
func (p *Provider) Run(ctx context.Context) {
	sub := p.client.Subscribe(ctx, p.channel)
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case raw, ok := <-ch:
			if !ok {
				return
			}
			var env envelope
			if err := json.Unmarshal([]byte(raw.Payload), &env); err != nil {
				log.Printf("sync: decode envelope failed: %v", err)
				continue
			}
			if env.Origin != p.instanceID {
				if _, err := p.applyLocal(env.UserID, env.Message); err != nil {
					log.Printf("sync: apply %s failed: %v", env.Message.Type, err)
					continue
				}
			}
			if p.hub != nil {
				if err := p.hub.BroadcastToUser(env.UserID, env.Message); err != nil {
					log.Printf("sync: hub broadcast failed: %v", err)
				}
			}
		}
	}
}

// Snapshot is the initial state pushed to a session when it connects:
// whatever this instance currently holds for the user, so the client does
// not start from a blank slate while waiting for the first broadcast.
type Snapshot struct {
	Username string       `json:"username,omitempty"`
	Chats    []model.Chat `json:"chats,omitempty"`
}

func (p *Provider) Snapshot(userID string) Snapshot {
	var snap Snapshot
	if name, ok := p.Username(userID); ok {
		snap.Username = name
	}
	for _, page := range p.Cache(userID).Pages() {
		snap.Chats = append(snap.Chats, page.Data...)
	}
	return snap
}

// Username reports the user's current (possibly pending) display name as
// tracked by the optimistic field, and whether one is tracked at all.
func (p *Provider) Username(userID string) (string, bool) {
	p.mu.Lock()
	field, ok := p.names[userID]
	p.mu.Unlock()
	if !ok {
		return "", false
	}
	return field.Value(), true
}

func (p *Provider) nameField(userID string) *optimistic.Field[string] {
	p.mu.Lock()
	defer p.mu.Unlock()
	f, ok := p.names[userID]
	if !ok {
		f = optimistic.NewField("")
		p.names[userID] = f
	}
	return f
}

func (p *Provider) prefsField(userID string) *optimistic.Field[json.RawMessage] {
	p.mu.Lock()
	defer p.mu.Unlock()
	f, ok := p.prefs[userID]
	if !ok {
		f = optimistic.NewField[json.RawMessage](nil)
		p.prefs[userID] = f
	}
	return f
}
