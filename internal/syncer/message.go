package syncer

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Type enumerates the closed set of sync messages. Dispatch over this set
// is exhaustive: an unrecognized type is surfaced as an error, never
// silently dropped, so schema drift between peers (e.g. mid-deploy) shows
// up loudly instead of corrupting state.
type Type string

const (
	TypeChatRenamed           Type = "chat-renamed"
	TypeChatVisibilityChanged Type = "chat-visibility-changed"
	TypeChatDeleted           Type = "chat-deleted"
	TypeChatsCleared          Type = "chats-cleared"
	TypeUserRenamed           Type = "user-renamed"
	TypePreferencesUpdated    Type = "preferences-updated"
)

var ErrUnknownMessageType = errors.New("unknown sync message type")

// Message is the unit broadcast between instances and pushed to clients.
type Message struct {
	Type Type            `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

type ChatRenamedData struct {
	ChatID string `json:"chatId"`
	Title  string `json:"title"`
}

type ChatVisibilityData struct {
	ChatID     string `json:"chatId"`
	Visibility string `json:"visibility"`
	VisibleAt  string `json:"visibleAt,omitempty"`
}

type ChatDeletedData struct {
	ChatID string `json:"chatId"`
}

type UserRenamedData struct {
	Username string `json:"username"`
}

type PreferencesUpdatedData struct {
	Preferences json.RawMessage `json:"preferences"`
}

func NewMessage(t Type, data any) (Message, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return Message{}, fmt.Errorf("marshal sync payload failed: %w", err)
	}
	return Message{Type: t, Data: payload}, nil
}

func decodeData[T any](msg Message) (T, error) {
	var data T
	if err := json.Unmarshal(msg.Data, &data); err != nil {
		return data, fmt.Errorf("decode %s payload failed: %w", msg.Type, err)
	}
	return data, nil
}

// envelope wraps a message for the cross-instance redis channel. Origin
// lets an instance recognize its own echo and skip re-applying it.
type envelope struct {
	Origin  string  `json:"origin"`
	UserID  string  `json:"userId"`
	Message Message `json:"message"`
}
