package syncer

import (
	"encoding/json"
	"sync"
)

// Hub fans sync messages out to the websocket connections of one user,
// grouped so a mutation in one client session reaches the user's other
// open sessions.
type Hub struct {
	users      map[string]map[*Conn]bool
	register   chan *Conn
	unregister chan *Conn
	broadcast  chan *userMessage
	mu         sync.RWMutex
}

type Conn struct {
	UserID string
	Send   chan []byte
}

type userMessage struct {
	userID string
	data   []byte
}

func NewHub() *Hub {
	return &Hub{
		users:      make(map[string]map[*Conn]bool),
		register:   make(chan *Conn),
		unregister: make(chan *Conn),
		broadcast:  make(chan *userMessage),
	}
}

func (h *Hub) Run() {
	for {
		select {
		case conn := <-h.register:
			h.mu.Lock()
			if h.users[conn.UserID] == nil {
				h.users[conn.UserID] = make(map[*Conn]bool)
			}
			h.users[conn.UserID][conn] = true
			h.mu.Unlock()

		case conn := <-h.unregister:
			h.mu.Lock()
			if conns, ok := h.users[conn.UserID]; ok {
				if _, ok := conns[conn]; ok {
					delete(conns, conn)
					close(conn.Send)
					if len(conns) == 0 {
						delete(h.users, conn.UserID)
					}
				}
			}
			h.mu.Unlock()

		case msg := <-h.broadcast:
			h.mu.Lock()
			if conns, ok := h.users[msg.userID]; ok {
				for conn := range conns {
					select {
					case conn.Send <- msg.data:
					default:
						// Slow consumer; drop the connection rather than
						// stalling everyone else's delivery.
						close(conn.Send)
						delete(conns, conn)
					}
				}
				if len(conns) == 0 {
					delete(h.users, msg.userID)
				}
			}
			h.mu.Unlock()
		}
	}
}

func (h *Hub) Start() {
	go h.Run()
}

func (h *Hub) Register(conn *Conn) {
	h.register <- conn
}

func (h *Hub) Unregister(conn *Conn) {
	h.unregister <- conn
}

// BroadcastToUser pushes a message to every open connection of userID.
func (h *Hub) BroadcastToUser(userID string, msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	h.broadcast <- &userMessage{userID: userID, data: data}
	return nil
}
