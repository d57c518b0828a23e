package handler

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"chatvault/internal/syncer"
	"chatvault/internal/transport/http/response"
)

// SyncHandler upgrades authenticated clients to a websocket and registers
// them with the hub, so every mutation broadcast for their user reaches
// each of their open sessions.
type SyncHandler struct {
	hub      *syncer.Hub
	provider *syncer.Provider
	upgrader websocket.Upgrader
}

func NewSyncHandler(hub *syncer.Hub, provider *syncer.Provider) *SyncHandler {
	return &SyncHandler{
		hub:      hub,
		provider: provider,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

func (h *SyncHandler) Connect(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, "invalid token payload")
		return
	}

	ws, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("websocket upgrade failed: %v", err)
		return
	}

	conn := &syncer.Conn{
		UserID: userID,
		Send:   make(chan []byte, 16),
	}
	h.hub.Register(conn)
	h.sendSnapshot(conn, userID)

	go writePump(ws, conn)
	go readPump(ws, conn, h.hub)
}

// sendSnapshot queues this instance's current state for the user as the
// session's first frame. The send channel is buffered; the frame is skipped
// rather than blocking the upgrade if the buffer is somehow already full.
func (h *SyncHandler) sendSnapshot(conn *syncer.Conn, userID string) {
	snap := h.provider.Snapshot(userID)
	data, err := json.Marshal(struct {
		Type string          `json:"type"`
		Data syncer.Snapshot `json:"data"`
	}{Type: "snapshot", Data: snap})
	if err != nil {
		log.Printf("marshal sync snapshot failed: %v", err)
		return
	}
	select {
	case conn.Send <- data:
	default:
	}
}

func writePump(ws *websocket.Conn, conn *syncer.Conn) {
	defer ws.Close()
	for data := range conn.Send {
		_ = ws.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if err := ws.WriteMessage(websocket.TextMessage, data); err != nil {
			return
		}
	}
	_ = ws.WriteMessage(websocket.CloseMessage, []byte{})
}

// readPump exists to detect the peer going away; clients never send
// application data on this socket.
func readPump(ws *websocket.Conn, conn *syncer.Conn, hub *syncer.Hub) {
	defer func() {
		hub.Unregister(conn)
		ws.Close()
	}()
	for {
		if _, _, err := ws.ReadMessage(); err != nil {
			return
		}
	}
}
