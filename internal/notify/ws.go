package notify

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pingInterval   = 30 * time.Second
	subscriberBuf  = 16
	maxInboundSize = 512
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// ServeWS upgrades the request to a WebSocket and streams every Message
// published under topic until the client disconnects or the registry shuts
// down.
func (r *Registry) ServeWS(w http.ResponseWriter, req *http.Request, topic string) {
	conn, err := upgrader.Upgrade(w, req, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", "topic", topic, "error", err)
		return
	}

	ch := make(chan Message, subscriberBuf)
	r.Subscribe(topic, ch)

	go r.writePump(conn, topic, ch)
	r.readPump(conn, topic, ch)
}

// readPump discards inbound frames; it exists to surface disconnects and
// answer control frames. It owns the unsubscribe.
func (r *Registry) readPump(conn *websocket.Conn, topic string, ch chan Message) {
	defer func() {
		r.Unsubscribe(topic, ch)
		conn.Close()
	}()

	conn.SetReadLimit(maxInboundSize)
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Debug("websocket closed unexpectedly", "topic", topic, "error", err)
			}
			return
		}
	}
}

func (r *Registry) writePump(conn *websocket.Conn, topic string, ch chan Message) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case msg, ok := <-ch:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"))
				return
			}
			if err := conn.WriteJSON(msg); err != nil {
				slog.Debug("websocket write failed", "topic", topic, "error", err)
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
