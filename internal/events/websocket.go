package events

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	wsWriteDeadline = 10 * time.Second
	wsReadDeadline  = 60 * time.Second
	wsPingInterval  = 30 * time.Second
	wsReadLimit     = 4096
)

// Upgrader is shared by websocket endpoints.
var Upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// WebSocketTransport writes events as JSON text frames.
type WebSocketTransport struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func NewWebSocketTransport(conn *websocket.Conn) *WebSocketTransport {
	return &WebSocketTransport{conn: conn}
}

func (t *WebSocketTransport) Write(ev Event) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	_ = t.conn.SetWriteDeadline(time.Now().Add(wsWriteDeadline))
	return t.conn.WriteJSON(ev)
}

func (t *WebSocketTransport) ping() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	_ = t.conn.SetWriteDeadline(time.Now().Add(wsWriteDeadline))
	return t.conn.WriteMessage(websocket.PingMessage, nil)
}

func (t *WebSocketTransport) closeNormal() {
	t.mu.Lock()
	defer t.mu.Unlock()
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = t.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
}

// StreamWebSocket streams sub over conn until the client goes away or the
// session is detached. Inbound frames are read only to observe pongs and
// close frames. conn is closed on return.
func (h *Hub) StreamWebSocket(ctx context.Context, sub *Subscriber, conn *websocket.Conn) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	t := NewWebSocketTransport(conn)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		defer cancel()
		conn.SetReadLimit(wsReadLimit)
		_ = conn.SetReadDeadline(time.Now().Add(wsReadDeadline))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(wsReadDeadline))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					h.log.Debug("websocket read error", "session", sub.ID, "error", err)
				}
				return
			}
		}
	}()
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(wsPingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := t.ping(); err != nil {
					cancel()
					return
				}
			}
		}
	}()

	err := h.Stream(ctx, sub, t)
	t.closeNormal()
	_ = conn.Close()
	cancel()
	wg.Wait()
	return err
}
