package live

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/okian/arena/internal/domain/types"
	"github.com/okian/arena/pkg/logger"
)

const (
	writeTimeout = 10 * time.Second
	pongWait     = 60 * time.Second
	pingPeriod   = (pongWait * 9) / 10
	readLimit    = 512
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// Origins are checked at the reverse proxy.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// JoinFunc subscribes the connection and primes it with a snapshot.
type JoinFunc func(ctx context.Context) (*Subscriber, error)

// Serve upgrades the request and streams the subscriber returned by join
// until either side closes. A join error is sent as an error message.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, join JoinFunc) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	ctx := r.Context()

	sub, err := join(ctx)
	if err != nil {
		h.logger.Warn(ctx, "live join failed", logger.Error(err))
		data, _ := json.Marshal(types.Message{Type: types.MessageError, Data: map[string]string{"error": err.Error()}})
		_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		_ = conn.WriteMessage(websocket.TextMessage, data)
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, ""))
		_ = conn.Close()
		return
	}
	defer h.Leave(sub)

	go writePump(conn, sub)
	readPump(conn)
}

func writePump(conn *websocket.Conn, sub *Subscriber) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = conn.Close()
	}()

	for {
		select {
		case msg, ok := <-sub.C():
			_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump handles control frames and returns when the peer goes away.
func readPump(conn *websocket.Conn) {
	defer conn.Close()
	conn.SetReadLimit(readLimit)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
