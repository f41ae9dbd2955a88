package diag

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeTimeout = 5 * time.Second
	pingInterval = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The daemon serves a LAN diagnostic surface; cross-origin pages on the
	// same network are expected clients.
	CheckOrigin: func(*http.Request) bool { return true },
}

// handleEvents upgrades to a websocket and streams channel snapshots as JSON,
// one message per transition. Slow readers miss intermediate snapshots rather
// than stalling the engine; each channel's current state is sent on connect.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("events upgrade failed", "err", err)
		return
	}
	defer conn.Close()

	updates, cancel := s.engine.Subscribe()
	defer cancel()

	// Seed the client with the current state of every channel.
	for _, st := range s.engine.Statuses() {
		if err := writeSnapshot(conn, st); err != nil {
			return
		}
	}

	// Drain client frames so pong and close handling work; we never expect
	// application data from the client.
	clientGone := make(chan struct{})
	go func() {
		defer close(clientGone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(pingInterval)
	defer ping.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-clientGone:
			return
		case snap := <-updates:
			if err := writeSnapshot(conn, snap); err != nil {
				return
			}
		case <-ping.C:
			conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func writeSnapshot(conn *websocket.Conn, v any) error {
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return conn.WriteJSON(v)
}
