package worldline

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const wsInterval = 100 * time.Millisecond

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// WebsocketHandler sends every new batch as JSON.
// A batch is only sent once; the frame number tracks what the client has seen.
func (v *View) WebsocketHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	// reader goroutine handles control frames and notices the close
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(wsInterval)
	defer ticker.Stop()

	var sent uint64
	for {
		select {
		case <-closed:
			return
		case <-r.Context().Done():
			return
		case <-ticker.C:
			b := v.Latest()
			if b == nil || b.Frame == sent {
				continue
			}
			if err := conn.WriteJSON(b); err != nil {
				slog.Debug("Websocket closed", slog.Any("Error", err))
				return
			}
			sent = b.Frame
		}
	}
}
