package websocket

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/merchhub/tokensync/internal/connections"
	"github.com/merchhub/tokensync/internal/status"
	"github.com/rs/zerolog/log"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// HandleStatusFeed upgrades the connection and registers it for status
// pushes. The client gets a full snapshot immediately, then an update on
// every run completion and breaker transition until it disconnects.
func HandleStatusFeed(manager *connections.Manager, reporter *status.Reporter, w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("Failed to upgrade websocket connection")
		return
	}

	manager.AddConnection(conn)
	defer func() {
		manager.RemoveConnection(conn)
		conn.Close()
	}()

	log.Debug().Int("connections", manager.GetConnectionCount()).Msg("Status feed client connected")

	if err := manager.Send(conn, status.Update{Event: "snapshot", Report: reporter.Report()}); err != nil {
		return
	}

	timeouts := manager.GetTimeouts()

	conn.SetReadDeadline(time.Now().Add(timeouts.PongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(timeouts.PongWait))
	})

	done := make(chan struct{})
	defer close(done)

	go func() {
		ticker := time.NewTicker(timeouts.PingPeriod)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				deadline := time.Now().Add(timeouts.WriteWait)
				if err := conn.WriteControl(websocket.PingMessage, []byte{}, deadline); err != nil {
					return
				}
			case <-done:
				return
			}
		}
	}()

	// The feed is push-only. The read loop drains control frames and notices
	// the peer going away; client payloads are ignored.
	for {
		conn.SetReadDeadline(time.Now().Add(timeouts.PongWait))
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Debug().Err(err).Msg("Status feed client closed unexpectedly")
			}
			break
		}
	}
}
