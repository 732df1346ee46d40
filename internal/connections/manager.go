package connections

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// TimeoutConfig holds the various timeout settings for WebSocket connections
type TimeoutConfig struct {
	PongWait   time.Duration
	PingPeriod time.Duration
	WriteWait  time.Duration
}

// Manager handles WebSocket connection lifecycle and fan-out. Each
// connection carries its own write lock so broadcasts and direct sends
// never interleave frames.
type Manager struct {
	connections sync.Map // *websocket.Conn -> *sync.Mutex
	timeouts    TimeoutConfig
}

// DefaultTimeouts provides sensible default timeout values
var DefaultTimeouts = TimeoutConfig{
	PongWait:   30 * time.Second,
	PingPeriod: 27 * time.Second, // (PongWait * 9) / 10
	WriteWait:  10 * time.Second,
}

// NewManager creates a new connection manager with the specified timeouts
func NewManager(timeouts TimeoutConfig) *Manager {
	return &Manager{
		timeouts: timeouts,
	}
}

// AddConnection registers a new WebSocket connection
func (m *Manager) AddConnection(conn *websocket.Conn) {
	m.connections.Store(conn, &sync.Mutex{})
}

// RemoveConnection removes a WebSocket connection
func (m *Manager) RemoveConnection(conn *websocket.Conn) {
	m.connections.Delete(conn)
}

// GetConnectionCount returns the current number of active connections
func (m *Manager) GetConnectionCount() int {
	count := 0
	m.connections.Range(func(key, value interface{}) bool {
		count++
		return true
	})
	return count
}

// HasConnection checks if a specific connection exists
func (m *Manager) HasConnection(conn *websocket.Conn) bool {
	_, exists := m.connections.Load(conn)
	return exists
}

// GetTimeouts returns the current timeout configuration
func (m *Manager) GetTimeouts() TimeoutConfig {
	return m.timeouts
}

// Send writes one JSON payload to a single connection.
func (m *Manager) Send(conn *websocket.Conn, payload interface{}) error {
	value, ok := m.connections.Load(conn)
	if !ok {
		return websocket.ErrCloseSent
	}
	return m.write(conn, value.(*sync.Mutex), payload)
}

// Broadcast writes one JSON payload to every connection. Connections that
// fail the write are dropped and closed. Returns how many received it.
func (m *Manager) Broadcast(payload interface{}) int {
	delivered := 0
	m.connections.Range(func(key, value interface{}) bool {
		conn := key.(*websocket.Conn)
		if err := m.write(conn, value.(*sync.Mutex), payload); err != nil {
			log.Debug().Err(err).Msg("Dropping WebSocket connection after failed broadcast")
			m.connections.Delete(conn)
			conn.Close()
			return true
		}
		delivered++
		return true
	})
	return delivered
}

// CloseAll closes and removes every connection. Used during shutdown.
func (m *Manager) CloseAll() {
	m.connections.Range(func(key, value interface{}) bool {
		conn := key.(*websocket.Conn)
		m.connections.Delete(conn)
		conn.Close()
		return true
	})
}

func (m *Manager) write(conn *websocket.Conn, mu *sync.Mutex, payload interface{}) error {
	mu.Lock()
	defer mu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(m.timeouts.WriteWait))
	return conn.WriteJSON(payload)
}
