package connections

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func TestNewManager(t *testing.T) {
	m := NewManager(DefaultTimeouts)
	if m == nil {
		t.Fatal("NewManager returned nil")
	}
	if m.GetConnectionCount() != 0 {
		t.Errorf("Expected 0 connections, got %d", m.GetConnectionCount())
	}
}

func TestAddAndRemoveConnection(t *testing.T) {
	m := NewManager(DefaultTimeouts)
	conn := &websocket.Conn{}

	m.AddConnection(conn)
	if !m.HasConnection(conn) {
		t.Error("Expected connection to be registered")
	}
	if m.GetConnectionCount() != 1 {
		t.Errorf("Expected 1 connection, got %d", m.GetConnectionCount())
	}

	m.RemoveConnection(conn)
	if m.HasConnection(conn) {
		t.Error("Expected connection to be removed")
	}
	if m.GetConnectionCount() != 0 {
		t.Errorf("Expected 0 connections, got %d", m.GetConnectionCount())
	}
}

func TestConcurrentAccess(t *testing.T) {
	m := NewManager(DefaultTimeouts)
	var wg sync.WaitGroup

	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			conn := &websocket.Conn{}
			m.AddConnection(conn)
			m.HasConnection(conn)
			m.GetConnectionCount()
			m.RemoveConnection(conn)
		}()
	}
	wg.Wait()

	if m.GetConnectionCount() != 0 {
		t.Errorf("Expected 0 connections after churn, got %d", m.GetConnectionCount())
	}
}

// wsPair upgrades one client/server connection pair for write tests.
func wsPair(t *testing.T) (client *websocket.Conn, server *websocket.Conn, cleanup func()) {
	t.Helper()

	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool { return true },
	}
	serverConnCh := make(chan *websocket.Conn, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade failed: %v", err)
			return
		}
		serverConnCh <- conn
	}))

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	client, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		srv.Close()
		t.Fatalf("dial failed: %v", err)
	}
	server = <-serverConnCh

	return client, server, func() {
		client.Close()
		server.Close()
		srv.Close()
	}
}

func TestBroadcastDeliversToConnections(t *testing.T) {
	m := NewManager(DefaultTimeouts)
	client, server, cleanup := wsPair(t)
	defer cleanup()

	m.AddConnection(server)

	payload := map[string]string{"event": "run_succeeded"}
	if delivered := m.Broadcast(payload); delivered != 1 {
		t.Errorf("Broadcast delivered to %d connections, want 1", delivered)
	}

	client.SetReadDeadline(time.Now().Add(2 * time.Second))
	var got map[string]string
	if err := client.ReadJSON(&got); err != nil {
		t.Fatalf("client read failed: %v", err)
	}
	if got["event"] != "run_succeeded" {
		t.Errorf("received event = %q, want run_succeeded", got["event"])
	}
}

func TestBroadcastDropsDeadConnections(t *testing.T) {
	m := NewManager(DefaultTimeouts)
	_, server, cleanup := wsPair(t)
	defer cleanup()

	m.AddConnection(server)
	server.Close()

	if delivered := m.Broadcast(map[string]string{"event": "run_failed"}); delivered != 0 {
		t.Errorf("Broadcast delivered to %d connections, want 0", delivered)
	}
	if m.GetConnectionCount() != 0 {
		t.Errorf("dead connection should be dropped, count = %d", m.GetConnectionCount())
	}
}

func TestSendToUnregisteredConnection(t *testing.T) {
	m := NewManager(DefaultTimeouts)
	conn := &websocket.Conn{}

	if err := m.Send(conn, map[string]string{"k": "v"}); err == nil {
		t.Error("Send to an unregistered connection should fail")
	}
}
