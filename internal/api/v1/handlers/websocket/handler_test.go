package websocket

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/merchhub/tokensync/internal/browser"
	"github.com/merchhub/tokensync/internal/connections"
	"github.com/merchhub/tokensync/internal/credential"
	"github.com/merchhub/tokensync/internal/scheduler"
	"github.com/merchhub/tokensync/internal/status"
)

func newFeedServer(t *testing.T) (*httptest.Server, *connections.Manager, *status.Reporter) {
	t.Helper()

	manager := connections.NewManager(connections.TimeoutConfig{
		PongWait:   time.Second,
		PingPeriod: 500 * time.Millisecond,
		WriteWait:  time.Second,
	})
	store := credential.NewStore(nil)
	sched := scheduler.New(scheduler.Config{Interval: time.Hour}, nil, nil, store, nil)
	pool := browser.NewPool(nil, browser.PoolConfig{
		MaxSessions:     1,
		AcquireTimeout:  time.Second,
		OrphanThreshold: time.Hour,
		ReaperInterval:  time.Hour,
	})
	reporter := status.NewReporter(store, sched, pool)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		HandleStatusFeed(manager, reporter, w, r)
	}))
	t.Cleanup(srv.Close)

	return srv, manager, reporter
}

func dialFeed(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	ws, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("Failed to connect: %v", err)
	}
	t.Cleanup(func() { ws.Close() })
	return ws
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("Condition not met before timeout")
}

func TestStatusFeedSendsSnapshotOnConnect(t *testing.T) {
	srv, _, _ := newFeedServer(t)
	ws := dialFeed(t, srv)

	var update status.Update
	if err := ws.ReadJSON(&update); err != nil {
		t.Fatalf("Failed to read snapshot: %v", err)
	}
	if update.Event != "snapshot" {
		t.Errorf("Expected event 'snapshot', got %q", update.Event)
	}
	if update.Report.Service != "tokensync" {
		t.Errorf("Expected service 'tokensync', got %q", update.Report.Service)
	}
	if update.Report.Credential.Available {
		t.Error("Expected no credential in the initial snapshot")
	}
}

func TestStatusFeedDeliversBroadcasts(t *testing.T) {
	srv, manager, reporter := newFeedServer(t)
	ws := dialFeed(t, srv)

	var snapshot status.Update
	if err := ws.ReadJSON(&snapshot); err != nil {
		t.Fatalf("Failed to read snapshot: %v", err)
	}

	delivered := manager.Broadcast(status.Update{Event: "run_succeeded", Report: reporter.Report()})
	if delivered != 1 {
		t.Fatalf("Expected broadcast to reach 1 connection, got %d", delivered)
	}

	var update status.Update
	if err := ws.ReadJSON(&update); err != nil {
		t.Fatalf("Failed to read broadcast: %v", err)
	}
	if update.Event != "run_succeeded" {
		t.Errorf("Expected event 'run_succeeded', got %q", update.Event)
	}
}

func TestStatusFeedUnregistersOnDisconnect(t *testing.T) {
	srv, manager, _ := newFeedServer(t)
	ws := dialFeed(t, srv)

	var snapshot status.Update
	if err := ws.ReadJSON(&snapshot); err != nil {
		t.Fatalf("Failed to read snapshot: %v", err)
	}
	if manager.GetConnectionCount() != 1 {
		t.Fatalf("Expected 1 registered connection, got %d", manager.GetConnectionCount())
	}

	ws.Close()

	waitFor(t, time.Second, func() bool {
		return manager.GetConnectionCount() == 0
	})
}
