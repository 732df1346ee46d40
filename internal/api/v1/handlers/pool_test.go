package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/merchhub/tokensync/internal/browser"
)

func TestHandlePoolStats(t *testing.T) {
	pool := browser.NewPool(&stubLauncher{}, browser.PoolConfig{
		MaxSessions:     2,
		AcquireTimeout:  time.Second,
		OrphanThreshold: time.Hour,
		ReaperInterval:  time.Hour,
	})

	sess, err := pool.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	defer pool.Release(sess)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/v1/pool/stats", nil)
	HandlePoolStats(pool, rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status code %d, got %d", http.StatusOK, rec.Code)
	}

	var stats browser.Stats
	if err := json.NewDecoder(rec.Body).Decode(&stats); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if stats.Capacity != 2 {
		t.Errorf("Expected capacity 2, got %d", stats.Capacity)
	}
	if stats.Active != 1 {
		t.Errorf("Expected 1 active session, got %d", stats.Active)
	}
	if stats.TotalAcquired != 1 {
		t.Errorf("Expected 1 total acquired, got %d", stats.TotalAcquired)
	}
}

func TestHandlePoolCleanup(t *testing.T) {
	pool := browser.NewPool(&stubLauncher{}, browser.PoolConfig{
		MaxSessions:     2,
		AcquireTimeout:  time.Second,
		OrphanThreshold: time.Hour,
		ReaperInterval:  time.Hour,
	})

	for i := 0; i < 2; i++ {
		if _, err := pool.Acquire(context.Background()); err != nil {
			t.Fatalf("Acquire failed: %v", err)
		}
	}

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/v1/pool/cleanup", nil)
	HandlePoolCleanup(pool, rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status code %d, got %d", http.StatusOK, rec.Code)
	}

	var resp CleanupResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if resp.ClosedSessions != 2 {
		t.Errorf("Expected 2 closed sessions, got %d", resp.ClosedSessions)
	}

	if active := pool.Stats().Active; active != 0 {
		t.Errorf("Expected empty pool after cleanup, got %d active", active)
	}
}
