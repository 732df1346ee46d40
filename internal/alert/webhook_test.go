package alert

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestNotifyDeliversPayload(t *testing.T) {
	var got Alert
	var auth, contentType string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		contentType = r.Header.Get("Content-Type")
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("payload did not decode: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	n := NewWebhookNotifier(server.URL, "alert-key", 5*time.Second)
	err := n.Notify(context.Background(), Alert{
		Event:               EventThresholdExceeded,
		ConsecutiveFailures: 3,
		LastError:           "credential validation rejected with status 401",
	})
	if err != nil {
		t.Fatalf("Notify failed: %v", err)
	}

	if auth != "Bearer alert-key" {
		t.Errorf("Authorization = %q, want Bearer alert-key", auth)
	}
	if contentType != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", contentType)
	}
	if got.Event != EventThresholdExceeded {
		t.Errorf("event = %q, want %q", got.Event, EventThresholdExceeded)
	}
	if got.Service != "tokensync" {
		t.Errorf("service = %q, want tokensync", got.Service)
	}
	if got.ConsecutiveFailures != 3 {
		t.Errorf("consecutive_failures = %d, want 3", got.ConsecutiveFailures)
	}
	if got.LastError == "" {
		t.Error("last_error should be set")
	}
	if got.Timestamp.IsZero() {
		t.Error("timestamp should be stamped when not provided")
	}
}

func TestNotifyAcceptedStatuses(t *testing.T) {
	for _, status := range []int{http.StatusOK, http.StatusCreated, http.StatusAccepted, http.StatusNoContent} {
		t.Run(fmt.Sprintf("status_%d", status), func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(status)
			}))
			defer server.Close()

			n := NewWebhookNotifier(server.URL, "", time.Second)
			if err := n.Notify(context.Background(), Alert{Event: EventUnexpectedFailure}); err != nil {
				t.Errorf("Notify with status %d failed: %v", status, err)
			}
		})
	}
}

func TestNotifyRejectedStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	n := NewWebhookNotifier(server.URL, "", time.Second)
	if err := n.Notify(context.Background(), Alert{Event: EventUnexpectedFailure}); err == nil {
		t.Error("Notify should fail on a rejected status")
	}
}

func TestNotifyWithoutURLIsNoop(t *testing.T) {
	n := NewWebhookNotifier("", "key", time.Second)
	if err := n.Notify(context.Background(), Alert{Event: EventThresholdExceeded}); err != nil {
		t.Errorf("Notify without URL = %v, want nil", err)
	}
}

func TestNotifyTransportError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close()

	n := NewWebhookNotifier(server.URL, "", time.Second)
	if err := n.Notify(context.Background(), Alert{Event: EventUnexpectedFailure}); err == nil {
		t.Error("Notify should surface transport errors")
	}
}
