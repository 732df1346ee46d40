package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/merchhub/tokensync/internal/credential"
	"github.com/merchhub/tokensync/internal/scheduler"
	"github.com/merchhub/tokensync/internal/status"
	"github.com/rs/zerolog/log"
)

// HealthResponse is the liveness body. It stays cheap: two flags on top of
// process-up, no browser or Redis round trips.
type HealthResponse struct {
	Status         string `json:"status"`
	CredentialHeld bool   `json:"credential_held"`
	CircuitOpen    bool   `json:"circuit_open"`
}

// HandleStatus serves the full aggregated service status.
func HandleStatus(reporter *status.Reporter, w http.ResponseWriter, r *http.Request) {
	report := reporter.Report()

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(report); err != nil {
		log.Error().Err(err).Msg("Failed to encode response")
	}
}

// HandleHealthz answers liveness probes. Always 200 while the process is
// serving; the body carries the two facts monitors care about.
func HandleHealthz(store *credential.Store, sched *scheduler.Scheduler, w http.ResponseWriter, r *http.Request) {
	_, err := store.Get()
	response := HealthResponse{
		Status:         "ok",
		CredentialHeld: err == nil,
		CircuitOpen:    sched.Status().CircuitOpen,
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(response); err != nil {
		log.Error().Err(err).Msg("Failed to encode response")
	}
}
