package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/merchhub/tokensync/internal/browser"
	"github.com/rs/zerolog/log"
)

// CleanupResponse reports how many sessions a forced cleanup closed.
type CleanupResponse struct {
	ClosedSessions int `json:"closed_sessions"`
}

// HandlePoolStats serves the browser pool counters.
func HandlePoolStats(pool *browser.Pool, w http.ResponseWriter, r *http.Request) {
	stats := pool.Stats()

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(stats); err != nil {
		log.Error().Err(err).Msg("Failed to encode response")
	}
}

// HandlePoolCleanup force-closes every active session. A renewal run caught
// in the sweep fails and is retried by the scheduler.
func HandlePoolCleanup(pool *browser.Pool, w http.ResponseWriter, r *http.Request) {
	closed := pool.ForceCleanup()
	log.Info().Int("closed_sessions", closed).Msg("Forced pool cleanup requested")

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(CleanupResponse{ClosedSessions: closed}); err != nil {
		log.Error().Err(err).Msg("Failed to encode response")
	}
}
