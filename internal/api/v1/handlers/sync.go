package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/merchhub/tokensync/internal/scheduler"
	"github.com/merchhub/tokensync/pkg/httpext"
	"github.com/rs/zerolog/log"
)

// HandleSyncTrigger runs a renewal immediately and synchronously. The caller
// holds the connection until the run finishes, which can take up to the run
// deadline times the retry budget.
func HandleSyncTrigger(sched *scheduler.Scheduler, w http.ResponseWriter, r *http.Request) {
	result, err := sched.TriggerNow()
	if err != nil {
		if errors.Is(err, scheduler.ErrRunInFlight) {
			httpext.JsonErrorWithDetails(w, http.StatusConflict, httpext.ErrorResponse{
				Error:            "run_in_flight",
				ErrorDescription: "A renewal run is already in progress",
			})
			return
		}
		httpext.JsonError(w, "Failed to trigger sync", http.StatusInternalServerError)
		return
	}

	code := http.StatusOK
	if result.Outcome != "success" {
		code = http.StatusBadGateway
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(result); err != nil {
		log.Error().Err(err).Msg("Failed to encode response")
	}
}
