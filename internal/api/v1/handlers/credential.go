package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/merchhub/tokensync/internal/credential"
	"github.com/merchhub/tokensync/pkg/httpext"
	"github.com/rs/zerolog/log"
)

// CredentialResponse is the credential plus freshness fields computed at
// request time.
type CredentialResponse struct {
	credential.Credential
	SecondsRemaining int  `json:"seconds_remaining"`
	Stale            bool `json:"stale"`
}

// HandleCredential serves the currently held credential. A stale credential
// is still served; consumers decide what staleness means for them.
func HandleCredential(store *credential.Store, w http.ResponseWriter, r *http.Request) {
	cred, err := store.Get()
	if err != nil {
		if errors.Is(err, credential.ErrNotAvailable) {
			httpext.JsonErrorWithDetails(w, http.StatusNotFound, httpext.ErrorResponse{
				Error:            "credential_not_available",
				ErrorDescription: "No credential has been acquired yet",
			})
			return
		}
		httpext.JsonError(w, "Failed to read credential", http.StatusInternalServerError)
		return
	}

	now := time.Now()
	response := CredentialResponse{
		Credential:       cred,
		SecondsRemaining: cred.SecondsRemaining(now),
		Stale:            cred.Stale(now),
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(response); err != nil {
		log.Error().Err(err).Msg("Failed to encode response")
	}
}
