package auth

import (
	"encoding/json"
	"net/http"

	"github.com/merchhub/tokensync/internal/apiauth"
	"github.com/merchhub/tokensync/pkg/httpext"
	"github.com/rs/zerolog/log"
)

type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

type ClientCredentialsRequest struct {
	GrantType    string `json:"grant_type"`
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
}

// HandleToken mints an operator token from client credentials.
func HandleToken(authService *apiauth.Service, w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httpext.JsonError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req ClientCredentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpext.JsonError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if req.GrantType != apiauth.GrantClientCredentials {
		httpext.JsonError(w, "Invalid grant type", http.StatusBadRequest)
		return
	}

	if !authService.ValidateClientCredentials(req.ClientID, req.ClientSecret) {
		httpext.JsonError(w, "Invalid client credentials", http.StatusUnauthorized)
		return
	}

	tokenString, expiresIn, err := authService.IssueToken(req.ClientID)
	if err != nil {
		httpext.JsonError(w, "Error creating token", http.StatusInternalServerError)
		return
	}

	response := TokenResponse{
		AccessToken: tokenString,
		TokenType:   "Bearer",
		ExpiresIn:   expiresIn,
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(response); err != nil {
		log.Error().Err(err).Msg("Failed to encode response")
		return
	}
}
