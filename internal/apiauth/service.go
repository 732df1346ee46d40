// Package apiauth issues and validates the operator bearer tokens that
// protect the mutating API surface.
package apiauth

import (
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog/log"
)

// Scopes carried by operator tokens.
const (
	ScopeSyncTrigger = "sync:trigger"
	ScopePoolManage  = "pool:manage"
)

// GrantClientCredentials is the only supported grant type.
const GrantClientCredentials = "client_credentials"

// ExtractToken pulls the bearer token out of the Authorization header.
// Returns "" when the header is absent or malformed.
func ExtractToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return ""
	}

	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || parts[0] != "Bearer" {
		log.Warn().Msg("Malformed Authorization header")
		return ""
	}

	return parts[1]
}

// TokenValidationResult carries what a validated token asserts.
type TokenValidationResult struct {
	Valid      bool
	ClientType string
	GrantType  string
	ExpiresAt  time.Time
	Scopes     []string
}

// HasScope reports whether the token carries the given scope.
func (r TokenValidationResult) HasScope(scope string) bool {
	for _, s := range r.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}

type CustomClaims struct {
	jwt.RegisteredClaims
	ClientType string   `json:"ctp"`
	GrantType  string   `json:"gty"`
	Scopes     []string `json:"scp"`
}

// Service mints and validates operator tokens against the configured client.
type Service struct {
	secret       []byte
	clientID     string
	clientSecret string
	tokenTTL     time.Duration
}

func NewService(secret, clientID, clientSecret string, tokenTTL time.Duration) *Service {
	return &Service{
		secret:       []byte(secret),
		clientID:     clientID,
		clientSecret: clientSecret,
		tokenTTL:     tokenTTL,
	}
}

// ValidateClientCredentials checks a client id and secret pair in constant
// time.
func (s *Service) ValidateClientCredentials(clientID, clientSecret string) bool {
	idOK := subtle.ConstantTimeCompare([]byte(clientID), []byte(s.clientID)) == 1
	secretOK := subtle.ConstantTimeCompare([]byte(clientSecret), []byte(s.clientSecret)) == 1
	return idOK && secretOK
}

// IssueToken signs a fresh operator token. Returns the token and its
// lifetime in seconds.
func (s *Service) IssueToken(clientID string) (string, int, error) {
	now := time.Now()
	claims := CustomClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   clientID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.tokenTTL)),
		},
		ClientType: "operator",
		GrantType:  GrantClientCredentials,
		Scopes:     []string{ScopeSyncTrigger, ScopePoolManage},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", 0, err
	}

	log.Info().Str("client_id", clientID).Msg("Operator token issued")
	return signed, int(s.tokenTTL.Seconds()), nil
}

// ValidateToken parses and checks an operator token.
func (s *Service) ValidateToken(tokenString string) TokenValidationResult {
	result := TokenValidationResult{Valid: false}

	token, err := jwt.ParseWithClaims(tokenString, &CustomClaims{}, func(token *jwt.Token) (interface{}, error) {
		return s.secret, nil
	})
	if err != nil {
		log.Debug().Err(err).Msg("Failed to parse token")
		return result
	}

	claims, ok := token.Claims.(*CustomClaims)
	if !ok || !token.Valid {
		log.Debug().Msg("Invalid token claims")
		return result
	}

	if claims.ClientType == "" {
		log.Debug().Msg("Missing client type in token")
		return result
	}
	if claims.GrantType != GrantClientCredentials {
		log.Debug().Str("grant_type", claims.GrantType).Msg("Invalid grant type in token")
		return result
	}

	result.Valid = true
	result.ClientType = claims.ClientType
	result.GrantType = claims.GrantType
	result.ExpiresAt = claims.ExpiresAt.Time
	result.Scopes = claims.Scopes
	return result
}
