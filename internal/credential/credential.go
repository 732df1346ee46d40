// Package credential defines the session credential record and the
// single-slot store that holds the most recently fetched one.
package credential

import (
	"strings"
	"time"
)

// Attribute is one named value captured alongside the tokens, in capture order.
type Attribute struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Credential is one complete set of session artifacts fetched from the portal.
type Credential struct {
	PrimaryToken  string      `json:"primary_token"`
	ExtendedToken string      `json:"extended_token"`
	RefreshToken  string      `json:"refresh_token,omitempty"`
	Attributes    []Attribute `json:"attributes,omitempty"`
	UserAgent     string      `json:"user_agent,omitempty"`
	FetchedAt     time.Time   `json:"fetched_at"`
	ExpiresAt     time.Time   `json:"expires_at"`
}

// New returns a credential fetched at the given time. Expiry is the fetch
// time plus the lifetime, minus the safety margin.
func New(primary, extended string, fetchedAt time.Time, lifetime, margin time.Duration) Credential {
	return Credential{
		PrimaryToken:  primary,
		ExtendedToken: extended,
		FetchedAt:     fetchedAt,
		ExpiresAt:     fetchedAt.Add(lifetime - margin),
	}
}

// Stale reports whether the credential is past its expiry at the given time.
// A stale credential is still served to callers until a fresh one lands.
func (c Credential) Stale(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}

// SecondsRemaining returns whole seconds until expiry, never negative.
func (c Credential) SecondsRemaining(now time.Time) int {
	remaining := c.ExpiresAt.Sub(now)
	if remaining < 0 {
		return 0
	}
	return int(remaining.Seconds())
}

// CookieString renders the credential as a Cookie header value. Tokens come
// first, then the remaining attributes in capture order.
func (c Credential) CookieString() string {
	var b strings.Builder
	b.WriteString("token=")
	b.WriteString(c.PrimaryToken)
	b.WriteString("; e_token=")
	b.WriteString(c.ExtendedToken)
	if c.RefreshToken != "" {
		b.WriteString("; refresh_token=")
		b.WriteString(c.RefreshToken)
	}
	for _, attr := range c.Attributes {
		b.WriteString("; ")
		b.WriteString(attr.Name)
		b.WriteString("=")
		b.WriteString(attr.Value)
	}
	return b.String()
}
