package apiauth

import (
	"net/http"
	"testing"
	"time"
)

func newTestService() *Service {
	return NewService("test-secret", "ops-client", "ops-password", 15*time.Minute)
}

func TestIssueAndValidateToken(t *testing.T) {
	svc := newTestService()

	token, expiresIn, err := svc.IssueToken("ops-client")
	if err != nil {
		t.Fatalf("IssueToken failed: %v", err)
	}
	if token == "" {
		t.Fatal("IssueToken returned empty token")
	}
	if expiresIn != 900 {
		t.Errorf("expiresIn = %d, want 900", expiresIn)
	}

	result := svc.ValidateToken(token)
	if !result.Valid {
		t.Fatal("freshly issued token should validate")
	}
	if result.ClientType != "operator" {
		t.Errorf("ClientType = %q, want operator", result.ClientType)
	}
	if result.GrantType != GrantClientCredentials {
		t.Errorf("GrantType = %q, want %q", result.GrantType, GrantClientCredentials)
	}
	if !result.HasScope(ScopeSyncTrigger) || !result.HasScope(ScopePoolManage) {
		t.Errorf("Scopes = %v, want sync and pool scopes", result.Scopes)
	}
	if result.HasScope("admin:everything") {
		t.Error("HasScope should reject scopes the token does not carry")
	}
}

func TestValidateTokenWrongSecret(t *testing.T) {
	token, _, err := newTestService().IssueToken("ops-client")
	if err != nil {
		t.Fatalf("IssueToken failed: %v", err)
	}

	other := NewService("different-secret", "ops-client", "ops-password", 15*time.Minute)
	if other.ValidateToken(token).Valid {
		t.Error("token signed with another secret should not validate")
	}
}

func TestValidateTokenGarbage(t *testing.T) {
	svc := newTestService()
	if svc.ValidateToken("not.a.jwt").Valid {
		t.Error("garbage token should not validate")
	}
	if svc.ValidateToken("").Valid {
		t.Error("empty token should not validate")
	}
}

func TestValidateTokenExpired(t *testing.T) {
	svc := NewService("test-secret", "ops-client", "ops-password", -time.Minute)
	token, _, err := svc.IssueToken("ops-client")
	if err != nil {
		t.Fatalf("IssueToken failed: %v", err)
	}

	if svc.ValidateToken(token).Valid {
		t.Error("expired token should not validate")
	}
}

func TestValidateClientCredentials(t *testing.T) {
	svc := newTestService()

	cases := []struct {
		name   string
		id     string
		secret string
		want   bool
	}{
		{"valid pair", "ops-client", "ops-password", true},
		{"wrong secret", "ops-client", "nope", false},
		{"wrong id", "other", "ops-password", false},
		{"both wrong", "other", "nope", false},
		{"empty", "", "", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := svc.ValidateClientCredentials(tc.id, tc.secret); got != tc.want {
				t.Errorf("ValidateClientCredentials(%q, %q) = %v, want %v", tc.id, tc.secret, got, tc.want)
			}
		})
	}
}

func TestExtractToken(t *testing.T) {
	cases := []struct {
		name   string
		header string
		want   string
	}{
		{"bearer token", "Bearer abc123", "abc123"},
		{"missing header", "", ""},
		{"wrong scheme", "Basic abc123", ""},
		{"no token", "Bearer", ""},
		{"too many parts", "Bearer abc 123", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req, _ := http.NewRequest(http.MethodGet, "/", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			if got := ExtractToken(req); got != tc.want {
				t.Errorf("ExtractToken = %q, want %q", got, tc.want)
			}
		})
	}
}
