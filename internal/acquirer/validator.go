package acquirer

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/merchhub/tokensync/internal/credential"
	"github.com/merchhub/tokensync/internal/syncerr"
	"github.com/rs/zerolog/log"
)

// probeDateFormat is the date layout the portal orders endpoint expects.
const probeDateFormat = "2006-01-02"

// ProbeValidator checks a credential by replaying a lightweight authenticated
// query against the portal orders API. A 200 accepts the credential; 401 and
// 403 reject it; anything else is treated as a rejection with that status.
type ProbeValidator struct {
	apiURL    string
	origin    string
	countryID int
	client    *http.Client
	now       func() time.Time
}

// NewProbeValidator builds a validator probing the given API base URL. The
// login URL only contributes its origin for the Origin and Referer headers.
func NewProbeValidator(apiURL, loginURL string, countryID int, timeout time.Duration) *ProbeValidator {
	return &ProbeValidator{
		apiURL:    strings.TrimSuffix(apiURL, "/"),
		origin:    deriveOrigin(loginURL),
		countryID: countryID,
		client:    &http.Client{Timeout: timeout},
		now:       time.Now,
	}
}

func deriveOrigin(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return rawURL
	}
	return u.Scheme + "://" + u.Host
}

func (v *ProbeValidator) Validate(ctx context.Context, cred credential.Credential) error {
	now := v.now()
	conditions := map[string]interface{}{
		"orders": map[string]interface{}{
			"date": map[string]string{
				"start": now.AddDate(0, 0, -7).Format(probeDateFormat),
				"end":   now.Format(probeDateFormat),
			},
			"shippingCountry_id": []int{v.countryID},
		},
	}
	condJSON, err := json.Marshal(conditions)
	if err != nil {
		return syncerr.NewUnexpectedError("encode probe conditions", err)
	}

	q := url.Values{}
	q.Set("offset", "0")
	q.Set("orderBy", "null")
	q.Set("orderDirection", "null")
	q.Set("conditions", string(condJSON))
	q.Set("search", "")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.apiURL+"/orders?"+q.Encode(), nil)
	if err != nil {
		return syncerr.NewUnexpectedError("build probe request", err)
	}

	req.Header.Set("Accept", "*/*")
	req.Header.Set("Accept-Language", "pt-BR,pt;q=0.9,en-US;q=0.8,en;q=0.7")
	req.Header.Set("Origin", v.origin)
	req.Header.Set("Referer", v.origin+"/")
	req.Header.Set("X-Requested-With", "XMLHttpRequest")
	req.Header.Set("Cookie", cred.CookieString())
	if cred.UserAgent != "" {
		req.Header.Set("User-Agent", cred.UserAgent)
	}

	resp, err := v.client.Do(req)
	if err != nil {
		return syncerr.NewValidationError(0, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		return nil
	case http.StatusUnauthorized, http.StatusForbidden:
		log.Warn().Int("status", resp.StatusCode).Msg("Portal rejected the credential")
		return syncerr.NewValidationError(resp.StatusCode, nil)
	default:
		log.Warn().Int("status", resp.StatusCode).Msg("Unexpected validation probe status")
		return syncerr.NewValidationError(resp.StatusCode, nil)
	}
}
