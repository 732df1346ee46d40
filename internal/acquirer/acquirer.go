// Package acquirer drives a browser session through the portal login flow
// and turns the resulting cookies into a validated credential.
package acquirer

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/merchhub/tokensync/internal/browser"
	"github.com/merchhub/tokensync/internal/credential"
	"github.com/merchhub/tokensync/internal/syncerr"
	"github.com/rs/zerolog/log"
)

// State is one step of the acquisition flow. Runs move through the states
// in order; any failure jumps straight to StateFailed.
type State string

const (
	StateInit              State = "init"
	StateNavigateLogin     State = "navigate_login"
	StateSubmitCredentials State = "submit_credentials"
	StateAwaitRedirect     State = "await_redirect"
	StateExtractArtifact   State = "extract_artifact"
	StateValidateArtifact  State = "validate_artifact"
	StateDone              State = "done"
	StateFailed            State = "failed"
)

// Portal login page selectors.
const (
	emailSelector    = "#input-email"
	passwordSelector = "#input-password"
	submitSelector   = "a[role='button'].btn.tone-default"
)

// redirectPollInterval is how often the post-submit URL is checked.
const redirectPollInterval = 250 * time.Millisecond

// Essential cookie names. A login that does not yield both is treated as an
// extraction failure even when the redirect looked fine.
const (
	cookiePrimary  = "token"
	cookieExtended = "e_token"
	cookieRefresh  = "refresh_token"
)

// BrowserDriver is the slice of a browser session the acquirer drives.
// Implemented by browser.Session; tests substitute fakes.
type BrowserDriver interface {
	Navigate(ctx context.Context, url string) error
	FillField(ctx context.Context, selector, value string) error
	ClickElement(ctx context.Context, selector string) error
	CurrentURL(ctx context.Context) (string, error)
	Cookies(ctx context.Context) ([]browser.Cookie, error)
	UserAgent(ctx context.Context) (string, error)
}

// Validator checks an extracted credential against the portal API before it
// is accepted.
type Validator interface {
	Validate(ctx context.Context, cred credential.Credential) error
}

// Config holds the portal coordinates and timing budgets for one acquirer.
type Config struct {
	LoginURL string
	Email    string
	Password string

	// StateTimeout bounds each individual state; RunDeadline bounds the
	// whole run regardless of how the budget is spent.
	StateTimeout time.Duration
	RunDeadline  time.Duration

	Lifetime time.Duration
	Margin   time.Duration
}

// Acquirer executes the login state machine against a browser session.
type Acquirer struct {
	cfg       Config
	validator Validator

	now        func() time.Time
	transition func(State)
}

// New returns an acquirer for the configured portal.
func New(cfg Config, validator Validator) *Acquirer {
	return &Acquirer{
		cfg:       cfg,
		validator: validator,
		now:       time.Now,
	}
}

// Run drives the session from login page to validated credential. The
// returned error is always one of the typed acquisition errors.
func (a *Acquirer) Run(ctx context.Context, drv BrowserDriver) (credential.Credential, error) {
	runCtx := ctx
	if a.cfg.RunDeadline > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, a.cfg.RunDeadline)
		defer cancel()
	}

	a.step(StateInit)

	a.step(StateNavigateLogin)
	if err := a.withStateTimeout(runCtx, func(sc context.Context) error {
		return drv.Navigate(sc, a.cfg.LoginURL)
	}); err != nil {
		return a.fail(syncerr.NewLoginError("navigate", err))
	}

	a.step(StateSubmitCredentials)
	if err := a.withStateTimeout(runCtx, func(sc context.Context) error {
		if err := drv.FillField(sc, emailSelector, a.cfg.Email); err != nil {
			return err
		}
		if err := drv.FillField(sc, passwordSelector, a.cfg.Password); err != nil {
			return err
		}
		return drv.ClickElement(sc, submitSelector)
	}); err != nil {
		return a.fail(syncerr.NewLoginError("submit", err))
	}

	a.step(StateAwaitRedirect)
	if err := a.withStateTimeout(runCtx, func(sc context.Context) error {
		return a.awaitRedirect(sc, drv)
	}); err != nil {
		return a.fail(syncerr.NewLoginError("redirect", err))
	}

	a.step(StateExtractArtifact)
	var cred credential.Credential
	if err := a.withStateTimeout(runCtx, func(sc context.Context) error {
		var err error
		cred, err = a.extract(sc, drv)
		return err
	}); err != nil {
		return a.fail(err)
	}

	a.step(StateValidateArtifact)
	if err := a.withStateTimeout(runCtx, func(sc context.Context) error {
		return a.validator.Validate(sc, cred)
	}); err != nil {
		return a.fail(err)
	}

	a.step(StateDone)
	log.Info().
		Time("fetched_at", cred.FetchedAt).
		Time("expires_at", cred.ExpiresAt).
		Msg("Credential acquired and validated")
	return cred, nil
}

// step logs the state transition and notifies the optional hook.
func (a *Acquirer) step(next State) {
	log.Debug().Str("state", string(next)).Msg("Acquisition state")
	if a.transition != nil {
		a.transition(next)
	}
}

func (a *Acquirer) fail(err error) (credential.Credential, error) {
	a.step(StateFailed)
	return credential.Credential{}, err
}

// withStateTimeout runs fn under the per-state budget, still capped by the
// run deadline carried in ctx.
func (a *Acquirer) withStateTimeout(ctx context.Context, fn func(context.Context) error) error {
	if a.cfg.StateTimeout <= 0 {
		return fn(ctx)
	}
	stateCtx, cancel := context.WithTimeout(ctx, a.cfg.StateTimeout)
	defer cancel()
	return fn(stateCtx)
}

// awaitRedirect polls the page URL until it leaves the login page. The
// portal redirects to the dashboard on success; staying on a URL containing
// "login" past the budget means the credentials were rejected.
func (a *Acquirer) awaitRedirect(ctx context.Context, drv BrowserDriver) error {
	ticker := time.NewTicker(redirectPollInterval)
	defer ticker.Stop()

	for {
		url, err := drv.CurrentURL(ctx)
		if err != nil {
			return err
		}
		if !strings.Contains(strings.ToLower(url), "login") {
			return nil
		}

		select {
		case <-ticker.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// extract reads the session cookies and builds the credential record. The
// primary and extended tokens are required; the refresh token and anything
// else the portal set ride along.
func (a *Acquirer) extract(ctx context.Context, drv BrowserDriver) (credential.Credential, error) {
	cookies, err := drv.Cookies(ctx)
	if err != nil {
		return credential.Credential{}, syncerr.NewExtractionError(nil, fmt.Sprintf("read cookies: %v", err))
	}

	var primary, extended, refresh string
	var attrs []credential.Attribute
	for _, c := range cookies {
		switch c.Name {
		case cookiePrimary:
			primary = c.Value
		case cookieExtended:
			extended = c.Value
		case cookieRefresh:
			refresh = c.Value
		default:
			attrs = append(attrs, credential.Attribute{Name: c.Name, Value: c.Value})
		}
	}

	var missing []string
	if primary == "" {
		missing = append(missing, cookiePrimary)
	}
	if extended == "" {
		missing = append(missing, cookieExtended)
	}
	if len(missing) > 0 {
		return credential.Credential{}, syncerr.NewExtractionError(missing, "")
	}

	cred := credential.New(primary, extended, a.now(), a.cfg.Lifetime, a.cfg.Margin)
	cred.RefreshToken = refresh
	cred.Attributes = attrs

	if ua, err := drv.UserAgent(ctx); err != nil {
		log.Warn().Err(err).Msg("Could not read user agent, validation probe will omit it")
	} else {
		cred.UserAgent = ua
	}

	return cred, nil
}
