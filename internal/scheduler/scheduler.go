// Package scheduler runs the periodic credential renewal loop, retries
// failed runs with backoff, and raises operator alerts when failures streak.
package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/merchhub/tokensync/internal/acquirer"
	"github.com/merchhub/tokensync/internal/alert"
	"github.com/merchhub/tokensync/internal/browser"
	"github.com/merchhub/tokensync/internal/credential"
	"github.com/merchhub/tokensync/internal/syncerr"
	"github.com/rs/zerolog/log"
)

// ErrRunInFlight is returned by TriggerNow while another run holds the slot.
var ErrRunInFlight = errors.New("renewal run already in flight")

// Runner executes one login flow against a browser session.
type Runner interface {
	Run(ctx context.Context, drv acquirer.BrowserDriver) (credential.Credential, error)
}

// Config holds the renewal loop timing and failure policy.
type Config struct {
	// Interval between scheduled runs. Must be shorter than the credential
	// lifetime minus the safety margin or renewals cannot keep up.
	Interval time.Duration
	// MaxAttempts bounds retries within a single run.
	MaxAttempts int
	// BaseDelay is the first backoff delay; it doubles per attempt.
	BaseDelay time.Duration
	// FailureThreshold is how many consecutive failed runs open the circuit.
	FailureThreshold int
	// SyncOnStartup runs a renewal immediately when the loop starts.
	SyncOnStartup bool
}

// RunResult is the outcome of one renewal run.
type RunResult struct {
	RunID    string `json:"run_id"`
	Outcome  string `json:"outcome"`
	Attempts int    `json:"attempts"`
	Error    string `json:"error,omitempty"`
}

// Status is a snapshot of the renewal loop's counters and breaker state.
type Status struct {
	Running             bool       `json:"running"`
	InFlight            bool       `json:"in_flight"`
	CircuitOpen         bool       `json:"circuit_open"`
	SyncCount           int        `json:"sync_count"`
	SuccessCount        int        `json:"success_count"`
	ErrorCount          int        `json:"error_count"`
	ConsecutiveFailures int        `json:"consecutive_failures"`
	LastError           string     `json:"last_error,omitempty"`
	LastErrorKind       string     `json:"last_error_kind,omitempty"`
	LastSyncAt          *time.Time `json:"last_sync_at,omitempty"`
	LastSuccessAt       *time.Time `json:"last_success_at,omitempty"`
	NextSyncAt          *time.Time `json:"next_sync_at,omitempty"`
	IntervalSeconds     int        `json:"interval_seconds"`
}

// Scheduler owns the renewal loop. At most one run is in flight at any time;
// scheduled ticks that land during a run are skipped, and manual triggers are
// rejected with ErrRunInFlight. The circuit breaker only gates alerting:
// scheduled runs keep going while it is open.
type Scheduler struct {
	cfg      Config
	pool     *browser.Pool
	runner   Runner
	store    *credential.Store
	notifier alert.Notifier

	// OnEvent, when set, receives run and breaker events with a fresh
	// status snapshot. Used to push updates to live observers.
	OnEvent func(event string, st Status)

	gate chan struct{}

	mu                  sync.Mutex
	running             bool
	inFlight            bool
	breakerOpen         bool
	syncCount           int
	successCount        int
	errorCount          int
	consecutiveFailures int
	lastError           string
	lastErrorKind       string
	lastSyncAt          time.Time
	lastSuccessAt       time.Time
	nextSyncAt          time.Time

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error

	stopCh    chan struct{}
	stoppedCh chan struct{}
}

// New returns a scheduler wired to the given pool, runner, store and
// notifier. Call Start in its own goroutine to begin scheduled runs.
func New(cfg Config, pool *browser.Pool, runner Runner, store *credential.Store, notifier alert.Notifier) *Scheduler {
	return &Scheduler{
		cfg:       cfg,
		pool:      pool,
		runner:    runner,
		store:     store,
		notifier:  notifier,
		gate:      make(chan struct{}, 1),
		now:       time.Now,
		sleep:     sleepContext,
		stopCh:    make(chan struct{}),
		stoppedCh: make(chan struct{}),
	}
}

// Start runs the scheduled loop until Stop is called. Blocks; run it in its
// own goroutine.
func (s *Scheduler) Start() {
	defer close(s.stoppedCh)

	s.mu.Lock()
	s.running = true
	s.mu.Unlock()

	log.Info().
		Dur("interval", s.cfg.Interval).
		Int("max_attempts", s.cfg.MaxAttempts).
		Int("failure_threshold", s.cfg.FailureThreshold).
		Msg("Renewal scheduler started")

	if s.cfg.SyncOnStartup {
		s.tryRun("startup")
	}

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()
	s.setNextSync(s.now().Add(s.cfg.Interval))

	for {
		select {
		case <-ticker.C:
			s.tryRun("scheduled")
			s.setNextSync(s.now().Add(s.cfg.Interval))
		case <-s.stopCh:
			s.mu.Lock()
			s.running = false
			s.mu.Unlock()
			log.Info().Msg("Renewal scheduler stopped")
			return
		}
	}
}

// Stop halts the loop and waits for it, including any scheduled run still in
// flight, to finish.
func (s *Scheduler) Stop() {
	close(s.stopCh)
	<-s.stoppedCh
}

// TriggerNow runs a renewal synchronously and returns its result. Fails fast
// with ErrRunInFlight when a run is already going.
func (s *Scheduler) TriggerNow() (RunResult, error) {
	select {
	case s.gate <- struct{}{}:
	default:
		return RunResult{}, ErrRunInFlight
	}
	defer func() { <-s.gate }()

	return s.runOnce("manual"), nil
}

// tryRun claims the run slot if free; otherwise the tick is dropped.
func (s *Scheduler) tryRun(trigger string) {
	select {
	case s.gate <- struct{}{}:
	default:
		log.Warn().Str("trigger", trigger).Msg("Renewal run already in flight, skipping")
		return
	}
	defer func() { <-s.gate }()

	s.runOnce(trigger)
}

// runOnce performs one renewal run with retries. The run always gets its own
// background context: a run in flight is never cancelled from outside, it
// finishes or fails on its own deadlines.
func (s *Scheduler) runOnce(trigger string) RunResult {
	ctx := context.Background()
	runID := uuid.New().String()

	s.mu.Lock()
	s.inFlight = true
	s.syncCount++
	s.lastSyncAt = s.now()
	s.mu.Unlock()

	log.Info().Str("run_id", runID).Str("trigger", trigger).Msg("Renewal run started")

	var lastErr error
	attempts := 0
	for attempt := 1; attempt <= s.cfg.MaxAttempts; attempt++ {
		attempts = attempt

		cred, err := s.attempt(ctx)
		if err == nil {
			if perr := s.store.Put(ctx, cred); perr != nil {
				// Persistence trouble degrades durability but never fails
				// the run; the fresh credential is live in memory.
				log.Warn().Err(perr).Msg("Credential stored without durable backing")
			}
			return s.recordSuccess(runID, trigger, attempt)
		}

		lastErr = categorize(err)
		if !syncerr.Retryable(lastErr) {
			log.Error().
				Err(lastErr).
				Str("run_id", runID).
				Str("kind", syncerr.Kind(lastErr)).
				Msg("Renewal attempt failed with non-retryable error")
			break
		}

		if attempt < s.cfg.MaxAttempts {
			delay := s.cfg.BaseDelay * (1 << (attempt - 1))
			log.Warn().
				Err(lastErr).
				Str("run_id", runID).
				Int("attempt", attempt).
				Dur("backoff", delay).
				Msg("Renewal attempt failed, backing off")
			if err := s.sleep(ctx, delay); err != nil {
				break
			}
		}
	}

	return s.recordFailure(ctx, runID, trigger, attempts, lastErr)
}

// attempt acquires a fresh browser session, drives one login flow through
// it and always gives the session back.
func (s *Scheduler) attempt(ctx context.Context) (credential.Credential, error) {
	sess, err := s.pool.Acquire(ctx)
	if err != nil {
		return credential.Credential{}, err
	}
	defer s.pool.Release(sess)

	return s.runner.Run(ctx, sess)
}

func (s *Scheduler) recordSuccess(runID, trigger string, attempts int) RunResult {
	s.mu.Lock()
	s.inFlight = false
	s.successCount++
	s.consecutiveFailures = 0
	s.lastSuccessAt = s.now()
	s.lastError = ""
	s.lastErrorKind = ""
	closed := s.breakerOpen
	s.breakerOpen = false
	s.mu.Unlock()

	log.Info().
		Str("run_id", runID).
		Str("trigger", trigger).
		Int("attempts", attempts).
		Msg("Renewal run succeeded")

	if closed {
		log.Info().Msg("Failure streak cleared, circuit closed")
		s.emit("breaker_closed")
	}
	s.emit("run_succeeded")

	return RunResult{RunID: runID, Outcome: "success", Attempts: attempts}
}

func (s *Scheduler) recordFailure(ctx context.Context, runID, trigger string, attempts int, runErr error) RunResult {
	kind := syncerr.Kind(runErr)

	s.mu.Lock()
	s.inFlight = false
	s.errorCount++
	s.consecutiveFailures++
	s.lastError = runErr.Error()
	s.lastErrorKind = kind
	failures := s.consecutiveFailures
	opened := false
	if !s.breakerOpen && failures >= s.cfg.FailureThreshold {
		s.breakerOpen = true
		opened = true
	}
	s.mu.Unlock()

	log.Error().
		Err(runErr).
		Str("run_id", runID).
		Str("trigger", trigger).
		Str("kind", kind).
		Int("attempts", attempts).
		Int("consecutive_failures", failures).
		Msg("Renewal run failed")

	// Unexpected failures alert on every occurrence; categorized ones only
	// alert on the threshold edge below.
	if syncerr.IsUnexpectedError(runErr) {
		s.notify(ctx, alert.Alert{
			Event:               alert.EventUnexpectedFailure,
			ConsecutiveFailures: failures,
			LastError:           runErr.Error(),
		})
	}

	if opened {
		log.Error().
			Int("consecutive_failures", failures).
			Int("threshold", s.cfg.FailureThreshold).
			Msg("Failure threshold reached, circuit opened")
		s.notify(ctx, alert.Alert{
			Event:               alert.EventThresholdExceeded,
			ConsecutiveFailures: failures,
			LastError:           runErr.Error(),
		})
		s.emit("breaker_opened")
	}
	s.emit("run_failed")

	return RunResult{RunID: runID, Outcome: "failure", Attempts: attempts, Error: runErr.Error()}
}

// Status returns a snapshot of the loop state.
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Status{
		Running:             s.running,
		InFlight:            s.inFlight,
		CircuitOpen:         s.breakerOpen,
		SyncCount:           s.syncCount,
		SuccessCount:        s.successCount,
		ErrorCount:          s.errorCount,
		ConsecutiveFailures: s.consecutiveFailures,
		LastError:           s.lastError,
		LastErrorKind:       s.lastErrorKind,
		LastSyncAt:          timePtr(s.lastSyncAt),
		LastSuccessAt:       timePtr(s.lastSuccessAt),
		NextSyncAt:          timePtr(s.nextSyncAt),
		IntervalSeconds:     int(s.cfg.Interval.Seconds()),
	}
}

func (s *Scheduler) setNextSync(t time.Time) {
	s.mu.Lock()
	s.nextSyncAt = t
	s.mu.Unlock()
}

func (s *Scheduler) notify(ctx context.Context, a alert.Alert) {
	if s.notifier == nil {
		return
	}
	// Delivery outcome is logged by the notifier; a failed alert never
	// affects the run result.
	_ = s.notifier.Notify(ctx, a)
}

func (s *Scheduler) emit(event string) {
	if s.OnEvent == nil {
		return
	}
	s.OnEvent(event, s.Status())
}

// categorize maps stray errors into the unexpected bucket so retry and
// alerting policy can key off the error kind alone.
func categorize(err error) error {
	switch {
	case syncerr.IsAcquisitionTimeout(err),
		syncerr.IsLoginError(err),
		syncerr.IsExtractionError(err),
		syncerr.IsValidationError(err),
		syncerr.IsPersistenceError(err),
		syncerr.IsUnexpectedError(err):
		return err
	default:
		return syncerr.NewUnexpectedError("renewal attempt", err)
	}
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	copied := t
	return &copied
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
