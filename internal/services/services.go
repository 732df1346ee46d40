// Package services builds and owns the object graph of the running service.
package services

import (
	"context"
	"sync"

	"github.com/merchhub/tokensync/internal/acquirer"
	"github.com/merchhub/tokensync/internal/alert"
	"github.com/merchhub/tokensync/internal/apiauth"
	"github.com/merchhub/tokensync/internal/browser"
	"github.com/merchhub/tokensync/internal/config"
	"github.com/merchhub/tokensync/internal/connections"
	"github.com/merchhub/tokensync/internal/credential"
	"github.com/merchhub/tokensync/internal/infrastructure/redis"
	"github.com/merchhub/tokensync/internal/scheduler"
	"github.com/merchhub/tokensync/internal/status"
	"github.com/rs/zerolog/log"
)

var (
	// Mutex for thread-safe initialization
	servicesMu sync.RWMutex
)

type Services struct {
	cfg          *config.Config
	redisService *redis.Service
	store        *credential.Store
	pool         *browser.Pool
	scheduler    *scheduler.Scheduler
	notifier     *alert.WebhookNotifier
	authService  *apiauth.Service
	connManager  *connections.Manager
	reporter     *status.Reporter
}

// InitializeServices initializes all required services
func InitializeServices(cfg *config.Config) (*Services, error) {
	servicesMu.Lock()
	defer servicesMu.Unlock()

	log.Info().Msg("Initializing core services")

	// Initialize Redis service (optional)
	redisService := redis.NewService(cfg.RedisAddress, cfg.RedisPassword, cfg.RedisDB)
	log.Info().Msg("Initializing Redis service")

	// Initialize credential store with optional Redis persistence
	var persister credential.Persister
	if redisService != nil {
		persister = credential.NewRedisPersister(redisService)
	}
	store := credential.NewStore(persister)
	if err := store.Reload(context.Background()); err != nil {
		log.Warn().Err(err).Msg("Could not reload persisted credential, starting empty")
	}
	log.Info().Msg("Initializing credential store")

	// Initialize browser pool
	launcher := browser.NewRodLauncher(cfg.BrowserHeadless, cfg.BrowserBin)
	pool := browser.NewPool(launcher, browser.PoolConfig{
		MaxSessions:     cfg.MaxConcurrentSessions,
		AcquireTimeout:  cfg.SessionAcquireTimeout(),
		OrphanThreshold: cfg.OrphanThreshold(),
		ReaperInterval:  cfg.ReaperInterval(),
	})
	log.Info().Int("max_sessions", cfg.MaxConcurrentSessions).Msg("Initializing browser pool")

	// Initialize acquirer with validation probe
	validator := acquirer.NewProbeValidator(cfg.PortalAPIURL, cfg.PortalLoginURL, cfg.ValidationCountryID, cfg.StateTimeout())
	runner := acquirer.New(acquirer.Config{
		LoginURL:     cfg.PortalLoginURL,
		Email:        cfg.PortalEmail,
		Password:     cfg.PortalPassword,
		StateTimeout: cfg.StateTimeout(),
		RunDeadline:  cfg.RunDeadline(),
		Lifetime:     cfg.TokenLifetime(),
		Margin:       cfg.SafetyMargin(),
	}, validator)
	log.Info().Msg("Initializing credential acquirer")

	// Initialize alert notifier (optional, no-op without a webhook URL)
	notifier := alert.NewWebhookNotifier(cfg.AlertWebhookURL, cfg.AlertAPIKey, cfg.AlertTimeout())

	// Initialize renewal scheduler
	sched := scheduler.New(scheduler.Config{
		Interval:         cfg.SyncInterval(),
		MaxAttempts:      cfg.MaxRetryAttempts,
		BaseDelay:        cfg.RetryBaseDelay(),
		FailureThreshold: cfg.FailureThreshold,
		SyncOnStartup:    cfg.SyncOnStartup,
	}, pool, runner, store, notifier)
	log.Info().Msg("Initializing renewal scheduler")

	// Initialize websocket connection manager and status reporting
	connManager := connections.NewManager(connections.DefaultTimeouts)
	reporter := status.NewReporter(store, sched, pool)

	// Push a fresh report to live observers on every run and breaker event
	sched.OnEvent = func(event string, _ scheduler.Status) {
		connManager.Broadcast(status.Update{Event: event, Report: reporter.Report()})
	}

	// Initialize operator token service
	authService := apiauth.NewService(cfg.JWTSecret, cfg.OperatorClientID, cfg.OperatorClientSecret, cfg.OperatorTokenTTL())

	log.Info().Msg("All services initialized successfully")

	return &Services{
		cfg:          cfg,
		redisService: redisService,
		store:        store,
		pool:         pool,
		scheduler:    sched,
		notifier:     notifier,
		authService:  authService,
		connManager:  connManager,
		reporter:     reporter,
	}, nil
}

// StartBackground launches the pool reaper and the renewal loop.
func (s *Services) StartBackground() {
	go s.pool.Start()
	go s.scheduler.Start()
}

// Shutdown stops background loops and releases held resources. Safe to call
// once, after StartBackground.
func (s *Services) Shutdown() {
	log.Info().Msg("Shutting down services")

	s.scheduler.Stop()
	s.pool.Stop()

	if closed := s.pool.ForceCleanup(); closed > 0 {
		log.Info().Int("closed_sessions", closed).Msg("Closed remaining browser sessions")
	}

	s.connManager.CloseAll()

	if s.redisService != nil {
		if err := s.redisService.Close(); err != nil {
			log.Error().Err(err).Msg("Failed to close Redis connection")
		}
	}

	log.Info().Msg("Shutdown complete")
}

// GetConfig returns the loaded configuration
func (s *Services) GetConfig() *config.Config {
	return s.cfg
}

// GetCredentialStore returns the credential store
func (s *Services) GetCredentialStore() *credential.Store {
	return s.store
}

// GetPool returns the browser session pool
func (s *Services) GetPool() *browser.Pool {
	return s.pool
}

// GetScheduler returns the renewal scheduler
func (s *Services) GetScheduler() *scheduler.Scheduler {
	return s.scheduler
}

// GetAuthService returns the operator token service
func (s *Services) GetAuthService() *apiauth.Service {
	return s.authService
}

// GetConnectionManager returns the websocket connection manager
func (s *Services) GetConnectionManager() *connections.Manager {
	return s.connManager
}

// GetReporter returns the status reporter
func (s *Services) GetReporter() *status.Reporter {
	return s.reporter
}
