package browser

import (
	"context"
	"sync"
	"time"

	"github.com/merchhub/tokensync/internal/syncerr"
	"github.com/rs/zerolog/log"
)

// PoolConfig bounds the pool and tunes its reaper.
type PoolConfig struct {
	// MaxSessions caps how many sessions may be live at once.
	MaxSessions int
	// AcquireTimeout is how long Acquire waits for a free slot.
	AcquireTimeout time.Duration
	// OrphanThreshold is the inactivity age after which the reaper closes a session.
	OrphanThreshold time.Duration
	// ReaperInterval is how often the reaper scans for orphans.
	ReaperInterval time.Duration
}

// DefaultPoolConfig returns the production pool bounds.
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		MaxSessions:     2,
		AcquireTimeout:  30 * time.Second,
		OrphanThreshold: 5 * time.Minute,
		ReaperInterval:  time.Minute,
	}
}

// Stats is a point-in-time view of the pool.
type Stats struct {
	Capacity       int `json:"capacity"`
	Active         int `json:"active"`
	Idle           int `json:"idle"`
	TotalAcquired  int `json:"total_acquired"`
	TotalReleased  int `json:"total_released"`
	OrphansReaped  int `json:"orphans_reaped"`
	ForcedCleanups int `json:"forced_cleanups"`
}

// Pool hands out browser sessions up to a fixed cap. Sessions that stop
// seeing activity are force-closed by the reaper so a leaked session cannot
// hold a slot forever.
type Pool struct {
	launcher Launcher
	cfg      PoolConfig

	slots chan struct{}

	mu             sync.Mutex
	active         map[string]*Session
	totalAcquired  int
	totalReleased  int
	orphansReaped  int
	forcedCleanups int

	stopCh    chan struct{}
	stoppedCh chan struct{}
}

// NewPool returns a pool using the given launcher for new sessions.
func NewPool(launcher Launcher, cfg PoolConfig) *Pool {
	if cfg.MaxSessions < 1 {
		cfg.MaxSessions = 1
	}
	return &Pool{
		launcher:  launcher,
		cfg:       cfg,
		slots:     make(chan struct{}, cfg.MaxSessions),
		active:    make(map[string]*Session),
		stopCh:    make(chan struct{}),
		stoppedCh: make(chan struct{}),
	}
}

// Acquire blocks until a slot frees up, then launches a session in it. When
// no slot frees within the configured timeout, an AcquisitionTimeoutError
// comes back and the caller retries on the next cycle.
func (p *Pool) Acquire(ctx context.Context) (*Session, error) {
	waitCtx := ctx
	if p.cfg.AcquireTimeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, p.cfg.AcquireTimeout)
		defer cancel()
	}

	start := time.Now()
	select {
	case p.slots <- struct{}{}:
	case <-waitCtx.Done():
		return nil, syncerr.NewAcquisitionTimeoutError(time.Since(start), p.cfg.MaxSessions)
	}

	sess, err := p.launcher.Launch(ctx)
	if err != nil {
		<-p.slots
		return nil, err
	}

	p.mu.Lock()
	p.active[sess.ID] = sess
	p.totalAcquired++
	p.mu.Unlock()

	log.Debug().Str("session_id", sess.ID).Msg("Session acquired")
	return sess, nil
}

// Release closes the session and frees its slot. Releasing a session twice,
// or one the reaper already claimed, is a no-op.
func (p *Pool) Release(sess *Session) {
	if sess == nil {
		return
	}
	if !p.remove(sess.ID) {
		return
	}

	p.mu.Lock()
	p.totalReleased++
	p.mu.Unlock()

	if err := sess.Close(); err != nil {
		log.Warn().Err(err).Str("session_id", sess.ID).Msg("Error closing session")
	}
	<-p.slots
}

// remove takes the session out of the active set. Returns false when some
// other path already claimed it.
func (p *Pool) remove(id string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.active[id]; !ok {
		return false
	}
	delete(p.active, id)
	return true
}

// ForceCleanup closes every active session regardless of age and returns how
// many were closed.
func (p *Pool) ForceCleanup() int {
	p.mu.Lock()
	victims := make([]*Session, 0, len(p.active))
	for _, s := range p.active {
		victims = append(victims, s)
	}
	p.mu.Unlock()

	closed := 0
	for _, s := range victims {
		if !p.remove(s.ID) {
			continue
		}
		if err := s.Close(); err != nil {
			log.Warn().Err(err).Str("session_id", s.ID).Msg("Error force closing session")
		}
		<-p.slots

		p.mu.Lock()
		p.forcedCleanups++
		p.mu.Unlock()
		closed++
	}

	if closed > 0 {
		log.Info().Int("closed", closed).Msg("Forced session cleanup")
	}
	return closed
}

// Start runs the orphan reaper until Stop is called. Blocks; run it in its
// own goroutine.
func (p *Pool) Start() {
	defer close(p.stoppedCh)

	ticker := time.NewTicker(p.cfg.ReaperInterval)
	defer ticker.Stop()

	log.Info().
		Dur("interval", p.cfg.ReaperInterval).
		Dur("threshold", p.cfg.OrphanThreshold).
		Msg("Session reaper started")

	for {
		select {
		case <-ticker.C:
			p.reapOrphans()
		case <-p.stopCh:
			log.Info().Msg("Session reaper stopped")
			return
		}
	}
}

// Stop halts the reaper and waits for it to exit.
func (p *Pool) Stop() {
	close(p.stopCh)
	<-p.stoppedCh
}

// reapOrphans closes sessions idle past the orphan threshold and frees
// their slots.
func (p *Pool) reapOrphans() int {
	now := time.Now()

	p.mu.Lock()
	var orphans []*Session
	for _, s := range p.active {
		if now.Sub(s.LastActivity()) >= p.cfg.OrphanThreshold {
			orphans = append(orphans, s)
		}
	}
	p.mu.Unlock()

	reaped := 0
	for _, s := range orphans {
		if !p.remove(s.ID) {
			continue
		}
		idle := now.Sub(s.LastActivity())
		log.Warn().
			Str("session_id", s.ID).
			Dur("idle", idle).
			Msg("Force closing orphaned session")

		if err := s.Close(); err != nil {
			log.Warn().Err(err).Str("session_id", s.ID).Msg("Error closing orphaned session")
		}
		<-p.slots

		p.mu.Lock()
		p.orphansReaped++
		p.mu.Unlock()
		reaped++
	}
	return reaped
}

// Stats returns a snapshot of pool usage.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Stats{
		Capacity:       p.cfg.MaxSessions,
		Active:         len(p.active),
		Idle:           p.cfg.MaxSessions - len(p.active),
		TotalAcquired:  p.totalAcquired,
		TotalReleased:  p.totalReleased,
		OrphansReaped:  p.orphansReaped,
		ForcedCleanups: p.forcedCleanups,
	}
}
