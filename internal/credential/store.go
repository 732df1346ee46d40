package credential

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/merchhub/tokensync/internal/infrastructure/redis"
	"github.com/merchhub/tokensync/internal/syncerr"
	"github.com/rs/zerolog/log"
)

// ErrNotAvailable is returned by Get when no credential has been stored yet.
var ErrNotAvailable = errors.New("credential not available")

// redisKey is the single slot the durable backing writes the full record to.
const redisKey = "tokensync:credential"

// Persister is the durable backing behind the in-memory slot.
type Persister interface {
	Save(ctx context.Context, cred Credential) error
	// Load returns nil without error when nothing has been persisted.
	Load(ctx context.Context) (*Credential, error)
}

// RedisPersister keeps the credential as a JSON record in Redis. No TTL is
// set so a restart can reload the last known credential even when stale.
type RedisPersister struct {
	redisService *redis.Service
}

func NewRedisPersister(redisService *redis.Service) *RedisPersister {
	return &RedisPersister{redisService: redisService}
}

func (rp *RedisPersister) Save(ctx context.Context, cred Credential) error {
	data, err := json.Marshal(cred)
	if err != nil {
		return err
	}

	return rp.redisService.Set(ctx, redisKey, string(data), 0)
}

func (rp *RedisPersister) Load(ctx context.Context) (*Credential, error) {
	data, err := rp.redisService.Get(ctx, redisKey)
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}

	var cred Credential
	if err := json.Unmarshal([]byte(data), &cred); err != nil {
		return nil, err
	}

	return &cred, nil
}

// Store holds at most one credential. Reads are always served from memory;
// the persister, when present, mirrors the slot so a restart can recover it.
type Store struct {
	mu         sync.RWMutex
	current    *Credential
	durable    bool
	lastUpdate time.Time

	persister Persister
}

// NewStore returns a store backed by the given persister. A nil persister
// runs memory-only and reports durable false.
func NewStore(persister Persister) *Store {
	return &Store{persister: persister}
}

// Reload pulls the last persisted credential into the memory slot. Used at
// startup; an empty backing is not an error. A reloaded credential may
// already be stale, which callers see through Status and Credential.Stale.
func (s *Store) Reload(ctx context.Context) error {
	if s.persister == nil {
		return nil
	}

	cred, err := s.persister.Load(ctx)
	if err != nil {
		s.mu.Lock()
		s.durable = false
		s.mu.Unlock()
		return syncerr.NewPersistenceError("load", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.durable = true
	if cred != nil {
		s.current = cred
		s.lastUpdate = time.Now()
		log.Info().
			Time("fetched_at", cred.FetchedAt).
			Time("expires_at", cred.ExpiresAt).
			Msg("Reloaded credential from durable backing")
	}
	return nil
}

// Put replaces the slot with the new credential. The memory slot always
// updates; a persist failure degrades the store to non-durable and comes
// back as a PersistenceError the caller can treat as a warning.
func (s *Store) Put(ctx context.Context, cred Credential) error {
	s.mu.Lock()
	copied := cred
	s.current = &copied
	s.lastUpdate = time.Now()
	s.mu.Unlock()

	if s.persister == nil {
		return nil
	}

	if err := s.persister.Save(ctx, cred); err != nil {
		s.mu.Lock()
		s.durable = false
		s.mu.Unlock()
		log.Error().
			Err(err).
			Msg("Credential persisted to memory only - durable backing unavailable")
		return syncerr.NewPersistenceError("save", err)
	}

	s.mu.Lock()
	s.durable = true
	s.mu.Unlock()
	return nil
}

// Get returns the current credential. ErrNotAvailable before the first Put.
// A stale credential is still returned; callers check staleness themselves.
func (s *Store) Get() (Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.current == nil {
		return Credential{}, ErrNotAvailable
	}
	return *s.current, nil
}

// Status describes the slot without exposing token material.
type Status struct {
	Available        bool      `json:"available"`
	Stale            bool      `json:"stale"`
	SecondsRemaining int       `json:"seconds_remaining"`
	FetchedAt        time.Time `json:"fetched_at,omitempty"`
	ExpiresAt        time.Time `json:"expires_at,omitempty"`
	Durable          bool      `json:"durable"`
}

// Status reports the slot state as of now.
func (s *Store) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := Status{Durable: s.durable}
	if s.current == nil {
		return st
	}

	now := time.Now()
	st.Available = true
	st.Stale = s.current.Stale(now)
	st.SecondsRemaining = s.current.SecondsRemaining(now)
	st.FetchedAt = s.current.FetchedAt
	st.ExpiresAt = s.current.ExpiresAt
	return st
}

// Durable reports whether the last interaction with the backing succeeded.
func (s *Store) Durable() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.durable
}
