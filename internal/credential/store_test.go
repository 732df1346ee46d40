package credential

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/merchhub/tokensync/internal/syncerr"
)

type fakePersister struct {
	mu       sync.Mutex
	saved    []Credential
	failSave bool
	loadCred *Credential
	loadErr  error
}

func (f *fakePersister) Save(ctx context.Context, cred Credential) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failSave {
		return errors.New("backing unavailable")
	}
	f.saved = append(f.saved, cred)
	return nil
}

func (f *fakePersister) Load(ctx context.Context) (*Credential, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.loadCred, f.loadErr
}

func (f *fakePersister) setFailSave(fail bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failSave = fail
}

func TestGetBeforePut(t *testing.T) {
	store := NewStore(nil)

	_, err := store.Get()
	if !errors.Is(err, ErrNotAvailable) {
		t.Errorf("Get on empty store = %v, want ErrNotAvailable", err)
	}

	st := store.Status()
	if st.Available {
		t.Error("empty store should not report available")
	}
}

func TestPutThenGet(t *testing.T) {
	store := NewStore(nil)
	cred := New("tok-1", "etok-1", time.Now(), 3*time.Minute, time.Minute)
	cred.UserAgent = "Mozilla/5.0"

	if err := store.Put(context.Background(), cred); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	got, err := store.Get()
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.PrimaryToken != "tok-1" || got.ExtendedToken != "etok-1" {
		t.Errorf("Get returned wrong tokens: %q / %q", got.PrimaryToken, got.ExtendedToken)
	}
	if got.UserAgent != "Mozilla/5.0" {
		t.Errorf("UserAgent = %q, want Mozilla/5.0", got.UserAgent)
	}
}

func TestPutSupersedes(t *testing.T) {
	store := NewStore(nil)

	first := New("tok-1", "etok-1", time.Now(), 3*time.Minute, time.Minute)
	first.RefreshToken = "refresh-1"
	first.Attributes = []Attribute{{Name: "locale", Value: "pt-BR"}}
	if err := store.Put(context.Background(), first); err != nil {
		t.Fatalf("first Put failed: %v", err)
	}

	second := New("tok-2", "etok-2", time.Now(), 3*time.Minute, time.Minute)
	if err := store.Put(context.Background(), second); err != nil {
		t.Fatalf("second Put failed: %v", err)
	}

	got, err := store.Get()
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.PrimaryToken != "tok-2" {
		t.Errorf("PrimaryToken = %q, want tok-2", got.PrimaryToken)
	}
	if got.RefreshToken != "" {
		t.Errorf("RefreshToken = %q, want empty after supersede", got.RefreshToken)
	}
	if len(got.Attributes) != 0 {
		t.Errorf("Attributes = %v, want none after supersede", got.Attributes)
	}
}

func TestMemoryOnlyNeverDurable(t *testing.T) {
	store := NewStore(nil)
	cred := New("tok", "etok", time.Now(), 3*time.Minute, time.Minute)

	if err := store.Put(context.Background(), cred); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	st := store.Status()
	if !st.Available {
		t.Error("store should report available after Put")
	}
	if st.Durable {
		t.Error("memory-only store should never report durable")
	}
}

func TestPersistFailureDegrades(t *testing.T) {
	persister := &fakePersister{failSave: true}
	store := NewStore(persister)
	cred := New("tok", "etok", time.Now(), 3*time.Minute, time.Minute)

	err := store.Put(context.Background(), cred)
	if !syncerr.IsPersistenceError(err) {
		t.Fatalf("Put with failing backing = %v, want PersistenceError", err)
	}

	// The credential must still be served from memory.
	got, getErr := store.Get()
	if getErr != nil {
		t.Fatalf("Get after degraded Put failed: %v", getErr)
	}
	if got.PrimaryToken != "tok" {
		t.Errorf("PrimaryToken = %q, want tok", got.PrimaryToken)
	}
	if store.Durable() {
		t.Error("store should report durable false after persist failure")
	}

	// A later successful persist restores the durable flag.
	persister.setFailSave(false)
	if err := store.Put(context.Background(), cred); err != nil {
		t.Fatalf("Put after backing recovery failed: %v", err)
	}
	if !store.Durable() {
		t.Error("store should report durable true after persist success")
	}
}

func TestReloadRestoresStaleCredential(t *testing.T) {
	fetched := time.Now().Add(-10 * time.Minute)
	old := New("tok-old", "etok-old", fetched, 3*time.Minute, time.Minute)
	persister := &fakePersister{loadCred: &old}
	store := NewStore(persister)

	if err := store.Reload(context.Background()); err != nil {
		t.Fatalf("Reload failed: %v", err)
	}

	got, err := store.Get()
	if err != nil {
		t.Fatalf("Get after Reload failed: %v", err)
	}
	if got.PrimaryToken != "tok-old" {
		t.Errorf("PrimaryToken = %q, want tok-old", got.PrimaryToken)
	}

	st := store.Status()
	if !st.Available {
		t.Error("reloaded credential should be available")
	}
	if !st.Stale {
		t.Error("reloaded expired credential should be flagged stale")
	}
	if st.SecondsRemaining != 0 {
		t.Errorf("SecondsRemaining = %d, want 0", st.SecondsRemaining)
	}
	if !st.Durable {
		t.Error("store should be durable after successful reload")
	}
}

func TestReloadEmptyBacking(t *testing.T) {
	store := NewStore(&fakePersister{})

	if err := store.Reload(context.Background()); err != nil {
		t.Fatalf("Reload of empty backing failed: %v", err)
	}

	if _, err := store.Get(); !errors.Is(err, ErrNotAvailable) {
		t.Errorf("Get = %v, want ErrNotAvailable", err)
	}
	if !store.Durable() {
		t.Error("reachable empty backing should still count as durable")
	}
}

func TestReloadBackingError(t *testing.T) {
	store := NewStore(&fakePersister{loadErr: errors.New("connection refused")})

	err := store.Reload(context.Background())
	if !syncerr.IsPersistenceError(err) {
		t.Fatalf("Reload = %v, want PersistenceError", err)
	}
	if store.Durable() {
		t.Error("store should report durable false after reload failure")
	}
}

func TestConcurrentPutAndGet(t *testing.T) {
	store := NewStore(&fakePersister{})
	var wg sync.WaitGroup

	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			cred := New("tok", "etok", time.Now(), 3*time.Minute, time.Minute)
			_ = store.Put(context.Background(), cred)
		}()
		go func() {
			defer wg.Done()
			_, _ = store.Get()
			_ = store.Status()
		}()
	}

	wg.Wait()

	if _, err := store.Get(); err != nil {
		t.Errorf("Get after concurrent writes failed: %v", err)
	}
}
