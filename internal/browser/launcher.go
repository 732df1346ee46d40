package browser

import (
	"context"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Launcher produces a fresh browser session per call.
type Launcher interface {
	Launch(ctx context.Context) (*Session, error)
}

// RodLauncher starts a local Chromium through rod.
type RodLauncher struct {
	headless bool
	bin      string
}

// NewRodLauncher returns a launcher for a local browser. An empty bin lets
// rod resolve or download one.
func NewRodLauncher(headless bool, bin string) *RodLauncher {
	return &RodLauncher{headless: headless, bin: bin}
}

func (l *RodLauncher) Launch(ctx context.Context) (*Session, error) {
	lc := launcher.New().Headless(l.headless)
	if l.bin != "" {
		lc = lc.Bin(l.bin)
	}

	controlURL, err := lc.Launch()
	if err != nil {
		return nil, err
	}

	b := rod.New().ControlURL(controlURL)
	if err := b.Connect(); err != nil {
		lc.Kill()
		lc.Cleanup()
		return nil, err
	}

	page, err := b.Page(proto.TargetCreateTarget{})
	if err != nil {
		_ = b.Close()
		lc.Cleanup()
		return nil, err
	}

	now := time.Now()
	sess := &Session{
		ID:           uuid.New().String(),
		CreatedAt:    now,
		lastActivity: now,
		page:         page,
		closeFn: func() error {
			err := b.Close()
			lc.Cleanup()
			return err
		},
	}

	log.Debug().Str("session_id", sess.ID).Msg("Browser session launched")
	return sess, nil
}
