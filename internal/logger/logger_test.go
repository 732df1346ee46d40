package logger

import (
	"testing"

	"github.com/rs/zerolog"
)

func TestSetupAppliesLevel(t *testing.T) {
	defer zerolog.SetGlobalLevel(zerolog.InfoLevel)

	Setup("debug", false)
	if got := zerolog.GlobalLevel(); got != zerolog.DebugLevel {
		t.Errorf("Expected debug level, got %s", got)
	}

	Setup("WARN", false)
	if got := zerolog.GlobalLevel(); got != zerolog.WarnLevel {
		t.Errorf("Expected warn level, got %s", got)
	}
}

func TestSetupFallsBackToInfo(t *testing.T) {
	defer zerolog.SetGlobalLevel(zerolog.InfoLevel)

	Setup("chatty", false)
	if got := zerolog.GlobalLevel(); got != zerolog.InfoLevel {
		t.Errorf("Expected info fallback for unknown level, got %s", got)
	}

	Setup("", false)
	if got := zerolog.GlobalLevel(); got != zerolog.InfoLevel {
		t.Errorf("Expected info fallback for empty level, got %s", got)
	}
}
