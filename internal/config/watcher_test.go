package config

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNewWatcher_Validation(t *testing.T) {
	_, err := NewWatcher("", zap.NewNop(), func(*Config) {})
	require.Error(t, err)

	_, err = NewWatcher(writeConfig(t, "server:\n  port: 7000\n"), zap.NewNop(), nil)
	require.Error(t, err)
}

func TestWatcher_ReloadsOnWrite(t *testing.T) {
	path := writeConfig(t, "scoring:\n  threshold: 80\n")

	reloaded := make(chan *Config, 1)
	w, err := NewWatcher(path, zap.NewNop(), func(c *Config) {
		select {
		case reloaded <- c:
		default:
		}
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = w.Run(ctx)
	}()

	// Give the watcher a moment to arm before the write lands.
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte("scoring:\n  threshold: 60\n"), 0o600))

	select {
	case cfg := <-reloaded:
		assert.Equal(t, 60, cfg.Scoring.Threshold)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for config reload")
	}

	cancel()
	<-done
}

func TestWatcher_KeepsOldConfigOnBadReload(t *testing.T) {
	path := writeConfig(t, "scoring:\n  threshold: 80\n")

	reloaded := make(chan *Config, 1)
	w, err := NewWatcher(path, zap.NewNop(), func(c *Config) {
		select {
		case reloaded <- c:
		default:
		}
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = w.Run(ctx) }()

	time.Sleep(100 * time.Millisecond)
	// Invalid port fails validation; the callback must not fire.
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 99999\n"), 0o600))

	select {
	case <-reloaded:
		t.Fatal("callback fired for invalid config")
	case <-time.After(500 * time.Millisecond):
	}
}
