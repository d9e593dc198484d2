package main

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alejandrodnm/autotrader/config"
	"github.com/alejandrodnm/autotrader/internal/adapters/control"
	"github.com/alejandrodnm/autotrader/internal/adapters/feed"
	"github.com/alejandrodnm/autotrader/internal/adapters/notify"
	"github.com/alejandrodnm/autotrader/internal/adapters/onchain"
	"github.com/alejandrodnm/autotrader/internal/adapters/storage"
	"github.com/alejandrodnm/autotrader/internal/application/allowance"
	"github.com/alejandrodnm/autotrader/internal/application/engine/live"
	"github.com/alejandrodnm/autotrader/internal/application/engine/paper"
	"github.com/alejandrodnm/autotrader/internal/domain"
	"github.com/alejandrodnm/autotrader/internal/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Las piezas que build conecta entre sí.
var (
	_ ports.ExecutionAdapter = (*onchain.Client)(nil)
	_ ports.Wrapper          = (*onchain.Client)(nil)
	_ allowance.Chain        = (*onchain.Client)(nil)
	_ live.Allowances        = (*allowance.Worker)(nil)
	_ live.Mirror            = (*paper.Engine)(nil)
	_ control.LiveOps        = (*live.Engine)(nil)
	_ control.SimOps         = (*paper.Engine)(nil)
	_ control.SettingsStore  = (*config.Settings)(nil)
	_ ports.PriceFeed        = (*feed.WSFeed)(nil)
	_ ports.TradeStorage     = (*storage.SQLiteStorage)(nil)
	_ ports.SettingsStorage  = (*storage.SQLiteStorage)(nil)
	_ ports.AuditSink        = (*storage.SQLiteStorage)(nil)
	_ ports.AuditSink        = (*notify.FileSink)(nil)
	_ ports.AuditSink        = (*notify.RedisPublisher)(nil)
)

func TestWatchStopFile_StopsWhenFileAppears(t *testing.T) {
	path := filepath.Join(t.TempDir(), defaultStopFile)

	done := make(chan error, 1)
	go func() { done <- watchStopFile(context.Background(), path, 10*time.Millisecond) }()

	require.NoError(t, os.WriteFile(path, nil, 0o644))
	select {
	case err := <-done:
		assert.ErrorIs(t, err, errStopRequested)
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not notice the stop file")
	}
	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err), "stop file is removed")
}

func TestWatchStopFile_CancelReturnsNil(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := watchStopFile(ctx, filepath.Join(t.TempDir(), "missing"), time.Hour)
	assert.NoError(t, err)
}

func TestSetupLogger_Level(t *testing.T) {
	defer slog.SetDefault(slog.Default())

	setupLogger(config.LogConfig{Level: "warn", Format: "json"})
	assert.False(t, slog.Default().Enabled(context.Background(), slog.LevelInfo))
	assert.True(t, slog.Default().Enabled(context.Background(), slog.LevelWarn))

	setupLogger(config.LogConfig{Level: "debug"})
	assert.True(t, slog.Default().Enabled(context.Background(), slog.LevelDebug))
}

func newTestConfig(t *testing.T, yaml string) *config.Config {
	t.Helper()
	cfg, err := config.Parse([]byte(yaml))
	require.NoError(t, err)
	cfg.Audit.File = filepath.Join(t.TempDir(), "audit.log")
	return cfg
}

func TestBuild_SimOnlyWithoutKey(t *testing.T) {
	cfg := newTestConfig(t, `
feed:
  url: ws://127.0.0.1:1/feed
trading:
  tp_pct: "30"
`)
	cfg.Chain.PrivateKey = ""
	store, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	defer store.Close()

	a, err := build(context.Background(), cfg, store, false)
	require.NoError(t, err)
	defer a.close()

	assert.Nil(t, a.live)
	assert.Nil(t, a.worker)
	assert.Equal(t, 30.0, a.settings.Snapshot().TPPct)
}

func TestBuild_StoredSettingsWin(t *testing.T) {
	cfg := newTestConfig(t, `
trading:
  tp_pct: "30"
`)
	cfg.Chain.PrivateKey = ""
	store, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	defer store.Close()
	require.NoError(t, store.SaveSettings(context.Background(), map[string]string{"tp_pct": "45"}))

	a, err := build(context.Background(), cfg, store, true)
	require.NoError(t, err)
	defer a.close()
	assert.Equal(t, 45.0, a.settings.Snapshot().TPPct)
}

func TestRun_StopFileEndsCleanly(t *testing.T) {
	cfg := newTestConfig(t, `
feed:
  url: ws://127.0.0.1:1/feed
  reconnect_min_seconds: 1
`)
	cfg.Chain.PrivateKey = ""
	store, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	defer store.Close()

	a, err := build(context.Background(), cfg, store, true)
	require.NoError(t, err)
	defer a.close()

	stop := filepath.Join(t.TempDir(), defaultStopFile)
	require.NoError(t, os.WriteFile(stop, nil, 0o644))

	done := make(chan error, 1)
	go func() { done <- a.run(context.Background(), stop) }()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("run did not stop")
	}
}

func TestPrintArchive(t *testing.T) {
	store, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	defer store.Close()

	now := time.Now()
	require.NoError(t, store.SaveClosed(context.Background(), domain.ClosedPosition{
		ID: "1", Mode: "sim", PairKey: "0xa", BaseSymbol: "AAA", Venue: domain.VenueV2,
		EntryPrice: 1, ExitPrice: 1.5, PnLPct: 50, PnL: 0.005, Trigger: "TP",
		OpenedAt: now.Add(-time.Minute), ClosedAt: now,
	}))

	var buf bytes.Buffer
	require.NoError(t, printArchive(context.Background(), store, notify.NewConsoleWriter(&buf), 10))
	assert.Contains(t, buf.String(), "AAA")
	assert.Contains(t, buf.String(), "CLOSED POSITIONS (1)")
}
