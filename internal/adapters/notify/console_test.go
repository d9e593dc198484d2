package notify_test

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alejandrodnm/autotrader/internal/adapters/notify"
	"github.com/alejandrodnm/autotrader/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConsole_PrintSimReport(t *testing.T) {
	var buf bytes.Buffer
	c := notify.NewConsoleWriter(&buf)

	stats := domain.SimStats{TotalTrades: 4, WinningTrades: 3, LosingTrades: 1, WinRate: 75, TotalPnLRealized: 0.0021, OpenPositions: 1}
	open := []domain.SimPosition{{
		PairKey:      "0xabc",
		Venue:        domain.VenueFourMeme,
		BaseSymbol:   "PEPE",
		QuoteSymbol:  "WBNB",
		EntryPrice:   0.00000123,
		CurrentPrice: 0.0000015,
		PnLPct:       21.95,
		OpenedAt:     time.Now().Add(-2 * time.Minute),
		Status:       domain.StatusOpen,
		Mirror:       true,
		NeedsLiqAck:  true,
	}}

	c.PrintSimReport(stats, open)

	out := buf.String()
	assert.Contains(t, out, "SIM REPORT")
	assert.Contains(t, out, "Win rate: 75.0%")
	assert.Contains(t, out, "PEPE/WBNB")
	assert.Contains(t, out, "1.2300e-06")
	assert.Contains(t, out, "+21.95%")
	assert.Contains(t, out, "mirror,LIQ!")
}

func TestConsole_PrintLivePositions_Empty(t *testing.T) {
	var buf bytes.Buffer
	notify.NewConsoleWriter(&buf).PrintLivePositions(nil)
	assert.Contains(t, buf.String(), "LIVE POSITIONS (0)")
}

func TestConsole_PrintLivePositions(t *testing.T) {
	var buf bytes.Buffer
	notify.NewConsoleWriter(&buf).PrintLivePositions([]domain.Position{{
		PairKey:       "0xdef",
		Venue:         domain.VenueV2,
		BaseSymbol:    "DOGE",
		QuoteSymbol:   "WBNB",
		EntryPrice:    1.0,
		LastPrice:     1.1,
		CommittedSize: 0.01,
		RemainingSize: 0.005,
		OpenedAt:      time.Now().Add(-90 * time.Minute),
		Frozen:        true,
	}})

	out := buf.String()
	assert.Contains(t, out, "DOGE/WBNB")
	assert.Contains(t, out, "+10.00%")
	assert.Contains(t, out, "0.0050/0.0100")
	assert.Contains(t, out, "1h30m")
}

func TestConsole_PrintClosed(t *testing.T) {
	var buf bytes.Buffer
	c := notify.NewConsoleWriter(&buf)

	now := time.Now()
	c.PrintClosed([]domain.ClosedPosition{
		{Mode: "real", PairKey: "0xa", BaseSymbol: "AAA", Venue: domain.VenueV3, EntryPrice: 1, ExitPrice: 1.2, PnLPct: 20, PnL: 0.002, Trigger: "TP", OpenedAt: now.Add(-time.Minute), ClosedAt: now},
		{Mode: "sim", PairKey: "0xb", BaseSymbol: "BBB", Venue: domain.VenueV2, EntryPrice: 1, ExitPrice: 0.9, PnLPct: -10, PnL: -0.001, Trigger: "SL", OpenedAt: now.Add(-time.Minute), ClosedAt: now},
	})

	out := buf.String()
	assert.Contains(t, out, "CLOSED POSITIONS (2)")
	assert.Contains(t, out, "AAA")
	assert.Contains(t, out, "SL")
	assert.Contains(t, out, "real 1 closed  win rate 100.0%")
	assert.Contains(t, out, "sim  1 closed  win rate 0.0%")
}

func TestConsole_PrintClosed_Empty(t *testing.T) {
	var buf bytes.Buffer
	notify.NewConsoleWriter(&buf).PrintClosed(nil)
	assert.Contains(t, buf.String(), "no closed positions yet")
}

func TestFileSink_AppendsLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.log")
	sink, err := notify.NewFileSink(path)
	require.NoError(t, err)

	at := time.Date(2026, 3, 1, 12, 30, 0, 0, time.UTC)
	require.NoError(t, sink.Record(context.Background(), domain.AuditEvent{At: at, Scope: "trade", Message: "✓ PEPE BUY"}))
	require.NoError(t, sink.Record(context.Background(), domain.AuditEvent{At: at, Scope: "sim", Message: "TP PEPE"}))
	require.NoError(t, sink.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "[2026-03-01 12:30:00] [trade] ✓ PEPE BUY", lines[0])
	assert.Equal(t, "[2026-03-01 12:30:00] [sim] TP PEPE", lines[1])
}

func TestRedisPublisher_UnreachableFailsFast(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	_, err := notify.NewRedisPublisher(ctx, "127.0.0.1:1", "")
	assert.Error(t, err)
}
