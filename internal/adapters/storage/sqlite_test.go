package storage_test

import (
	"context"
	"testing"
	"time"

	"github.com/alejandrodnm/autotrader/internal/adapters/storage"
	"github.com/alejandrodnm/autotrader/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeClosed(id, mode string, pnl float64, closedAt time.Time) domain.ClosedPosition {
	return domain.ClosedPosition{
		ID:         id,
		Mode:       mode,
		PairKey:    "0x" + id,
		Venue:      domain.VenueV2,
		BaseSymbol: "PEPE",
		EntryPrice: 1.0,
		ExitPrice:  1.0 + pnl,
		Size:       0.01,
		PnLPct:     pnl * 100,
		PnL:        pnl * 0.01,
		Trigger:    "TP",
		TxHash:     "0xtx",
		OpenedAt:   closedAt.Add(-90 * time.Second),
		ClosedAt:   closedAt,
	}
}

func newStorage(t *testing.T) *storage.SQLiteStorage {
	t.Helper()
	db, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestSQLiteStorage_SaveAndListClosed(t *testing.T) {
	db := newStorage(t)
	ctx := context.Background()
	base := time.Now().UTC().Truncate(time.Second)

	require.NoError(t, db.SaveClosed(ctx, makeClosed("a", "real", 0.2, base.Add(-time.Minute))))
	require.NoError(t, db.SaveClosed(ctx, makeClosed("b", "sim", -0.1, base)))

	closed, err := db.ClosedPositions(ctx, 0)
	require.NoError(t, err)
	require.Len(t, closed, 2)

	// Más recientes primero
	assert.Equal(t, "b", closed[0].ID)
	assert.Equal(t, "a", closed[1].ID)
	assert.Equal(t, domain.VenueV2, closed[1].Venue)
	assert.InDelta(t, 20.0, closed[1].PnLPct, 0.001)
	assert.Equal(t, "TP", closed[1].Trigger)
	assert.True(t, closed[1].ClosedAt.Equal(base.Add(-time.Minute)))
}

func TestSQLiteStorage_ClosedLimitAndDuplicates(t *testing.T) {
	db := newStorage(t)
	ctx := context.Background()
	base := time.Now().UTC()

	for i, id := range []string{"a", "b", "c"} {
		require.NoError(t, db.SaveClosed(ctx, makeClosed(id, "real", 0.1, base.Add(time.Duration(i)*time.Second))))
	}
	require.NoError(t, db.SaveClosed(ctx, makeClosed("a", "real", 0.1, base)))

	all, err := db.ClosedPositions(ctx, -1)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	last, err := db.ClosedPositions(ctx, 1)
	require.NoError(t, err)
	require.Len(t, last, 1)
	assert.Equal(t, "c", last[0].ID)
}

func TestSQLiteStorage_Summaries(t *testing.T) {
	db := newStorage(t)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, db.SaveClosed(ctx, makeClosed("a", "real", 0.5, now)))
	require.NoError(t, db.SaveClosed(ctx, makeClosed("b", "real", -0.2, now)))
	require.NoError(t, db.SaveClosed(ctx, makeClosed("c", "sim", 0.1, now)))

	sums, err := db.Summaries(ctx)
	require.NoError(t, err)
	require.Len(t, sums, 2)
	assert.Equal(t, "real", sums[0].Mode)
	assert.Equal(t, 2, sums[0].Closed)
	assert.Equal(t, 1, sums[0].Wins)
	assert.InDelta(t, 0.003, sums[0].PnL, 1e-9)
	assert.Equal(t, "sim", sums[1].Mode)
}

func TestSQLiteStorage_AuditLog(t *testing.T) {
	db := newStorage(t)
	ctx := context.Background()
	base := time.Now().UTC()

	for i, msg := range []string{"one", "two", "three"} {
		require.NoError(t, db.Record(ctx, domain.AuditEvent{
			ID:      msg,
			At:      base.Add(time.Duration(i) * time.Second),
			Scope:   "trade",
			Kind:    domain.AuditBuy,
			PairKey: "0xp",
			Message: msg,
		}))
	}

	lines, err := db.AuditLines(ctx, 2)
	require.NoError(t, err)
	require.Len(t, lines, 2)
	assert.Equal(t, "two", lines[0].Message)
	assert.Equal(t, "three", lines[1].Message)
	assert.Equal(t, domain.AuditBuy, lines[1].Kind)
}

func TestSQLiteStorage_Settings(t *testing.T) {
	db := newStorage(t)
	ctx := context.Background()

	empty, err := db.LoadSettings(ctx)
	require.NoError(t, err)
	assert.Empty(t, empty)

	require.NoError(t, db.SaveSettings(ctx, map[string]string{"enabled": "true", "tp_pct": "10"}))
	require.NoError(t, db.SaveSettings(ctx, map[string]string{"tp_pct": "25"}))
	require.NoError(t, db.SaveSettings(ctx, nil))

	kv, err := db.LoadSettings(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"enabled": "true", "tp_pct": "25"}, kv)
}
