package positions_test

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alejandrodnm/autotrader/internal/application/positions"
	"github.com/alejandrodnm/autotrader/internal/application/trigger"
	"github.com/alejandrodnm/autotrader/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makePosition(key string, entry float64) domain.Position {
	return domain.Position{
		PairKey:       key,
		Venue:         domain.VenueV2,
		EntryPrice:    entry,
		CommittedSize: 0.01,
		RemainingSize: 0.01,
		OpenedAt:      time.Now(),
	}
}

func TestStore_ReserveCloseIsIdempotent(t *testing.T) {
	s := positions.New()
	s.RecordBuy(makePosition("0xp", 1))

	assert.True(t, s.ReserveClose("0xp"))
	assert.False(t, s.ReserveClose("0xp"))

	s.AbortClose("0xp")
	assert.True(t, s.ReserveClose("0xp"))
}

func TestStore_ReserveCloseMissingPosition(t *testing.T) {
	s := positions.New()
	assert.False(t, s.ReserveClose("0xnone"))
}

func TestStore_ConcurrentReserveOnlyOneWins(t *testing.T) {
	s := positions.New()
	s.RecordBuy(makePosition("0xp", 1))

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if s.ReserveClose("0xp") {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), wins.Load())
}

func TestStore_FinishSellBlocksRebuy(t *testing.T) {
	s := positions.New()
	s.RecordBuy(makePosition("0xp", 1))
	require.True(t, s.ReserveClose("0xp"))

	p, ok := s.FinishSell("0xp")
	require.True(t, ok)
	assert.Equal(t, "0xp", p.PairKey)
	assert.Equal(t, 0, s.OpenCount())
	assert.True(t, s.HasPositionOrBlocked("0xp"))
	assert.False(t, s.IsClosing("0xp"))
	assert.True(t, s.IsBlocked("0xp"))
}

func TestStore_RecordBuySupersedesHistory(t *testing.T) {
	s := positions.New()
	s.RecordBuy(makePosition("0xp", 1))
	require.True(t, s.Remove("0xp"))
	require.True(t, s.IsBlocked("0xp"))
	s.RecordBuyFailure("0xp")

	s.RecordBuy(makePosition("0xp", 2))
	assert.False(t, s.IsBlocked("0xp"))
	assert.Equal(t, 1, s.OpenCount())

	// a second buy under the same key replaces, never duplicates
	s.RecordBuy(makePosition("0xp", 3))
	assert.Equal(t, 1, s.OpenCount())
	p, _ := s.Get("0xp")
	assert.InDelta(t, 3.0, p.EntryPrice, 1e-9)
}

func TestStore_RemoveBlocks(t *testing.T) {
	s := positions.New()
	s.RecordBuy(makePosition("0xp", 1))
	require.True(t, s.ReserveClose("0xp"))

	assert.True(t, s.Remove("0xp"))
	assert.False(t, s.Remove("0xp"))
	assert.True(t, s.HasPositionOrBlocked("0xp"))
	assert.False(t, s.IsClosing("0xp"))
}

func TestStore_BuyFailuresBlockAfterThree(t *testing.T) {
	s := positions.New()

	n, blocked := s.RecordBuyFailure("0xp")
	assert.Equal(t, 1, n)
	assert.False(t, blocked)
	s.RecordBuyFailure("0xp")
	assert.False(t, s.HasPositionOrBlocked("0xp"))

	n, blocked = s.RecordBuyFailure("0xp")
	assert.Equal(t, 3, n)
	assert.True(t, blocked)
	assert.True(t, s.HasPositionOrBlocked("0xp"))
}

func TestStore_ClearBuyFailuresResetsCount(t *testing.T) {
	s := positions.New()
	s.RecordBuyFailure("0xp")
	s.RecordBuyFailure("0xp")
	s.ClearBuyFailures("0xp")

	n, blocked := s.RecordBuyFailure("0xp")
	assert.Equal(t, 1, n)
	assert.False(t, blocked)
}

func TestStore_EvaluateAndReserveFiresOnce(t *testing.T) {
	s := positions.New()
	s.RecordBuy(makePosition("0xp", 1.0))
	tp := 10.0
	rules := trigger.Rules{TPPct: &tp}

	plan, ok := s.EvaluateAndReserve("0xp", 1.15, time.Now(), rules)
	require.True(t, ok)
	assert.Equal(t, domain.TriggerTakeProfit, plan.Trigger.Kind)
	assert.InDelta(t, 15.0, plan.PnLPct, 1e-6)
	assert.Equal(t, 100, plan.PercentPts)
	assert.True(t, plan.Reserved)

	_, ok = s.EvaluateAndReserve("0xp", 1.20, time.Now(), rules)
	assert.False(t, ok, "second tick must not fire while closing")
}

func TestStore_EvaluateAndReserveNoTrigger(t *testing.T) {
	s := positions.New()
	s.RecordBuy(makePosition("0xp", 1.0))
	tp := 10.0

	_, ok := s.EvaluateAndReserve("0xp", 1.05, time.Now(), trigger.Rules{TPPct: &tp})
	assert.False(t, ok)
	assert.False(t, s.IsClosing("0xp"))

	p, _ := s.Get("0xp")
	assert.InDelta(t, 1.05, p.LastPrice, 1e-9)
}

func TestStore_FrozenNeverAutoCloses(t *testing.T) {
	s := positions.New()
	s.RecordBuy(makePosition("0xp", 1.0))
	require.True(t, s.SetFrozen("0xp", true))
	tp := 10.0

	_, ok := s.EvaluateAndReserve("0xp", 5, time.Now(), trigger.Rules{TPPct: &tp})
	assert.False(t, ok)
}

func TestStore_ReduceRemainingMonotonic(t *testing.T) {
	s := positions.New()
	s.RecordBuy(makePosition("0xp", 1.0))

	prev := 0.01
	for _, f := range []float64{0.25, 0.5, 0.1, 1.0} {
		s.ReduceRemaining("0xp", f)
		p, _ := s.Get("0xp")
		assert.LessOrEqual(t, p.RemainingSize, prev)
		assert.LessOrEqual(t, p.RemainingSize, p.CommittedSize)
		prev = p.RemainingSize
	}
	assert.Equal(t, 0.0, prev)
}
