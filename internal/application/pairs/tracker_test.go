package pairs_test

import (
	"testing"
	"time"

	"github.com/alejandrodnm/autotrader/internal/application/pairs"
	"github.com/alejandrodnm/autotrader/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ev(key string, price float64, buys int) domain.PairEvent {
	return domain.PairEvent{PairKey: key, Venue: domain.VenueV2, BaseSymbol: "PEPE", QuoteSymbol: "WBNB", Price: price, BuyCount: buys}
}

func TestTracker_ObserveComputesPnL(t *testing.T) {
	tr := pairs.New(0)
	t0 := time.Unix(1_700_000_000, 0)

	st, ok := tr.Observe(ev("0xpair", 1.0, 1), t0)
	require.True(t, ok)
	assert.Equal(t, 0.0, st.PnLPct)
	assert.Equal(t, 1.0, st.FirstPrice)

	st, ok = tr.Observe(ev("0xpair", 1.23456, 4), t0.Add(time.Second))
	require.True(t, ok)
	assert.Equal(t, 23.46, st.PnLPct)
	assert.Equal(t, 4, st.BuyCount)
	assert.Equal(t, 1.0, st.FirstPrice)
	assert.Equal(t, t0.Add(time.Second), st.LastNonzeroMove)
}

func TestTracker_ZeroPriceRemovesPair(t *testing.T) {
	tr := pairs.New(0)
	now := time.Now()
	tr.Observe(ev("0xpair", 1.0, 1), now)

	_, ok := tr.Observe(ev("0xpair", 0, 1), now)
	assert.False(t, ok)
	_, ok = tr.Get("0xpair")
	assert.False(t, ok)
}

func TestTracker_CapacityIgnoresNewPairs(t *testing.T) {
	tr := pairs.New(1)
	now := time.Now()
	_, ok := tr.Observe(ev("a", 1.0, 1), now)
	require.True(t, ok)
	_, ok = tr.Observe(ev("b", 1.0, 1), now)
	assert.False(t, ok)
	_, ok = tr.Observe(ev("a", 2.0, 1), now)
	assert.True(t, ok)
	assert.Equal(t, 1, tr.Len())
}

func TestTracker_LiquidityKeptWhenMissing(t *testing.T) {
	tr := pairs.New(0)
	now := time.Now()
	e := ev("a", 1.0, 1)
	liq := 2500.0
	e.Liquidity = &liq
	tr.Observe(e, now)

	st, _ := tr.Observe(ev("a", 1.1, 2), now)
	require.NotNil(t, st.Liquidity)
	assert.Equal(t, 2500.0, *st.Liquidity)
}

func TestTracker_Stale(t *testing.T) {
	tr := pairs.New(0)
	t0 := time.Unix(1_700_000_000, 0)
	tr.Observe(ev("a", 1.0, 1), t0)
	tr.Observe(ev("a", 1.5, 1), t0.Add(5*time.Second)) // +50%

	tests := []struct {
		name   string
		now    time.Time
		minPnL float64
		want   bool
	}{
		{"recent move below min pnl", t0.Add(20 * time.Second), 100, false},
		{"old move below min pnl", t0.Add(60 * time.Second), 100, true},
		{"old move above min pnl", t0.Add(60 * time.Second), 40, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st, ok := tr.Get("a")
			require.True(t, ok)
			assert.Equal(t, tt.want, st.Stale(tt.now, 30*time.Second, tt.minPnL))
		})
	}
}
