package domain_test

import (
	"testing"

	"github.com/alejandrodnm/autotrader/internal/domain"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseVenue(t *testing.T) {
	cases := map[string]domain.Venue{
		"v2":       domain.VenueV2,
		" V3 ":     domain.VenueV3,
		"fm":       domain.VenueFourMeme,
		"fourmeme": domain.VenueFourMeme,
	}
	for in, want := range cases {
		got, err := domain.ParseVenue(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := domain.ParseVenue("uniswap")
	assert.Error(t, err)
}

func TestVenue_TextRoundTrip(t *testing.T) {
	var v domain.Venue
	require.NoError(t, v.UnmarshalText([]byte("fm")))
	assert.Equal(t, domain.VenueFourMeme, v)
	assert.True(t, v.BondingCurve())
	assert.Equal(t, "FM", v.Label())
	assert.Equal(t, "V2", domain.VenueV2.Label())
}

func TestPairKey_Normalizes(t *testing.T) {
	assert.Equal(t, "0xabcdef", domain.PairKey("  0xABCdef "))
}

func TestPnLPct(t *testing.T) {
	assert.InDelta(t, 20.0, domain.PnLPct(1.0, 1.2), 1e-9)
	assert.InDelta(t, -50.0, domain.PnLPct(2.0, 1.0), 1e-9)
	assert.Equal(t, 0.0, domain.PnLPct(0, 1.0))
}

func TestPairEvent_TradedToken(t *testing.T) {
	wbnb := common.HexToAddress("0xbb4CdB9CBd36B01bD1cBaEBF2De08d9173bc095c")
	tok := common.HexToAddress("0x1111111111111111111111111111111111111111")

	ev := domain.PairEvent{Venue: domain.VenueV2, BaseToken: tok, QuoteToken: wbnb}
	got, ok := ev.TradedToken(wbnb)
	require.True(t, ok)
	assert.Equal(t, tok, got)

	ev = domain.PairEvent{Venue: domain.VenueV3, BaseToken: wbnb, QuoteToken: tok}
	got, ok = ev.TradedToken(wbnb)
	require.True(t, ok)
	assert.Equal(t, tok, got)

	ev = domain.PairEvent{Venue: domain.VenueV2, BaseToken: tok, QuoteToken: common.HexToAddress("0x22")}
	_, ok = ev.TradedToken(wbnb)
	assert.False(t, ok)

	ev = domain.PairEvent{Venue: domain.VenueFourMeme, BaseToken: tok}
	got, ok = ev.TradedToken(wbnb)
	require.True(t, ok)
	assert.Equal(t, tok, got)
}

func TestCloseTrigger_Describe(t *testing.T) {
	assert.Equal(t, "TP 10.00%", domain.CloseTrigger{Kind: domain.TriggerTakeProfit, Pct: 10}.Describe())
	assert.Equal(t, "SL -5.00%", domain.CloseTrigger{Kind: domain.TriggerStopLoss, Pct: 5}.Describe())
	assert.Equal(t, "Max hold 60s", domain.CloseTrigger{Kind: domain.TriggerMaxHold, HoldSecs: 60}.Describe())
	assert.Equal(t, "Manual", domain.CloseTrigger{Kind: domain.TriggerManual}.Describe())
}

func TestRejection_Routine(t *testing.T) {
	assert.True(t, domain.Rejection{Reason: domain.RejectDisabled}.Routine())
	assert.True(t, domain.Rejection{Reason: domain.RejectHeld}.Routine())
	assert.False(t, domain.Rejection{Reason: domain.RejectLiquidity, Detail: "500 < 1000"}.Routine())
	assert.False(t, domain.Rejection{Reason: domain.RejectBlockedName}.Routine())
}
