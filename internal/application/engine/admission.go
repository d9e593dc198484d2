package engine

import (
	"fmt"
	"time"

	"github.com/alejandrodnm/autotrader/config"
	"github.com/alejandrodnm/autotrader/internal/application/pairs"
	"github.com/alejandrodnm/autotrader/internal/domain"
)

// Candidate es lo que la admisión evalúa de un evento.
type Candidate struct {
	Event domain.PairEvent
	Pair  pairs.State
	Known bool // Pair tiene métricas
}

// Admission aplica la cadena de filtros de compra en orden; el primero que falla decide.
type Admission struct {
	names *Blocklist
}

// NewAdmission crea la cadena con la blocklist dada (nil = sin blocklist).
func NewAdmission(names *Blocklist) *Admission {
	return &Admission{names: names}
}

// Check devuelve nil si la compra puede intentarse.
func (a *Admission) Check(c Candidate, book Book, ts config.TradeSettings, now time.Time) *domain.Rejection {
	ev := c.Event

	if !ts.Enabled {
		return reject(domain.RejectDisabled, "auto-trade disabled")
	}
	if !ev.HasPrice() {
		return reject(domain.RejectNoPrice, "no price")
	}
	if ts.AvoidChinese && (ContainsCJK(ev.BaseSymbol) || ContainsCJK(ev.QuoteSymbol)) {
		return reject(domain.RejectCJKName, ev.BaseSymbol)
	}
	if term, ok := a.names.Blocked(ev.BaseSymbol); ok {
		return reject(domain.RejectBlockedName, fmt.Sprintf("%s matches %q", ev.BaseSymbol, term))
	}
	if term, ok := a.names.Blocked(ev.QuoteSymbol); ok {
		return reject(domain.RejectBlockedName, fmt.Sprintf("%s matches %q", ev.QuoteSymbol, term))
	}
	if book.HasPositionOrBlocked(ev.PairKey) {
		return reject(domain.RejectHeld, ev.PairKey)
	}
	if open := book.OpenCount(); open >= ts.MaxPositions {
		return reject(domain.RejectMaxPositions, fmt.Sprintf("max positions reached (%d/%d)", open, ts.MaxPositions))
	}
	if !ts.QuoteAccepted(ev.QuoteSymbol) {
		return reject(domain.RejectQuote, ev.QuoteSymbol)
	}
	if !ev.Venue.BondingCurve() {
		if ev.Liquidity == nil {
			return reject(domain.RejectNoLiquidity, "liquidity unknown")
		}
		if threshold := ts.LiquidityThreshold(); *ev.Liquidity < threshold {
			return reject(domain.RejectLiquidity, fmt.Sprintf("Liq $%.0f < min $%.0f", *ev.Liquidity, threshold))
		}
	}
	if c.Known && c.Pair.Stale(now, ts.Freshness, ts.MinPnLPct) {
		return reject(domain.RejectStale, fmt.Sprintf("pnl %.2f%% < %.2f%% and no move in %s", c.Pair.PnLPct, ts.MinPnLPct, ts.Freshness))
	}
	if ev.BuyCount < ts.MinBuys {
		return reject(domain.RejectMinBuys, fmt.Sprintf("%d buys < min %d", ev.BuyCount, ts.MinBuys))
	}
	if !ts.VenueEnabled(ev.Venue) {
		return reject(domain.RejectVenueDisabled, ev.Venue.String())
	}
	if ts.BuyAmount <= 0 {
		return reject(domain.RejectBuyAmount, fmt.Sprintf("%g", ts.BuyAmount))
	}
	return nil
}

func reject(reason domain.RejectReason, detail string) *domain.Rejection {
	return &domain.Rejection{Reason: reason, Detail: detail}
}
