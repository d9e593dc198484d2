package paper

import (
	"math"
	"time"

	"github.com/alejandrodnm/autotrader/internal/domain"
)

func newPosition(pb domain.PendingBuy, price float64, now time.Time) *domain.SimPosition {
	return &domain.SimPosition{
		PairKey:       pb.PairKey,
		Venue:         pb.Venue,
		BaseSymbol:    pb.BaseSymbol,
		QuoteSymbol:   pb.QuoteSymbol,
		EntryPrice:    price,
		CurrentPrice:  price,
		CommittedSize: pb.Size,
		RemainingSize: pb.Size,
		OpenedAt:      now,
		Status:        domain.StatusOpen,
		TPPct:         pb.TPPct,
		SLPct:         pb.SLPct,
	}
}

// updateLiquidity dispara la alerta una sola vez al cruzar por debajo del umbral.
// La alerta no se limpia sola mientras no se haya confirmado.
func updateLiquidity(p *domain.SimPosition, liquidity *float64) {
	if liquidity == nil {
		return
	}
	liq := *liquidity
	p.Liquidity = &liq

	if liq < LiquidityAlertUSD {
		if !p.OutOfLiquidity {
			p.NeedsLiqAck = true
		}
		p.OutOfLiquidity = true
		return
	}
	if p.OutOfLiquidity && p.NeedsLiqAck {
		return
	}
	p.OutOfLiquidity = false
	p.NeedsLiqAck = false
}

// updatePrice recalcula el PnL; el PnL abierto solo cuenta el tamaño restante.
func updatePrice(p *domain.SimPosition, price float64) {
	p.CurrentPrice = price
	if p.EntryPrice <= 0 {
		return
	}
	p.PnLPct = domain.PnLPct(p.EntryPrice, price)
	p.OpenPnL = p.RemainingSize * p.PnLPct / 100
}

// partialSell realiza R·f·pnl% y deja R·(1−f) abierto.
func partialSell(p *domain.SimPosition, fraction float64) float64 {
	if p.RemainingSize <= 0 {
		return 0
	}
	sold := p.RemainingSize * fraction
	realized := sold * p.PnLPct / 100
	p.RemainingSize -= sold
	if math.Abs(p.RemainingSize) < dustSize {
		p.RemainingSize = 0
	}
	p.RealizedPnL += realized
	p.OpenPnL = p.RemainingSize * p.PnLPct / 100
	return realized
}
