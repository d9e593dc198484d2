package paper

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alejandrodnm/autotrader/config"
	"github.com/alejandrodnm/autotrader/internal/application/engine"
	"github.com/alejandrodnm/autotrader/internal/application/journal"
	"github.com/alejandrodnm/autotrader/internal/domain"
)

// Trader es el camino de compra en modo simulación: pasa la cadena de admisión
// contra el libro del simulador y envía la compra pendiente.
type Trader struct {
	sim       *Engine
	admission *engine.Admission
	journal   *journal.Journal
	recorder  engine.Recorder
}

// NewTrader crea el trader simulado.
func NewTrader(sim *Engine, admission *engine.Admission, j *journal.Journal, rec engine.Recorder) *Trader {
	if rec == nil {
		rec = engine.NopRecorder{}
	}
	return &Trader{sim: sim, admission: admission, journal: j, recorder: rec}
}

// Consider evalúa una compra simulada para el candidato. Devuelve true si se envió.
func (t *Trader) Consider(ctx context.Context, c engine.Candidate, ts config.TradeSettings, now time.Time) bool {
	ev := c.Event
	if rej := t.admission.Check(c, t.sim, ts, now); rej != nil {
		t.recorder.Rejected(engine.ModeSim, rej.Reason)
		slog.Debug("paper: buy rejected", "pair", ev.PairKey, "symbol", ev.BaseSymbol, "reason", rej.String())
		if !rej.Routine() {
			t.journal.Logf(ctx, journal.ScopeSim, domain.AuditReject, ev.PairKey, "REJECTED %s: %s", engine.TruncateStr(ev.BaseSymbol, engine.SymbolLen), rej.String())
		}
		return false
	}

	ok := t.sim.SubmitBuy(domain.PendingBuy{
		PairKey:     ev.PairKey,
		Venue:       ev.Venue,
		BaseSymbol:  ev.BaseSymbol,
		QuoteSymbol: ev.QuoteSymbol,
		Size:        ts.BuyAmount,
		TPPct:       ts.TP(),
		SLPct:       ts.SL(),
		SubmittedAt: now,
	})
	if !ok {
		return false
	}

	liq := "?"
	if ev.Liquidity != nil {
		liq = fmt.Sprintf("%.0f", *ev.Liquidity)
	}
	slog.Info("paper: buy submitted", "pair", ev.PairKey, "symbol", ev.BaseSymbol,
		"price", fmt.Sprintf("%.8f", ev.Price), "buys", ev.BuyCount, "liq", liq)
	t.journal.Logf(ctx, journal.ScopeSim, domain.AuditSubmit, ev.PairKey, "✓ SUBMITTED %s @ %.8f (buys:%d liq:$%s)",
		engine.TruncateStr(ev.BaseSymbol, engine.SymbolLen), ev.Price, ev.BuyCount, liq)
	return true
}
