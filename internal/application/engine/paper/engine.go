package paper

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/alejandrodnm/autotrader/config"
	"github.com/alejandrodnm/autotrader/internal/application/engine"
	"github.com/alejandrodnm/autotrader/internal/application/journal"
	"github.com/alejandrodnm/autotrader/internal/application/trigger"
	"github.com/alejandrodnm/autotrader/internal/domain"
	"github.com/alejandrodnm/autotrader/internal/ports"
	"github.com/google/uuid"
)

const (
	// LiquidityAlertUSD es el umbral por debajo del cual una posición queda sin liquidez.
	LiquidityAlertUSD   = 5.0
	defaultMaxPositions = 3
	dustSize            = 1e-12
)

// Config holds simulation settings.
type Config struct {
	MaxPositions int
}

// Engine es el motor de simulación: mantiene su propio mapa de posiciones,
// independiente del trader real. Es seguro para uso concurrente.
type Engine struct {
	mu           sync.Mutex
	positions    map[string]*domain.SimPosition
	pending      map[string]domain.PendingBuy
	doNotRebuy   map[string]struct{}
	closed       []domain.SimPosition
	maxPositions int
	rules        trigger.Rules

	store    ports.TradeStorage
	journal  *journal.Journal
	recorder engine.Recorder
	now      func() time.Time
}

// New creates a simulation engine. store y j pueden ser nil.
func New(cfg Config, store ports.TradeStorage, j *journal.Journal, rec engine.Recorder) *Engine {
	if cfg.MaxPositions <= 0 {
		cfg.MaxPositions = defaultMaxPositions
	}
	if rec == nil {
		rec = engine.NopRecorder{}
	}
	return &Engine{
		positions:    make(map[string]*domain.SimPosition),
		pending:      make(map[string]domain.PendingBuy),
		doNotRebuy:   make(map[string]struct{}),
		maxPositions: cfg.MaxPositions,
		rules:        trigger.Rules{MaxHoldPnLThreshold: trigger.DefaultMaxHoldPnLThreshold},
		store:        store,
		journal:      j,
		recorder:     rec,
		now:          time.Now,
	}
}

// Apply toma del snapshot el límite de posiciones y las reglas de max-hold.
// TP/SL no cambian: cada posición conserva los que tenía al enviarse.
func (pe *Engine) Apply(ts config.TradeSettings) {
	r := trigger.RulesFrom(ts)
	pe.mu.Lock()
	defer pe.mu.Unlock()
	if ts.MaxPositions > 0 {
		pe.maxPositions = ts.MaxPositions
	}
	pe.rules.MaxHold = r.MaxHold
	pe.rules.MaxHoldPnLGate = r.MaxHoldPnLGate
	pe.rules.MaxHoldPnLThreshold = r.MaxHoldPnLThreshold
}

// SetMaxPositions cambia el límite sin afectar a las posiciones existentes.
func (pe *Engine) SetMaxPositions(n int) {
	pe.mu.Lock()
	pe.maxPositions = n
	pe.mu.Unlock()
}

// HasPositionOrBlocked indica si el par tiene posición, compra pendiente o está en do-not-rebuy.
func (pe *Engine) HasPositionOrBlocked(key string) bool {
	pe.mu.Lock()
	defer pe.mu.Unlock()
	return pe.heldLocked(key)
}

func (pe *Engine) heldLocked(key string) bool {
	_, open := pe.positions[key]
	_, pending := pe.pending[key]
	_, blocked := pe.doNotRebuy[key]
	return open || pending || blocked
}

// OpenCount cuenta posiciones abiertas más compras pendientes.
func (pe *Engine) OpenCount() int {
	pe.mu.Lock()
	defer pe.mu.Unlock()
	return len(pe.positions) + len(pe.pending)
}

// SubmitBuy registra una compra que se ejecutará al precio del siguiente tick del par.
func (pe *Engine) SubmitBuy(pb domain.PendingBuy) bool {
	pe.mu.Lock()
	defer pe.mu.Unlock()

	if pe.heldLocked(pb.PairKey) {
		return false
	}
	if len(pe.positions)+len(pe.pending) >= pe.maxPositions {
		return false
	}
	if pb.SubmittedAt.IsZero() {
		pb.SubmittedAt = pe.now()
	}
	pe.pending[pb.PairKey] = pb
	return true
}

// UpdateOrExecute aplica un tick: ejecuta la compra pendiente del par a este precio o,
// si hay posición, recalcula PnL y liquidez y evalúa los cierres automáticos.
// Con allowClose=false el motor solo refleja (no cierra nada).
// Devuelve un mensaje cuando hubo ejecución o cierre.
func (pe *Engine) UpdateOrExecute(ctx context.Context, key string, price float64, liquidity *float64, allowClose bool) (string, bool) {
	now := pe.now()

	pe.mu.Lock()
	if pb, ok := pe.pending[key]; ok {
		delete(pe.pending, key)
		pos := newPosition(pb, price, now)
		updateLiquidity(pos, liquidity)
		pe.positions[key] = pos
		pe.recorder.OpenPositions(engine.ModeSim, len(pe.positions))
		pe.mu.Unlock()

		msg := fmt.Sprintf("EXECUTED buy for %s at %.8f (simulated 1-block delay)", pb.BaseSymbol, price)
		slog.Info("paper: buy executed", "pair", key, "symbol", pb.BaseSymbol, "price", fmt.Sprintf("%.8f", price))
		pe.recorder.Bought(engine.ModeSim, pb.Venue)
		pe.journal.Logf(ctx, journal.ScopeSim, domain.AuditBuy, key, "%s", msg)
		return msg, true
	}

	pos, ok := pe.positions[key]
	if !ok {
		pe.mu.Unlock()
		return "", false
	}
	updateLiquidity(pos, liquidity)
	updatePrice(pos, price)

	if !allowClose || pos.NeedsLiqAck {
		pe.mu.Unlock()
		return "", false
	}

	rules := pe.rules.WithPosition(pos.TPPct, pos.SLPct)
	d := trigger.Evaluate(trigger.Subject{
		EntryPrice:    pos.EntryPrice,
		RemainingSize: pos.RemainingSize,
		OpenedAt:      pos.OpenedAt,
		Frozen:        pos.Frozen,
	}, price, now, rules)
	if !d.Fire {
		pe.mu.Unlock()
		return "", false
	}
	closed := pe.closeLocked(key, statusFor(d.Trigger.Kind), now)
	pe.mu.Unlock()

	msg := fmt.Sprintf("%s closed %s (%s) PnL: %+.6f WBNB", d.Trigger.Describe(), closed.BaseSymbol, key, closed.TotalPnL())
	slog.Info("paper: position closed", "pair", key, "trigger", d.Trigger.Kind.String(),
		"pnl_pct", fmt.Sprintf("%.2f%%", closed.PnLPct), "pnl", fmt.Sprintf("%+.6f", closed.TotalPnL()))
	pe.recorder.Sold(engine.ModeSim, d.Trigger.Kind, true)
	pe.journal.Logf(ctx, journal.ScopeSim, domain.AuditSell, key, "%s", msg)
	pe.archive(ctx, closed, d.Trigger.Describe())
	return msg, true
}

// Take cierra manualmente una posición. Falla si tiene una alerta de liquidez sin confirmar.
func (pe *Engine) Take(ctx context.Context, key string) (domain.SimPosition, error) {
	pe.mu.Lock()
	pos, ok := pe.positions[key]
	if !ok {
		pe.mu.Unlock()
		return domain.SimPosition{}, fmt.Errorf("paper.Take: %s: %w", key, domain.ErrPositionNotFound)
	}
	if pos.NeedsLiqAck {
		pe.mu.Unlock()
		return domain.SimPosition{}, fmt.Errorf("paper.Take: %s: %w", key, domain.ErrLiquidityAlert)
	}
	closed := pe.closeLocked(key, domain.StatusClosedManual, pe.now())
	pe.mu.Unlock()

	pe.afterManualClose(ctx, closed, "Manual")
	return closed, nil
}

// MirrorClose cierra la posición espejo de una venta real. No respeta la alerta de
// liquidez: la venta ya ocurrió en cadena. No se archiva; el trader real archiva la suya.
func (pe *Engine) MirrorClose(ctx context.Context, key string, reason string) (domain.SimPosition, bool) {
	pe.mu.Lock()
	if _, ok := pe.positions[key]; !ok {
		pe.mu.Unlock()
		return domain.SimPosition{}, false
	}
	closed := pe.closeLocked(key, domain.StatusClosedManual, pe.now())
	pe.mu.Unlock()

	pe.journal.Logf(ctx, journal.ScopeSim, domain.AuditMirror, key, "mirror close %s (%s) PnL: %+.6f WBNB", closed.BaseSymbol, reason, closed.TotalPnL())
	return closed, true
}

// TakeAll cierra todas las posiciones salvo las congeladas y las que tienen alerta de liquidez.
func (pe *Engine) TakeAll(ctx context.Context) []domain.SimPosition {
	now := pe.now()
	pe.mu.Lock()
	keys := make([]string, 0, len(pe.positions))
	for k, p := range pe.positions {
		if p.Frozen || p.NeedsLiqAck {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]domain.SimPosition, 0, len(keys))
	for _, k := range keys {
		out = append(out, pe.closeLocked(k, domain.StatusClosedManual, now))
	}
	pe.mu.Unlock()

	for _, c := range out {
		pe.afterManualClose(ctx, c, "Manual")
	}
	return out
}

func (pe *Engine) afterManualClose(ctx context.Context, closed domain.SimPosition, reason string) {
	slog.Info("paper: manual take", "pair", closed.PairKey, "symbol", closed.BaseSymbol, "pnl", fmt.Sprintf("%+.6f", closed.TotalPnL()))
	pe.recorder.Sold(engine.ModeSim, domain.TriggerManual, true)
	pe.journal.Logf(ctx, journal.ScopeSim, domain.AuditManual, closed.PairKey, "TAKE %s PnL: %+.6f WBNB", closed.BaseSymbol, closed.TotalPnL())
	pe.archive(ctx, closed, reason)
}

// PartialTake vende una fracción (0, 1] del tamaño restante. Realiza la parte
// proporcional del PnL y no cierra la posición aunque quede a cero: el cierre
// siempre es un Take explícito. emptied indica si el restante llegó a cero.
func (pe *Engine) PartialTake(ctx context.Context, key string, fraction float64) (realized float64, emptied bool, err error) {
	pe.mu.Lock()
	defer pe.mu.Unlock()
	pos, ok := pe.positions[key]
	switch {
	case !ok:
		return 0, false, fmt.Errorf("paper.PartialTake: %s: %w", key, domain.ErrPositionNotFound)
	case pos.Frozen:
		return 0, false, fmt.Errorf("paper.PartialTake: %s: %w", key, domain.ErrFrozen)
	case pos.NeedsLiqAck:
		return 0, false, fmt.Errorf("paper.PartialTake: %s: %w", key, domain.ErrLiquidityAlert)
	case !(fraction > 0 && fraction <= 1):
		return 0, false, fmt.Errorf("paper.PartialTake: fraction %v out of range (0, 1]", fraction)
	}
	realized = partialSell(pos, fraction)
	return realized, pos.RemainingSize == 0, nil
}

// MirrorPartial refleja una venta parcial real. Ignora congelado y alerta de liquidez.
func (pe *Engine) MirrorPartial(key string, fraction float64) (float64, bool) {
	pe.mu.Lock()
	defer pe.mu.Unlock()
	pos, ok := pe.positions[key]
	if !ok || !(fraction > 0 && fraction <= 1) {
		return 0, false
	}
	return partialSell(pos, fraction), true
}

// MirrorBuy añade una compra real confirmada sin el retardo de un tick.
// Si ya existe posición para el par no hace nada.
func (pe *Engine) MirrorBuy(p domain.Position, liquidity *float64) bool {
	pe.mu.Lock()
	defer pe.mu.Unlock()
	if _, ok := pe.positions[p.PairKey]; ok {
		return false
	}
	pos := newPosition(domain.PendingBuy{
		PairKey:     p.PairKey,
		Venue:       p.Venue,
		BaseSymbol:  p.BaseSymbol,
		QuoteSymbol: p.QuoteSymbol,
		Size:        p.CommittedSize,
		TPPct:       p.TPPct,
		SLPct:       p.SLPct,
	}, p.EntryPrice, p.OpenedAt)
	pos.Mirror = true
	updateLiquidity(pos, liquidity)
	pe.positions[p.PairKey] = pos
	delete(pe.pending, p.PairKey)
	return true
}

// Remove saca la posición o compra pendiente sin cerrarla en las estadísticas
// y evita que se vuelva a comprar.
func (pe *Engine) Remove(key string) bool {
	pe.mu.Lock()
	defer pe.mu.Unlock()
	_, open := pe.positions[key]
	_, pending := pe.pending[key]
	if !open && !pending {
		return false
	}
	delete(pe.positions, key)
	delete(pe.pending, key)
	pe.doNotRebuy[key] = struct{}{}
	return true
}

// SetFrozen fija el estado congelado. Devuelve false si no hay posición.
func (pe *Engine) SetFrozen(key string, frozen bool) bool {
	pe.mu.Lock()
	defer pe.mu.Unlock()
	pos, ok := pe.positions[key]
	if !ok {
		return false
	}
	pos.Frozen = frozen
	return true
}

// ToggleFrozen invierte el estado congelado y devuelve el nuevo.
func (pe *Engine) ToggleFrozen(key string) (bool, error) {
	pe.mu.Lock()
	defer pe.mu.Unlock()
	pos, ok := pe.positions[key]
	if !ok {
		return false, fmt.Errorf("paper.ToggleFrozen: %s: %w", key, domain.ErrPositionNotFound)
	}
	pos.Frozen = !pos.Frozen
	return pos.Frozen, nil
}

// NeedsLiqAck indica si la posición tiene una alerta de liquidez pendiente.
func (pe *Engine) NeedsLiqAck(key string) bool {
	pe.mu.Lock()
	defer pe.mu.Unlock()
	pos, ok := pe.positions[key]
	return ok && pos.NeedsLiqAck
}

// AckLiqAlert confirma la alerta de una posición.
func (pe *Engine) AckLiqAlert(key string) bool {
	pe.mu.Lock()
	defer pe.mu.Unlock()
	pos, ok := pe.positions[key]
	if !ok || !pos.NeedsLiqAck {
		return false
	}
	pos.NeedsLiqAck = false
	return true
}

// AckAllLiqAlerts confirma todas las alertas y devuelve cuántas había.
func (pe *Engine) AckAllLiqAlerts() int {
	pe.mu.Lock()
	defer pe.mu.Unlock()
	cleared := 0
	for _, pos := range pe.positions {
		if pos.NeedsLiqAck {
			pos.NeedsLiqAck = false
			cleared++
		}
	}
	return cleared
}

// HasPendingLiqAlert indica si alguna posición espera confirmación.
func (pe *Engine) HasPendingLiqAlert() bool {
	pe.mu.Lock()
	defer pe.mu.Unlock()
	for _, pos := range pe.positions {
		if pos.NeedsLiqAck {
			return true
		}
	}
	return false
}

// Position devuelve una copia de la posición abierta.
func (pe *Engine) Position(key string) (domain.SimPosition, bool) {
	pe.mu.Lock()
	defer pe.mu.Unlock()
	pos, ok := pe.positions[key]
	if !ok {
		return domain.SimPosition{}, false
	}
	return *pos, true
}

// OpenPositions devuelve copias ordenadas por apertura (la más antigua primero).
func (pe *Engine) OpenPositions() []domain.SimPosition {
	pe.mu.Lock()
	defer pe.mu.Unlock()
	out := make([]domain.SimPosition, 0, len(pe.positions))
	for _, p := range pe.positions {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OpenedAt.Before(out[j].OpenedAt) })
	return out
}

// ClosedPositions devuelve el histórico de la sesión.
func (pe *Engine) ClosedPositions() []domain.SimPosition {
	pe.mu.Lock()
	defer pe.mu.Unlock()
	out := make([]domain.SimPosition, len(pe.closed))
	copy(out, pe.closed)
	return out
}

// Stats resume la sesión.
func (pe *Engine) Stats() domain.SimStats {
	pe.mu.Lock()
	defer pe.mu.Unlock()

	var st domain.SimStats
	st.TotalTrades = len(pe.closed)
	for _, p := range pe.closed {
		pnl := p.TotalPnL()
		switch {
		case pnl > 0:
			st.WinningTrades++
		case pnl < 0:
			st.LosingTrades++
		}
		st.TotalPnLClosed += pnl
	}
	for _, p := range pe.positions {
		st.TotalPnLOpen += p.OpenPnL
		st.RealizedPnLPartial += p.RealizedPnL
	}
	if st.TotalTrades > 0 {
		st.WinRate = float64(st.WinningTrades) / float64(st.TotalTrades) * 100
		st.AvgPnLPerTrade = st.TotalPnLClosed / float64(st.TotalTrades)
	}
	st.OpenPositions = len(pe.positions)
	st.PendingBuys = len(pe.pending)
	st.TotalPnLRealized = st.TotalPnLClosed + st.RealizedPnLPartial
	return st
}

// Reset vacía posiciones, pendientes e histórico. La lista do-not-rebuy se mantiene.
func (pe *Engine) Reset() {
	pe.mu.Lock()
	defer pe.mu.Unlock()
	pe.positions = make(map[string]*domain.SimPosition)
	pe.pending = make(map[string]domain.PendingBuy)
	pe.closed = nil
	pe.recorder.OpenPositions(engine.ModeSim, 0)
}

// closeLocked saca la posición, pliega el PnL abierto en el realizado y bloquea el par.
func (pe *Engine) closeLocked(key string, status domain.PositionStatus, now time.Time) domain.SimPosition {
	pos := pe.positions[key]
	delete(pe.positions, key)

	pos.RealizedPnL += pos.OpenPnL
	pos.OpenPnL = 0
	pos.Status = status
	closedAt := now
	pos.ClosedAt = &closedAt

	pe.doNotRebuy[key] = struct{}{}
	pe.closed = append(pe.closed, *pos)
	pe.recorder.OpenPositions(engine.ModeSim, len(pe.positions))
	return *pos
}

func (pe *Engine) archive(ctx context.Context, p domain.SimPosition, reason string) {
	if pe.store == nil {
		return
	}
	closedAt := pe.now()
	if p.ClosedAt != nil {
		closedAt = *p.ClosedAt
	}
	cp := domain.ClosedPosition{
		ID:         uuid.New().String(),
		Mode:       engine.ModeSim,
		PairKey:    p.PairKey,
		Venue:      p.Venue,
		BaseSymbol: p.BaseSymbol,
		EntryPrice: p.EntryPrice,
		ExitPrice:  p.CurrentPrice,
		Size:       p.CommittedSize,
		PnLPct:     p.PnLPct,
		PnL:        p.TotalPnL(),
		Trigger:    reason,
		OpenedAt:   p.OpenedAt,
		ClosedAt:   closedAt,
	}
	if err := pe.store.SaveClosed(ctx, cp); err != nil {
		slog.Warn("paper: error archiving closed position", "pair", p.PairKey, "err", err)
	}
}

func statusFor(k domain.TriggerKind) domain.PositionStatus {
	switch k {
	case domain.TriggerTakeProfit:
		return domain.StatusClosedTP
	case domain.TriggerStopLoss:
		return domain.StatusClosedSL
	case domain.TriggerMaxHold:
		return domain.StatusClosedHold
	default:
		return domain.StatusClosedManual
	}
}
