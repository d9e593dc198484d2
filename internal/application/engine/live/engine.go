package live

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/alejandrodnm/autotrader/config"
	"github.com/alejandrodnm/autotrader/internal/application/engine"
	"github.com/alejandrodnm/autotrader/internal/application/journal"
	"github.com/alejandrodnm/autotrader/internal/application/positions"
	"github.com/alejandrodnm/autotrader/internal/application/trigger"
	"github.com/alejandrodnm/autotrader/internal/domain"
	"github.com/alejandrodnm/autotrader/internal/ports"
	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	sellPollAttempts   = 4
	fmSellPollAttempts = 6
	pollDelay          = 400 * time.Millisecond
	buySettle          = 2 * time.Second
	fmSwapTimeout      = 20 * time.Second
)

// Allowances es la parte del worker de aprobaciones que usa el trader.
type Allowances interface {
	Enqueue(ctx context.Context, token common.Address, venue domain.Venue) error
	EnsureNow(ctx context.Context, venue domain.Venue, token common.Address, amount *big.Int) error
}

// Mirror es el simulador usado como espejo de las operaciones reales.
type Mirror interface {
	MirrorBuy(p domain.Position, liquidity *float64) bool
	MirrorClose(ctx context.Context, key, reason string) (domain.SimPosition, bool)
	MirrorPartial(key string, fraction float64) (float64, bool)
	Position(key string) (domain.SimPosition, bool)
	Remove(key string) bool
}

// Config holds the timings of the confirmation polls.
type Config struct {
	SellPollAttempts   int
	FMSellPollAttempts int
	PollDelay          time.Duration
	BuySettle          time.Duration
	FMSwapTimeout      time.Duration
}

// DefaultConfig devuelve los tiempos de producción.
func DefaultConfig() Config {
	return Config{
		SellPollAttempts:   sellPollAttempts,
		FMSellPollAttempts: fmSellPollAttempts,
		PollDelay:          pollDelay,
		BuySettle:          buySettle,
		FMSwapTimeout:      fmSwapTimeout,
	}
}

// Deps agrupa los colaboradores del trader real.
type Deps struct {
	Store      *positions.Store
	Exec       ports.ExecutionAdapter
	Wrapper    ports.Wrapper
	Allowances Allowances
	Mirror     Mirror // opcional
	Admission  *engine.Admission
	Archive    ports.TradeStorage // opcional
	Journal    *journal.Journal
	Recorder   engine.Recorder
}

// Engine es el trader real: reserva, ejecuta contra el venue, confirma por
// balance y confirma o revierte la transición en el store.
type Engine struct {
	store      *positions.Store
	exec       ports.ExecutionAdapter
	wrapper    ports.Wrapper
	allowances Allowances
	sim        Mirror
	admission  *engine.Admission
	archive    ports.TradeStorage
	journal    *journal.Journal
	recorder   engine.Recorder
	cfg        Config
	now        func() time.Time
}

// New creates the real trading engine.
func New(d Deps, cfg Config) *Engine {
	def := DefaultConfig()
	if cfg.SellPollAttempts <= 0 {
		cfg.SellPollAttempts = def.SellPollAttempts
	}
	if cfg.FMSellPollAttempts <= 0 {
		cfg.FMSellPollAttempts = def.FMSellPollAttempts
	}
	if cfg.PollDelay <= 0 {
		cfg.PollDelay = def.PollDelay
	}
	if cfg.BuySettle <= 0 {
		cfg.BuySettle = def.BuySettle
	}
	if cfg.FMSwapTimeout <= 0 {
		cfg.FMSwapTimeout = def.FMSwapTimeout
	}
	if d.Recorder == nil {
		d.Recorder = engine.NopRecorder{}
	}
	if d.Admission == nil {
		d.Admission = engine.NewAdmission(nil)
	}
	return &Engine{
		store:      d.Store,
		exec:       d.Exec,
		wrapper:    d.Wrapper,
		allowances: d.Allowances,
		sim:        d.Mirror,
		admission:  d.Admission,
		archive:    d.Archive,
		journal:    d.Journal,
		recorder:   d.Recorder,
		cfg:        cfg,
		now:        time.Now,
	}
}

// HandleEvent procesa un tick en modo real: primero intenta cerrar la posición
// del par y, si no hay cierre, evalúa una compra.
func (le *Engine) HandleEvent(ctx context.Context, c engine.Candidate, ts config.TradeSettings) error {
	ev := c.Event
	if !ev.HasPrice() {
		return nil
	}
	now := le.now()

	if plan, ok := le.store.EvaluateAndReserve(ev.PairKey, ev.Price, now, trigger.RulesFrom(ts)); ok {
		slog.Info("live: close triggered", "pair", ev.PairKey, "symbol", plan.Position.BaseSymbol,
			"trigger", plan.Trigger.Describe(), "pnl_pct", fmt.Sprintf("%+.2f%%", plan.PnLPct))
		return le.closePosition(ctx, plan, ts)
	}
	return le.considerBuy(ctx, c, ts, now)
}

// Positions devuelve las posiciones reales abiertas.
func (le *Engine) Positions() []domain.Position {
	return le.store.Positions()
}

// SetFrozen congela una posición real (sin cierres automáticos).
func (le *Engine) SetFrozen(key string, frozen bool) bool {
	return le.store.SetFrozen(domain.PairKey(key), frozen)
}

func (le *Engine) archiveClosed(ctx context.Context, p domain.Position, plan domain.SellPlan, tx string) {
	if le.archive == nil {
		return
	}
	now := le.now()
	cp := domain.ClosedPosition{
		ID:         uuid.New().String(),
		Mode:       engine.ModeReal,
		PairKey:    p.PairKey,
		Venue:      p.Venue,
		BaseSymbol: p.BaseSymbol,
		EntryPrice: p.EntryPrice,
		ExitPrice:  p.LastPrice,
		Size:       p.CommittedSize,
		PnLPct:     plan.PnLPct,
		PnL:        p.RemainingSize * plan.PnLPct / 100,
		Trigger:    plan.Trigger.Describe(),
		TxHash:     tx,
		OpenedAt:   p.OpenedAt,
		ClosedAt:   now,
	}
	if err := le.archive.SaveClosed(ctx, cp); err != nil {
		slog.Warn("live: error archiving closed position", "pair", p.PairKey, "err", err)
	}
}

// bnbToWei convierte un importe en BNB a wei, truncando.
func bnbToWei(bnb float64) *big.Int {
	return decimal.NewFromFloat(bnb).Shift(18).Truncate(0).BigInt()
}

// weiToBNB formatea wei como BNB con 6 decimales.
func weiToBNB(wei *big.Int) string {
	if wei == nil {
		return "0"
	}
	return decimal.NewFromBigInt(wei, -18).StringFixed(6)
}
