// Package dispatch consume los eventos del feed en un único goroutine y los
// reparte entre las métricas de pares, el simulador y el trader activo.
package dispatch

import (
	"context"
	"log/slog"
	"time"

	"github.com/alejandrodnm/autotrader/config"
	"github.com/alejandrodnm/autotrader/internal/application/engine"
	"github.com/alejandrodnm/autotrader/internal/application/pairs"
	"github.com/alejandrodnm/autotrader/internal/domain"
)

// SettingsSource entrega un snapshot tipado por evento.
type SettingsSource interface {
	Snapshot() config.TradeSettings
}

// Simulator es la parte del motor de simulación que se actualiza en cada tick.
type Simulator interface {
	Apply(ts config.TradeSettings)
	UpdateOrExecute(ctx context.Context, key string, price float64, liquidity *float64, allowClose bool) (string, bool)
}

// SimTrader decide compras simuladas.
type SimTrader interface {
	Consider(ctx context.Context, c engine.Candidate, ts config.TradeSettings, now time.Time) bool
}

// RealTrader cierra y compra contra la cadena.
type RealTrader interface {
	HandleEvent(ctx context.Context, c engine.Candidate, ts config.TradeSettings) error
}

// Dispatcher es el consumidor único del canal de eventos. Procesa un evento
// detrás de otro, así el estado del trader real solo lo toca este goroutine.
type Dispatcher struct {
	settings SettingsSource
	pairs    *pairs.Tracker
	sim      Simulator
	paper    SimTrader
	live     RealTrader // nil = sin trader real (solo simulación)
	now      func() time.Time
}

// New creates a dispatcher.
func New(settings SettingsSource, tracker *pairs.Tracker, sim Simulator, paper SimTrader, live RealTrader) *Dispatcher {
	if tracker == nil {
		tracker = pairs.New(0)
	}
	return &Dispatcher{
		settings: settings,
		pairs:    tracker,
		sim:      sim,
		paper:    paper,
		live:     live,
		now:      time.Now,
	}
}

// Run drena in hasta que ctx termina o el canal se cierra.
func (d *Dispatcher) Run(ctx context.Context, in <-chan domain.PairEvent) error {
	slog.Info("dispatch: starting")
	for {
		select {
		case <-ctx.Done():
			slog.Info("dispatch: stopped")
			return nil
		case ev, ok := <-in:
			if !ok {
				slog.Info("dispatch: feed closed")
				return nil
			}
			d.Handle(ctx, ev)
		}
	}
}

// Handle procesa un evento. Los errores se registran y nunca detienen el loop.
func (d *Dispatcher) Handle(ctx context.Context, ev domain.PairEvent) {
	ev.PairKey = domain.PairKey(ev.PairKey)
	if ev.PairKey == "" {
		return
	}
	ts := d.settings.Snapshot()
	if !ts.VenueEnabled(ev.Venue) {
		return
	}
	now := d.now()

	state, known := d.pairs.Observe(ev, now)
	if !ev.HasPrice() {
		return
	}

	if d.sim != nil {
		d.sim.Apply(ts)
		if msg, ok := d.sim.UpdateOrExecute(ctx, ev.PairKey, ev.Price, ev.Liquidity, ts.SimMode); ok && ts.SimMode {
			slog.Debug("dispatch: sim tick", "pair", ev.PairKey, "msg", msg)
		}
	}

	c := engine.Candidate{Event: ev, Pair: state, Known: known}

	if ts.SimMode {
		if d.paper != nil {
			d.paper.Consider(ctx, c, ts, now)
		}
		return
	}
	if d.live == nil {
		return
	}
	if err := d.live.HandleEvent(ctx, c, ts); err != nil {
		slog.Warn("dispatch: real trader error", "pair", ev.PairKey, "err", err)
	}
}
