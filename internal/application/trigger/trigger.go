// Package trigger decide si una posición debe cerrarse en un tick de precio.
package trigger

import (
	"time"

	"github.com/alejandrodnm/autotrader/config"
	"github.com/alejandrodnm/autotrader/internal/domain"
)

// DefaultMaxHoldPnLThreshold es el PnL máximo (%) con el que max-hold puede cerrar.
const DefaultMaxHoldPnLThreshold = 50.0

// Rules son los parámetros de cierre automático.
type Rules struct {
	TPPct               *float64 // nil = TP deshabilitado
	SLPct               *float64 // nil = SL deshabilitado
	MaxHold             time.Duration
	MaxHoldPnLGate      bool
	MaxHoldPnLThreshold float64
}

// RulesFrom construye las reglas desde un snapshot de settings.
func RulesFrom(ts config.TradeSettings) Rules {
	threshold := ts.MaxHoldPnLThreshold
	if threshold == 0 {
		threshold = DefaultMaxHoldPnLThreshold
	}
	return Rules{
		TPPct:               ts.TP(),
		SLPct:               ts.SL(),
		MaxHold:             ts.MaxHold,
		MaxHoldPnLGate:      ts.MaxHoldPnLGate,
		MaxHoldPnLThreshold: threshold,
	}
}

// WithPosition usa los TP/SL fijados al abrir la posición en lugar de los actuales.
func (r Rules) WithPosition(tp, sl *float64) Rules {
	r.TPPct = tp
	r.SLPct = sl
	return r
}

// Subject es la vista mínima de una posición que necesita el evaluador.
type Subject struct {
	EntryPrice    float64
	RemainingSize float64
	OpenedAt      time.Time
	Frozen        bool
}

// Decision es el resultado de una evaluación.
type Decision struct {
	Fire    bool
	PnLPct  float64
	Trigger domain.CloseTrigger
}

// Evaluate aplica, en orden estricto, take-profit, stop-loss y max-hold.
// Una posición congelada, sin tamaño restante o con entry no positivo nunca dispara.
func Evaluate(s Subject, price float64, now time.Time, r Rules) Decision {
	if s.EntryPrice <= 0 {
		return Decision{}
	}
	pnl := domain.PnLPct(s.EntryPrice, price)
	d := Decision{PnLPct: pnl}

	if s.Frozen || s.RemainingSize <= 0 {
		return d
	}

	if r.TPPct != nil && pnl >= *r.TPPct {
		d.Fire = true
		d.Trigger = domain.CloseTrigger{Kind: domain.TriggerTakeProfit, Pct: *r.TPPct}
		return d
	}
	if r.SLPct != nil && pnl <= -*r.SLPct {
		d.Fire = true
		d.Trigger = domain.CloseTrigger{Kind: domain.TriggerStopLoss, Pct: *r.SLPct}
		return d
	}
	if r.MaxHold > 0 && now.Sub(s.OpenedAt) >= r.MaxHold {
		if !r.MaxHoldPnLGate || pnl <= r.MaxHoldPnLThreshold {
			d.Fire = true
			d.Trigger = domain.CloseTrigger{Kind: domain.TriggerMaxHold, HoldSecs: int64(r.MaxHold / time.Second)}
		}
	}
	return d
}
