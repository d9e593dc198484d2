package domain

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Position es una posición real abierta, indexada por pair key.
type Position struct {
	PairKey       string
	Venue         Venue
	Token         common.Address
	BaseSymbol    string
	QuoteSymbol   string
	EntryPrice    float64
	LastPrice     float64
	CommittedSize float64 // BNB gastados en la compra
	RemainingSize float64 // nunca crece tras la creación
	OpenedAt      time.Time
	TPPct         *float64
	SLPct         *float64
	Frozen        bool
}

// PnLPct devuelve el PnL porcentual a un precio dado.
func (p Position) PnLPct(price float64) float64 {
	return PnLPct(p.EntryPrice, price)
}

// Held devuelve cuánto tiempo lleva abierta la posición.
func (p Position) Held(now time.Time) time.Duration {
	return now.Sub(p.OpenedAt)
}

// PositionStatus es el estado de una posición simulada.
type PositionStatus string

const (
	StatusOpen         PositionStatus = "open"
	StatusClosedTP     PositionStatus = "closed_tp"
	StatusClosedSL     PositionStatus = "closed_sl"
	StatusClosedHold   PositionStatus = "closed_max_hold"
	StatusClosedManual PositionStatus = "closed_manual"
)

// SimPosition es una posición del motor de simulación.
type SimPosition struct {
	PairKey        string
	Venue          Venue
	BaseSymbol     string
	QuoteSymbol    string
	EntryPrice     float64
	CurrentPrice   float64
	CommittedSize  float64
	RemainingSize  float64
	OpenedAt       time.Time
	ClosedAt       *time.Time
	Status         PositionStatus
	Liquidity      *float64
	OutOfLiquidity bool
	NeedsLiqAck    bool // alerta de liquidez pendiente de confirmar por el operador
	TPPct          *float64
	SLPct          *float64
	PnLPct         float64
	OpenPnL        float64 // PnL sobre la parte todavía abierta
	RealizedPnL    float64 // PnL realizado por ventas parciales
	Frozen         bool
	Mirror         bool // refleja una posición real
}

// IsOpen indica si la posición sigue abierta.
func (p SimPosition) IsOpen() bool {
	return p.Status == StatusOpen
}

// TotalPnL suma el PnL realizado y el abierto.
func (p SimPosition) TotalPnL() float64 {
	return p.RealizedPnL + p.OpenPnL
}

// Duration devuelve la duración hasta el cierre (o hasta now si sigue abierta).
func (p SimPosition) Duration(now time.Time) time.Duration {
	if p.ClosedAt != nil {
		return p.ClosedAt.Sub(p.OpenedAt)
	}
	return now.Sub(p.OpenedAt)
}

// PendingBuy es una intención de compra que se ejecuta al precio del siguiente tick.
type PendingBuy struct {
	PairKey     string
	Venue       Venue
	BaseSymbol  string
	QuoteSymbol string
	Size        float64
	TPPct       *float64
	SLPct       *float64
	SubmittedAt time.Time
}

// ClosedPosition es el registro archivado de una posición cerrada.
type ClosedPosition struct {
	ID         string
	Mode       string // "real" | "sim"
	PairKey    string
	Venue      Venue
	BaseSymbol string
	EntryPrice float64
	ExitPrice  float64
	Size       float64
	PnLPct     float64
	PnL        float64
	Trigger    string
	TxHash     string
	OpenedAt   time.Time
	ClosedAt   time.Time
}

// PnLPct calcula (current/entry − 1) × 100. Devuelve 0 si entry no es positivo.
func PnLPct(entry, current float64) float64 {
	if entry <= 0 {
		return 0
	}
	return (current/entry - 1) * 100
}
