package domain

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

var (
	// ErrNothingToSell: el balance del token es cero, no hay nada que vender.
	ErrNothingToSell = errors.New("balance is zero, nothing to sell")
	// ErrPositionNotFound: no existe posición para el pair key.
	ErrPositionNotFound = errors.New("position not found")
	// ErrAlreadyClosing: la posición ya está reservada para cierre.
	ErrAlreadyClosing = errors.New("position already closing")
	// ErrLiquidityAlert: la posición tiene una alerta de liquidez sin confirmar.
	ErrLiquidityAlert = errors.New("liquidity alert not acknowledged")
	// ErrFrozen: la posición está congelada.
	ErrFrozen = errors.New("position is frozen")
)

// AdapterError envuelve un fallo de red o revert de una llamada al venue.
type AdapterError struct {
	Op    string // quote | swap | balance | allowance | approve | wrap
	Venue Venue
	Err   error
}

func (e *AdapterError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Venue, e.Op, e.Err)
}

func (e *AdapterError) Unwrap() error { return e.Err }

// AllowanceError: la aprobación falló tras agotar sus reintentos.
type AllowanceError struct {
	Token common.Address
	Venue Venue
	Err   error
}

func (e *AllowanceError) Error() string {
	return fmt.Sprintf("allowance %s for %s: %v", e.Token.Hex(), e.Venue, e.Err)
}

func (e *AllowanceError) Unwrap() error { return e.Err }

// BalanceMismatchError: la tx se minó pero el balance no cambió como se esperaba.
type BalanceMismatchError struct {
	Token  common.Address
	TxHash string
	Before *big.Int
	After  *big.Int
	Buy    bool
}

func (e *BalanceMismatchError) Error() string {
	if e.Buy {
		return fmt.Sprintf("buy tx %s mined but token balance did not increase (before=%s after=%s)", e.TxHash, e.Before, e.After)
	}
	return fmt.Sprintf("sell tx %s mined but token balance did not decrease (before=%s after=%s)", e.TxHash, e.Before, e.After)
}

// RejectReason enumera los filtros de admisión de compras.
type RejectReason string

const (
	RejectDisabled      RejectReason = "disabled"
	RejectNoPrice       RejectReason = "no_price"
	RejectCJKName       RejectReason = "cjk_name"
	RejectBlockedName   RejectReason = "blocked_name"
	RejectHeld          RejectReason = "held_or_blocked"
	RejectMaxPositions  RejectReason = "max_positions"
	RejectQuote         RejectReason = "quote_not_accepted"
	RejectLiquidity     RejectReason = "low_liquidity"
	RejectNoLiquidity   RejectReason = "unknown_liquidity"
	RejectStale         RejectReason = "stale"
	RejectMinBuys       RejectReason = "min_buys"
	RejectVenueDisabled RejectReason = "venue_disabled"
	RejectBuyAmount     RejectReason = "buy_amount"
)

// Rejection es el resultado de una compra filtrada. No es un error.
type Rejection struct {
	Reason RejectReason
	Detail string
}

// Routine indica un rechazo que se repite en casi cada tick (trading apagado,
// par ya en cartera). Solo va al log de debug, no al journal.
func (r Rejection) Routine() bool {
	return r.Reason == RejectDisabled || r.Reason == RejectHeld
}

func (r Rejection) String() string {
	if r.Detail == "" {
		return string(r.Reason)
	}
	return fmt.Sprintf("%s: %s", r.Reason, r.Detail)
}
