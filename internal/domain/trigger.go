package domain

import "fmt"

// TriggerKind es el motivo de un cierre.
type TriggerKind int

const (
	TriggerTakeProfit TriggerKind = iota + 1
	TriggerStopLoss
	TriggerMaxHold
	TriggerManual
)

func (k TriggerKind) String() string {
	switch k {
	case TriggerTakeProfit:
		return "take_profit"
	case TriggerStopLoss:
		return "stop_loss"
	case TriggerMaxHold:
		return "max_hold"
	case TriggerManual:
		return "manual"
	default:
		return "unknown"
	}
}

// CloseTrigger describe por qué se cierra una posición.
type CloseTrigger struct {
	Kind     TriggerKind
	Pct      float64 // umbral de TP o SL
	HoldSecs int64
}

// Describe devuelve la forma corta usada en el audit: "TP 10.00%", "SL -5.00%", "Max hold 60s".
func (t CloseTrigger) Describe() string {
	switch t.Kind {
	case TriggerTakeProfit:
		return fmt.Sprintf("TP %.2f%%", t.Pct)
	case TriggerStopLoss:
		return fmt.Sprintf("SL -%.2f%%", t.Pct)
	case TriggerMaxHold:
		return fmt.Sprintf("Max hold %ds", t.HoldSecs)
	default:
		return "Manual"
	}
}

// SellPlan es la instrucción efímera de cierre de una posición real.
type SellPlan struct {
	PairKey    string
	Position   Position
	PnLPct     float64
	Trigger    CloseTrigger
	PercentPts int  // 1..100
	Reserved   bool // true si se tomó reserve_close
}

// Full indica si el plan cierra el 100% de la posición.
func (p SellPlan) Full() bool {
	return p.PercentPts >= 100
}
