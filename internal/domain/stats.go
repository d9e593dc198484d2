package domain

// SimStats resume el rendimiento del motor de simulación.
type SimStats struct {
	TotalTrades        int
	WinningTrades      int
	LosingTrades       int
	WinRate            float64 // %
	TotalPnLClosed     float64
	TotalPnLOpen       float64
	AvgPnLPerTrade     float64
	OpenPositions      int
	PendingBuys        int
	RealizedPnLPartial float64 // parciales realizados en posiciones aún abiertas
	TotalPnLRealized   float64 // cerrado + parciales, sin el PnL abierto
}
