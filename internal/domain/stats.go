package domain

import "time"

// StrategyStats es el desglose de resultados de una estrategia.
type StrategyStats struct {
	Opened       int
	Closed       int
	Wins         int
	Losses       int
	RealizedPnL  float64
	AvgHoldHours float64
}

// Statistics es la vista derivada del ledger: nada aquí se almacena de forma
// redundante, todo se recalcula a partir de las posiciones.
type Statistics struct {
	OpenCount   int
	ClosedCount int
	Wins        int
	Losses      int
	WinRate     float64 // 0..1 sobre posiciones cerradas
	RealizedPnL float64
	FloatingPnL float64
	Equity      float64
	TotalAssets float64
	ByStrategy  map[StrategyType]StrategyStats
}

// RunSummary resume una ejecución completa (backtest o sesión live).
type RunSummary struct {
	Mode        string // "replay" | "poll"
	StartedAt   time.Time
	FinishedAt  time.Time
	Ticks       int
	Opened      int
	Closed      int
	RealizedPnL float64
	FinalEquity float64
	WinRate     float64
}
