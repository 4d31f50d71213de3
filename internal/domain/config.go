package domain

// StrategyConfig es la forma normalizada de configuración por estrategia.
// Se construye una sola vez en el boundary (config.Normalize); el core nunca
// ve la forma cruda del YAML. Los campos de riesgo en 0 significan "usar el
// default del bucket/estrategia".
type StrategyConfig struct {
	Enabled         bool
	MaxPositions    int
	MaxPositionSize float64 // fracción del capital por posición, p.ej. 0.05
	StopLossPct     float64 // override global del stop-loss (negativo, %)
	TakeProfitPct   float64 // take-profit opcional (positivo, %)
	TrailingStopPct float64 // override global del trailing drawdown (%)
	MaxHoldingHours float64 // override global del tiempo máximo de holding
	CooldownMinutes int     // 0 = default de la estrategia
	// EndWindowHours solo aplica a Convergence: horas antes de la resolución
	// en las que se fuerza el cierre para evitar riesgo de settlement.
	EndWindowHours float64
}
