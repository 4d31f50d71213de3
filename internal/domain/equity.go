package domain

// EquityAccount tracks capital under strict accounting rules: Equity moves
// only when a position closes (realized P&L), FloatingPnL reflects open
// positions and never leaks into Equity.
type EquityAccount struct {
	InitialCapital float64
	Equity         float64
	FloatingPnL    float64
	// AllowNegative disables the bankruptcy floor. By default equity is
	// clamped at zero and the clamp is reported to the caller.
	AllowNegative bool
}

// NewEquityAccount creates an account funded with initialCapital.
func NewEquityAccount(initialCapital float64, allowNegative bool) *EquityAccount {
	return &EquityAccount{
		InitialCapital: initialCapital,
		Equity:         initialCapital,
		AllowNegative:  allowNegative,
	}
}

// ApplyRealized books the realized P&L of a closed position into equity.
// Returns true if the bankruptcy floor clamped the result.
func (a *EquityAccount) ApplyRealized(pnl float64) (clamped bool) {
	a.Equity += pnl
	if a.Equity < 0 && !a.AllowNegative {
		a.Equity = 0
		return true
	}
	return false
}

// SetFloating replaces the floating P&L snapshot (sum over open positions).
func (a *EquityAccount) SetFloating(pnl float64) {
	a.FloatingPnL = pnl
}

// TotalAssets is equity plus floating P&L.
func (a EquityAccount) TotalAssets() float64 {
	return a.Equity + a.FloatingPnL
}

// RealizedPnL is the cumulative P&L from closed positions.
func (a EquityAccount) RealizedPnL() float64 {
	return a.Equity - a.InitialCapital
}
