package domain

import "time"

// MarketSnapshot es una observación inmutable de un mercado de predicción
// en un instante dado. Producida por el feed adapter; el core solo la lee.
type MarketSnapshot struct {
	Timestamp time.Time
	MarketID  string
	Question  string
	Outcomes  []Outcome // mercados binarios: exactamente 2
	Liquidity float64   // USDC agregado en el book
	Volume24h float64   // volumen últimas 24h en USDC
	EndDate   time.Time // fecha de resolución
	Tags      []string
	Active    bool
}

// Outcome es uno de los lados del mercado con su precio actual.
type Outcome struct {
	Name    string
	TokenID string
	Price   float64 // probabilidad implícita en [0,1]
}

// IsBinary devuelve true si el snapshot tiene exactamente dos outcomes.
func (s MarketSnapshot) IsBinary() bool {
	return len(s.Outcomes) == 2
}

// HoursToEnd devuelve las horas hasta que el mercado se resuelve,
// medidas desde now. Devuelve 0 si EndDate no está definido o ya pasó.
func (s MarketSnapshot) HoursToEnd(now time.Time) float64 {
	if s.EndDate.IsZero() {
		return 0
	}
	h := s.EndDate.Sub(now).Hours()
	if h < 0 {
		return 0
	}
	return h
}

// OutcomeByName busca un outcome por nombre. Devuelve false si no existe.
func (s MarketSnapshot) OutcomeByName(name string) (Outcome, bool) {
	for _, o := range s.Outcomes {
		if o.Name == name {
			return o, true
		}
	}
	return Outcome{}, false
}

// TruncateQuestion devuelve la pregunta truncada a maxLen caracteres.
// Si está vacía usa los primeros caracteres del marketID como fallback.
func TruncateQuestion(question, marketID string, maxLen int) string {
	q := question
	if q == "" {
		if len(marketID) > 20 {
			q = marketID[:20] + "..."
		} else {
			q = marketID
		}
	}
	if len(q) > maxLen {
		q = q[:maxLen-3] + "..."
	}
	return q
}
