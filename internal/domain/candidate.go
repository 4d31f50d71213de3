package domain

import "time"

// Candidate es un par mercado/outcome actualmente elegible para evaluación
// de estrategias. Todavía no es una posición: vive en el CandidatePool y se
// refresca (o expira) con cada ciclo del feed.
type Candidate struct {
	MarketID    string
	TokenID     string
	Outcome     string
	Question    string
	Probability float64 // precio en el momento de entrar al pool
	// TrendStrength es el cambio relativo de precio desde que el candidato
	// entró al pool: (latest - probability) / probability.
	TrendStrength float64
	AddTime       time.Time
	LastUpdate    time.Time
	LatestPrice   float64
	Liquidity     float64
	Volume24h     float64
	EndDate       time.Time
}

// Key identifica de forma única al candidato: un mercado puede tener un
// candidato por outcome, nunca dos para el mismo (marketID, outcome).
func (c Candidate) Key() string {
	return c.MarketID + "/" + c.Outcome
}

// Refresh actualiza el candidato con el precio y metadata de un snapshot nuevo.
func (c *Candidate) Refresh(price, liquidity, volume24h float64, now time.Time) {
	c.LatestPrice = price
	c.Liquidity = liquidity
	c.Volume24h = volume24h
	c.LastUpdate = now
	if c.Probability > 0 {
		c.TrendStrength = (price - c.Probability) / c.Probability
	}
}

// Expired devuelve true si el candidato no se ha refrescado dentro del TTL.
func (c Candidate) Expired(now time.Time, ttl time.Duration) bool {
	return now.Sub(c.LastUpdate) > ttl
}

// HoursToEnd devuelve las horas hasta la resolución del mercado.
func (c Candidate) HoursToEnd(now time.Time) float64 {
	if c.EndDate.IsZero() {
		return 0
	}
	h := c.EndDate.Sub(now).Hours()
	if h < 0 {
		return 0
	}
	return h
}
