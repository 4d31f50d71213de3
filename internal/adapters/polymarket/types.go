package polymarket

import "encoding/json"

// DTOs raw de la API de Polymarket. Solo se usan dentro de este paquete.
// La conversión a domain entities se hace en mapping.go.

// --- Gamma API ---

// gammaMarketsResponse es la respuesta de GET /markets de Gamma.
type gammaMarketsResponse []gammaMarket

// gammaMarket es un mercado tal como lo devuelve Gamma. Varios campos llegan
// como strings JSON anidados (arrays codificados dentro de un string) y los
// numéricos como strings, de ahí json.Number y el parseo en mapping.go.
type gammaMarket struct {
	ID            string      `json:"id"`
	ConditionID   string      `json:"conditionId"`
	Question      string      `json:"question"`
	Slug          string      `json:"slug"`
	Category      string      `json:"category"`
	Outcomes      string      `json:"outcomes"`      // `["Yes","No"]` como string
	OutcomePrices string      `json:"outcomePrices"` // `["0.35","0.65"]` como string
	ClobTokenIDs  string      `json:"clobTokenIds"`  // `["123...","456..."]` como string
	EndDateISO    string      `json:"endDateIso"`
	EndDate       string      `json:"endDate"`
	Volume24h     json.Number `json:"volume24hr"`
	Liquidity     json.Number `json:"liquidity"`
	Active        bool        `json:"active"`
	Closed        bool        `json:"closed"`
}

// --- CLOB API ---

// orderBookRequest es el body de un item del POST /books batch.
type orderBookRequest struct {
	TokenID string `json:"token_id"`
}

// orderBookResponse es la respuesta de un item en POST /books.
type orderBookResponse struct {
	AssetID string         `json:"asset_id"`
	Bids    []bookEntryRaw `json:"bids"`
	Asks    []bookEntryRaw `json:"asks"`
}

// bookEntryRaw es un nivel de precio raw de la API (strings para mayor precisión).
type bookEntryRaw struct {
	Price string `json:"price"`
	Size  string `json:"size"`
}
