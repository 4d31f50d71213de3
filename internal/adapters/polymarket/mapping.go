package polymarket

import (
	"encoding/json"
	"log/slog"
	"sort"
	"strconv"
	"time"

	"github.com/alejandrodnm/polysim/internal/domain"
)

// mapGammaMarket convierte un gammaMarket a domain.MarketSnapshot.
// Devuelve false si el mercado no se puede mapear con seguridad: outcomes y
// precios desalineados, arrays corruptos o sin outcomes.
func mapGammaMarket(r gammaMarket) (domain.MarketSnapshot, bool) {
	outcomes, err := parseStringArray(r.Outcomes)
	if err != nil || len(outcomes) == 0 {
		logUnmappable(r, "outcomes", err)
		return domain.MarketSnapshot{}, false
	}
	prices, err := parseFloatArray(r.OutcomePrices)
	if err != nil || len(prices) != len(outcomes) {
		logUnmappable(r, "outcomePrices", err)
		return domain.MarketSnapshot{}, false
	}
	tokens, err := parseStringArray(r.ClobTokenIDs)
	if err != nil {
		logUnmappable(r, "clobTokenIds", err)
		return domain.MarketSnapshot{}, false
	}

	s := domain.MarketSnapshot{
		MarketID: marketID(r),
		Question: r.Question,
		Active:   r.Active && !r.Closed,
		EndDate:  parseEndDate(r),
	}
	if v, err := r.Volume24h.Float64(); err == nil {
		s.Volume24h = v
	}
	if v, err := r.Liquidity.Float64(); err == nil {
		s.Liquidity = v
	}
	if r.Category != "" {
		s.Tags = []string{r.Category}
	}

	for i, name := range outcomes {
		o := domain.Outcome{Name: name, Price: prices[i]}
		if i < len(tokens) {
			o.TokenID = tokens[i]
		}
		s.Outcomes = append(s.Outcomes, o)
	}
	return s, true
}

// marketID prefiere el conditionId; algunos mercados viejos solo traen id.
func marketID(r gammaMarket) string {
	if r.ConditionID != "" {
		return r.ConditionID
	}
	return r.ID
}

// parseEndDate intenta los formatos de fecha que usa Polymarket.
func parseEndDate(r gammaMarket) time.Time {
	raw := r.EndDateISO
	if raw == "" {
		raw = r.EndDate
	}
	if raw == "" {
		return time.Time{}
	}
	for _, layout := range []string{
		time.RFC3339,
		"2006-01-02T15:04:05.000Z",
		"2006-01-02T15:04:05Z",
		"2006-01-02",
	} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

// parseStringArray decodifica un array JSON codificado dentro de un string,
// p.ej. `["Yes","No"]`.
func parseStringArray(raw string) ([]string, error) {
	if raw == "" {
		return nil, nil
	}
	var out []string
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, err
	}
	return out, nil
}

// parseFloatArray decodifica un array de números codificados como strings
// dentro de un string JSON, p.ej. `["0.35","0.65"]`.
func parseFloatArray(raw string) ([]float64, error) {
	strs, err := parseStringArray(raw)
	if err != nil {
		return nil, err
	}
	out := make([]float64, 0, len(strs))
	for _, s := range strs {
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, nil
}

func logUnmappable(r gammaMarket, field string, err error) {
	slog.Debug("skipping unmappable gamma market",
		"market", marketID(r), "field", field, "err", err)
}

// mapOrderBooks convierte la respuesta batch de /books a un map tokenID→OrderBook.
func mapOrderBooks(raw []orderBookResponse) map[string]domain.OrderBook {
	result := make(map[string]domain.OrderBook, len(raw))
	for _, r := range raw {
		ob := domain.OrderBook{
			TokenID: r.AssetID,
			Bids:    mapBookEntries(r.Bids, false),
			Asks:    mapBookEntries(r.Asks, true),
		}
		result[r.AssetID] = ob
	}
	return result
}

// mapBookEntries convierte entries raw a domain.BookEntry y los ordena.
// ascending=true → menor a mayor (asks), ascending=false → mayor a menor (bids).
func mapBookEntries(raw []bookEntryRaw, ascending bool) []domain.BookEntry {
	entries := make([]domain.BookEntry, 0, len(raw))
	for _, r := range raw {
		price, _ := strconv.ParseFloat(r.Price, 64)
		size, _ := strconv.ParseFloat(r.Size, 64)
		if price <= 0 || size <= 0 {
			continue
		}
		entries = append(entries, domain.BookEntry{Price: price, Size: size})
	}

	sort.Slice(entries, func(i, j int) bool {
		if ascending {
			return entries[i].Price < entries[j].Price
		}
		return entries[i].Price > entries[j].Price
	})

	return entries
}
