package polymarket

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/alejandrodnm/polysim/internal/domain"
)

const (
	gammaMarketsPath = "/markets"
	gammaPageSize    = 100
	// tope de seguridad: 50 páginas ≈ 5000 mercados activos
	gammaMaxPages = 50
)

// FetchSnapshots implementa ports.SnapshotFeed sobre GET /markets de Gamma.
// Pagina con limit/offset hasta agotar los mercados activos; los mercados que
// no se pueden mapear (outcomes corruptos, sin precios) se descartan con log.
func (c *Client) FetchSnapshots(ctx context.Context) ([]domain.MarketSnapshot, error) {
	var all []domain.MarketSnapshot
	skipped := 0

	for page := 0; page < gammaMaxPages; page++ {
		url := fmt.Sprintf("%s%s?active=true&closed=false&limit=%d&offset=%d",
			c.gammaBase, gammaMarketsPath, gammaPageSize, page*gammaPageSize)

		var resp gammaMarketsResponse
		if err := c.get(ctx, c.gammaLimiter, url, &resp); err != nil {
			return nil, fmt.Errorf("gamma.FetchSnapshots page %d: %w", page, err)
		}

		for _, gm := range resp {
			snap, ok := mapGammaMarket(gm)
			if !ok {
				skipped++
				continue
			}
			all = append(all, snap)
		}

		if len(resp) < gammaPageSize {
			break
		}
	}

	slog.Debug("gamma snapshots fetched", "markets", len(all), "skipped", skipped)
	return all, nil
}
