package ports

import (
	"context"

	"github.com/alejandrodnm/polysim/internal/domain"
)

// BookProvider obtiene orderbooks usando el endpoint batch del CLOB.
type BookProvider interface {
	// FetchOrderBooks devuelve los orderbooks para los token_ids dados.
	// Internamente agrupa los IDs en batches de máx 10 por request.
	// Un token ausente del resultado significa "desconocido": el caller
	// debe tratarlo como ilíquido.
	FetchOrderBooks(ctx context.Context, tokenIDs []string) (map[string]domain.OrderBook, error)
}
