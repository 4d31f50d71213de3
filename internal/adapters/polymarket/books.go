package polymarket

// books.go — Polymarket CLOB /books adapter.
//
// FetchOrderBooks dispara los batch requests en paralelo con un errgroup. El
// rate limiter (token bucket) en doWithRetry controla el ritmo — las
// goroutines se autolimitan sin necesidad de semáforo explícito.

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/alejandrodnm/polysim/internal/domain"
	"golang.org/x/sync/errgroup"
)

const (
	booksPath = "/books"
	batchSize = 10 // máx token_ids por request a /books
)

// FetchOrderBooks implementa ports.BookProvider usando el endpoint batch.
// Un token ausente de la respuesta queda ausente del map: el caller lo trata
// como ilíquido.
func (c *Client) FetchOrderBooks(ctx context.Context, tokenIDs []string) (map[string]domain.OrderBook, error) {
	if len(tokenIDs) == 0 {
		return map[string]domain.OrderBook{}, nil
	}

	batches := splitBatches(tokenIDs, batchSize)

	var mu sync.Mutex
	result := make(map[string]domain.OrderBook, len(tokenIDs))

	g, gctx := errgroup.WithContext(ctx)
	for i, batch := range batches {
		i, batch := i, batch
		g.Go(func() error {
			books, err := c.fetchBooksBatch(gctx, batch)
			if err != nil {
				return fmt.Errorf("clob.FetchOrderBooks batch %d: %w", i, err)
			}
			mu.Lock()
			for k, v := range books {
				result[k] = v
			}
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	slog.Debug("order books fetched", "tokens", len(tokenIDs), "books", len(result))
	return result, nil
}

// splitBatches divide tokenIDs en slices de tamaño máximo size.
func splitBatches(tokenIDs []string, size int) [][]string {
	if size <= 0 {
		size = batchSize
	}
	batches := make([][]string, 0, (len(tokenIDs)+size-1)/size)
	for i := 0; i < len(tokenIDs); i += size {
		end := i + size
		if end > len(tokenIDs) {
			end = len(tokenIDs)
		}
		batches = append(batches, tokenIDs[i:end])
	}
	return batches
}

// fetchBooksBatch hace un POST /books para un batch de token_ids.
func (c *Client) fetchBooksBatch(ctx context.Context, tokenIDs []string) (map[string]domain.OrderBook, error) {
	body := make([]orderBookRequest, len(tokenIDs))
	for i, id := range tokenIDs {
		body[i] = orderBookRequest{TokenID: id}
	}

	var resp []orderBookResponse
	url := c.clobBase + booksPath
	if err := c.post(ctx, c.booksLimiter, url, body, &resp); err != nil {
		return nil, fmt.Errorf("POST /books: %w", err)
	}

	return mapOrderBooks(resp), nil
}
