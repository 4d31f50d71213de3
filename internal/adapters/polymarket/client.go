package polymarket

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

const (
	defaultCLOBBase  = "https://clob.polymarket.com"
	defaultGammaBase = "https://gamma-api.polymarket.com"

	// Cuotas por familia de endpoint, al 60% del límite publicado para
	// dejar margen a otros consumidores de la misma IP:
	//   Gamma /markets publica 300/10s → usamos 18/s
	//   CLOB /books publica 500/10s → usamos 30/s
	gammaRatePerSec = 18
	booksRatePerSec = 30

	maxRetries    = 3
	baseRetryWait = 500 * time.Millisecond
)

// Client habla con las dos APIs de Polymarket (Gamma para mercados, CLOB
// para books). Cada familia lleva su propio token bucket porque las cuotas
// son independientes; el retry con backoff vive en doWithRetry.
type Client struct {
	http         *http.Client
	clobBase     string
	gammaBase    string
	gammaLimiter *rate.Limiter
	booksLimiter *rate.Limiter
}

// NewClient construye el cliente. Base URLs vacíos caen a producción; en
// tests se pasan los URLs de un httptest.Server.
func NewClient(clobBase, gammaBase string) *Client {
	if clobBase == "" {
		clobBase = defaultCLOBBase
	}
	if gammaBase == "" {
		gammaBase = defaultGammaBase
	}
	return &Client{
		http:         &http.Client{Timeout: 10 * time.Second},
		clobBase:     clobBase,
		gammaBase:    gammaBase,
		gammaLimiter: rate.NewLimiter(gammaRatePerSec, 10),
		booksLimiter: rate.NewLimiter(booksRatePerSec, 5),
	}
}

// get decodifica la respuesta de un GET JSON en out.
func (c *Client) get(ctx context.Context, limiter *rate.Limiter, url string, out any) error {
	return c.doWithRetry(ctx, limiter, func() (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")
		return c.http.Do(req)
	}, out)
}

// post envía body como JSON y decodifica la respuesta en out.
func (c *Client) post(ctx context.Context, limiter *rate.Limiter, url string, body, out any) error {
	return c.doWithRetry(ctx, limiter, func() (*http.Response, error) {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal body: %w", err)
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")
		return c.http.Do(req)
	}, out)
}

// doWithRetry ejecuta fn hasta maxRetries+1 veces. Errores de red, 429 y
// 5xx se reintentan con backoff exponencial; un 4xx corta de inmediato con
// el body en el error para diagnóstico. El limiter se consulta antes de
// cada intento, incluidos los reintentos.
func (c *Client) doWithRetry(ctx context.Context, limiter *rate.Limiter, fn func() (*http.Response, error), out any) error {
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if err := limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limiter: %w", err)
		}

		resp, err := fn()
		if err != nil {
			lastErr = err
			c.backoff(ctx, attempt)
			continue
		}

		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			resp.Body.Close()
			lastErr = fmt.Errorf("throttled (429)")
			slog.Warn("api throttled, backing off", "attempt", attempt+1)
			c.backoff(ctx, attempt)
			continue

		case resp.StatusCode >= 500:
			resp.Body.Close()
			lastErr = fmt.Errorf("server error %d", resp.StatusCode)
			c.backoff(ctx, attempt)
			continue

		case resp.StatusCode >= 400:
			body, _ := io.ReadAll(resp.Body)
			resp.Body.Close()
			return fmt.Errorf("client error %d: %s", resp.StatusCode, string(body))
		}

		err = json.NewDecoder(resp.Body).Decode(out)
		resp.Body.Close()
		if err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
		return nil
	}
	return fmt.Errorf("gave up after %d attempts: %w", maxRetries+1, lastErr)
}

// backoff duerme 2^attempt × baseRetryWait; un contexto cancelado corta la
// espera y el siguiente intento falla rápido en limiter.Wait. Tras el último
// intento no hay nada que esperar.
func (c *Client) backoff(ctx context.Context, attempt int) {
	if attempt >= maxRetries {
		return
	}
	wait := baseRetryWait << attempt
	select {
	case <-time.After(wait):
	case <-ctx.Done():
	}
}
