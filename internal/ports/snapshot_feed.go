package ports

import (
	"context"
	"time"

	"github.com/alejandrodnm/polysim/internal/domain"
)

// SnapshotFeed obtiene el estado actual de los mercados activos.
// Es el collaborator del PollDriver: un fetch por tick.
type SnapshotFeed interface {
	// FetchSnapshots devuelve un snapshot por mercado activo.
	// Pagina automáticamente hasta obtener todos los resultados.
	FetchSnapshots(ctx context.Context) ([]domain.MarketSnapshot, error)
}

// SnapshotSource entrega snapshots históricos pre-ordenados por timestamp.
// Es el collaborator del ReplayDriver.
type SnapshotSource interface {
	LoadSnapshots(ctx context.Context, from, to time.Time) ([]domain.MarketSnapshot, error)
}
