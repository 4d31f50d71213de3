package ports

import (
	"context"

	"github.com/alejandrodnm/polysim/internal/domain"
)

// TradeStorage persiste el estado de una sesión de trading: snapshots
// observados en live (fuente de replays posteriores), trades cerrados y
// resúmenes de ejecución.
type TradeStorage interface {
	// SaveSnapshots persiste un batch de snapshots observados en live.
	SaveSnapshots(ctx context.Context, snaps []domain.MarketSnapshot) error

	// SaveTrade persiste una posición cerrada.
	SaveTrade(ctx context.Context, p domain.Position) error

	// SaveRun persiste el resumen de una ejecución completa.
	SaveRun(ctx context.Context, r domain.RunSummary) error

	// Close cierra la conexión a la base de datos limpiamente.
	Close() error
}
