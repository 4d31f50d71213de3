package ports

import (
	"context"

	"github.com/alejandrodnm/polysim/internal/domain"
)

// Notifier presenta el estado de la sesión al usuario.
type Notifier interface {
	// Notify muestra las estadísticas y las posiciones abiertas del tick.
	// En la implementación de consola, imprime una tabla formateada.
	Notify(ctx context.Context, stats domain.Statistics, open []domain.Position) error
}
