package ports

import (
	"context"

	"github.com/alejandrodnm/autotrader/internal/domain"
)

// TradeStorage archiva posiciones cerradas.
type TradeStorage interface {
	SaveClosed(ctx context.Context, cp domain.ClosedPosition) error
	ClosedPositions(ctx context.Context, limit int) ([]domain.ClosedPosition, error)
}

// SettingsStorage persiste la superficie clave/valor de configuración.
type SettingsStorage interface {
	LoadSettings(ctx context.Context) (map[string]string, error)
	SaveSettings(ctx context.Context, kv map[string]string) error
}
