package ports

import (
	"context"

	"github.com/alejandrodnm/autotrader/internal/domain"
)

// PriceFeed emite eventos de precio / descubrimiento de pares hasta que ctx termina.
type PriceFeed interface {
	Run(ctx context.Context, out chan<- domain.PairEvent) error
}
