package ports

import (
	"context"

	"github.com/alejandrodnm/autotrader/internal/domain"
)

// AuditSink recibe las líneas de audit para el visor externo.
type AuditSink interface {
	Record(ctx context.Context, ev domain.AuditEvent) error
}
