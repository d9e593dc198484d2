// Package journal escribe las líneas de audit que consume el visor externo.
package journal

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alejandrodnm/autotrader/internal/domain"
	"github.com/alejandrodnm/autotrader/internal/ports"
	"github.com/google/uuid"
)

// Scopes de las líneas de audit.
const (
	ScopeTrade = "trade"
	ScopeSim   = "sim"
	ScopeAllow = "allow"
)

// Journal reparte cada evento a todos los sinks. Los fallos de un sink se
// registran y no interrumpen el trading. Un *Journal nil descarta todo.
type Journal struct {
	sinks []ports.AuditSink
	now   func() time.Time
}

// New crea un journal sobre los sinks dados (los nil se ignoran).
func New(sinks ...ports.AuditSink) *Journal {
	j := &Journal{now: time.Now}
	for _, s := range sinks {
		if s != nil {
			j.sinks = append(j.sinks, s)
		}
	}
	return j
}

// Logf registra una línea formateada.
func (j *Journal) Logf(ctx context.Context, scope string, kind domain.AuditKind, pairKey, format string, args ...any) {
	if j == nil || len(j.sinks) == 0 {
		return
	}
	ev := domain.AuditEvent{
		ID:      uuid.New().String(),
		At:      j.now(),
		Scope:   scope,
		Kind:    kind,
		PairKey: pairKey,
		Message: fmt.Sprintf(format, args...),
	}
	for _, s := range j.sinks {
		if err := s.Record(ctx, ev); err != nil {
			slog.Warn("journal: sink failed", "scope", scope, "kind", kind, "err", err)
		}
	}
}
