// Package retry contiene los reintentos acotados con backoff que comparten
// las aprobaciones y las esperas de confirmación de balance.
package retry

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"
)

// DelayFunc devuelve la espera tras el intento attempt (0-based) fallido.
type DelayFunc func(attempt int) time.Duration

// Linear espera base × (attempt+1).
func Linear(base time.Duration) DelayFunc {
	return func(attempt int) time.Duration {
		return base * time.Duration(attempt+1)
	}
}

// Fixed espera siempre d.
func Fixed(d time.Duration) DelayFunc {
	return func(int) time.Duration { return d }
}

// Exponential espera base × 2^attempt, acotado por ceiling (0 = sin techo).
func Exponential(base, ceiling time.Duration) DelayFunc {
	return func(attempt int) time.Duration {
		d := math.Pow(2, float64(attempt)) * float64(base)
		if ceiling > 0 && d > float64(ceiling) {
			return ceiling
		}
		if d > math.MaxInt64 {
			return time.Duration(math.MaxInt64)
		}
		return time.Duration(d)
	}
}

// Policy es el presupuesto de reintentos.
type Policy struct {
	Attempts int
	Delay    DelayFunc
}

// Do ejecuta fn hasta Attempts veces, esperando Delay(i) tras cada fallo
// (también tras el último, igual que el backoff de aprobaciones).
// Devuelve nil en el primer éxito o el último error.
func Do(ctx context.Context, p Policy, fn func(ctx context.Context) error) error {
	attempts := max(p.Attempts, 1)
	var lastErr error
	for i := 0; i < attempts; i++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return fmt.Errorf("%w (last error: %v)", err, lastErr)
			}
			return err
		}
		if lastErr = fn(ctx); lastErr == nil {
			return nil
		}
		if p.Delay != nil {
			if err := Sleep(ctx, p.Delay(i)); err != nil {
				return fmt.Errorf("%w (last error: %v)", err, lastErr)
			}
		}
	}
	return fmt.Errorf("after %d attempts: %w", attempts, lastErr)
}

// Poll espera Delay(i) y evalúa cond hasta Attempts veces.
// Devuelve true en cuanto cond se cumple. Los errores de cond cuentan como "todavía no".
func Poll(ctx context.Context, p Policy, cond func(ctx context.Context) (bool, error)) (bool, error) {
	for i := 0; i < max(p.Attempts, 1); i++ {
		if p.Delay != nil {
			if err := Sleep(ctx, p.Delay(i)); err != nil {
				return false, err
			}
		}
		ok, err := cond(ctx)
		if err != nil {
			slog.Debug("retry: poll condition error", "attempt", i+1, "err", err)
			continue
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

// Sleep espera d respetando el contexto.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Detached lanza fn en segundo plano con semántica best-effort, at-most-once:
// no se reintenta ni se espera, y un error solo se registra en el log.
func Detached(ctx context.Context, name string, fn func(ctx context.Context) error) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				slog.Error("detached task panicked", "task", name, "panic", r)
			}
		}()
		if err := fn(context.WithoutCancel(ctx)); err != nil {
			slog.Warn("detached task failed", "task", name, "err", err)
		}
	}()
}
