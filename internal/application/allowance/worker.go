// Package allowance aprueba el gasto de tokens por (token, venue) en segundo plano.
package allowance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/alejandrodnm/autotrader/internal/application/journal"
	"github.com/alejandrodnm/autotrader/internal/domain"
	"github.com/alejandrodnm/autotrader/internal/retry"
	"github.com/ethereum/go-ethereum/common"
)

const (
	defaultQueueSize = 64
	defaultAttempts  = 3
	defaultBackoff   = 300 * time.Millisecond
	sellAttempts     = 2
)

// DefaultFloor es la allowance mínima por debajo de la cual se re-aprueba.
var DefaultFloor = big.NewInt(1_000_000)

// MaxUint256 es el importe de cada approve.
var MaxUint256 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

// unlimitedFloor: a partir de aquí una allowance se trata como ilimitada (max/2).
var unlimitedFloor = new(big.Int).Rsh(MaxUint256, 1)

// ErrQueueClosed se devuelve al encolar después de que el worker terminó.
var ErrQueueClosed = errors.New("allowance queue closed")

// Chain es la parte del ExecutionAdapter que usa el worker.
type Chain interface {
	Owner() common.Address
	Spenders(ctx context.Context, venue domain.Venue, token common.Address) ([]common.Address, error)
	Allowance(ctx context.Context, token, owner, spender common.Address) (*big.Int, error)
	Approve(ctx context.Context, token, spender common.Address, amount *big.Int) (string, error)
}

// Recorder recibe el resultado de cada job (métricas).
type Recorder interface {
	AllowanceResult(venue string, ok bool)
}

// Key identifica una autorización: (token, venue).
type Key struct {
	Token common.Address
	Venue domain.Venue
}

func (k Key) String() string {
	return k.Token.Hex() + "/" + k.Venue.String()
}

// Config ajusta la cola y los reintentos.
type Config struct {
	QueueSize int
	Attempts  int
	Backoff   time.Duration // espera lineal: Backoff × intento
	Floor     *big.Int
}

// Worker es una cola de un solo consumidor. Mantiene en memoria el set de keys
// ya aprobadas durante su vida; un job con key aprobada se descarta sin ejecutarse.
// Un job que agota sus reintentos deja la key libre para un reintento futuro.
// La cola y EnsureNow comparten un lock por key: nunca hay dos approve en vuelo
// para el mismo (token, venue).
type Worker struct {
	chain    Chain
	cfg      Config
	jobs     chan Key
	done     chan struct{}
	journal  *journal.Journal
	recorder Recorder

	mu       sync.Mutex
	approved map[Key]bool // true = todos los spenders quedaron en allowance ilimitada
	inflight map[Key]*sync.Mutex
}

// NewWorker crea el worker. Run debe lanzarse para consumir la cola.
func NewWorker(chain Chain, cfg Config, j *journal.Journal, rec Recorder) *Worker {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaultQueueSize
	}
	if cfg.Attempts <= 0 {
		cfg.Attempts = defaultAttempts
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = defaultBackoff
	}
	if cfg.Floor == nil {
		cfg.Floor = DefaultFloor
	}
	return &Worker{
		chain:    chain,
		cfg:      cfg,
		jobs:     make(chan Key, cfg.QueueSize),
		done:     make(chan struct{}),
		journal:  j,
		recorder: rec,
		approved: make(map[Key]bool),
		inflight: make(map[Key]*sync.Mutex),
	}
}

// Enqueue añade un job. Bloquea si la cola está llena hasta que haya hueco o ctx termine.
func (w *Worker) Enqueue(ctx context.Context, token common.Address, venue domain.Venue) error {
	select {
	case <-w.done:
		return ErrQueueClosed
	default:
	}
	select {
	case w.jobs <- Key{Token: token, Venue: venue}:
		return nil
	case <-w.done:
		return ErrQueueClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Approved indica si la key ya fue aprobada por este worker.
func (w *Worker) Approved(token common.Address, venue domain.Venue) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, ok := w.approved[Key{Token: token, Venue: venue}]
	return ok
}

// Run consume la cola hasta que ctx termina. Procesa un job a la vez.
func (w *Worker) Run(ctx context.Context) error {
	defer close(w.done)
	slog.Info("allowance: worker started", "queue", w.cfg.QueueSize, "attempts", w.cfg.Attempts)
	for {
		select {
		case <-ctx.Done():
			slog.Info("allowance: worker stopped", "pending", len(w.jobs))
			return nil
		case key := <-w.jobs:
			w.process(ctx, key)
		}
	}
}

// lockKey toma el lock de key y devuelve la función que lo libera.
func (w *Worker) lockKey(key Key) func() {
	w.mu.Lock()
	l, ok := w.inflight[key]
	if !ok {
		l = &sync.Mutex{}
		w.inflight[key] = l
	}
	w.mu.Unlock()
	l.Lock()
	return l.Unlock
}

func (w *Worker) markApproved(key Key, unlimited bool) {
	w.mu.Lock()
	w.approved[key] = w.approved[key] || unlimited
	w.mu.Unlock()
}

// unlimited indica si key quedó aprobada con allowance ilimitada en todos sus spenders.
func (w *Worker) unlimited(key Key) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.approved[key]
}

func (w *Worker) process(ctx context.Context, key Key) {
	unlock := w.lockKey(key)
	defer unlock()

	if w.Approved(key.Token, key.Venue) {
		slog.Debug("allowance: already approved, dropping job", "key", key.String())
		return
	}

	var unlimited bool
	err := retry.Do(ctx, retry.Policy{Attempts: w.cfg.Attempts, Delay: retry.Linear(w.cfg.Backoff)},
		func(ctx context.Context) error {
			var err error
			unlimited, err = w.approve(ctx, key, nil)
			return err
		})

	if w.recorder != nil {
		w.recorder.AllowanceResult(key.Venue.String(), err == nil)
	}
	if err != nil {
		slog.Warn("allowance: approval failed", "key", key.String(), "err", err)
		w.journal.Logf(ctx, journal.ScopeAllow, domain.AuditFail, "", "✗ approval failed %s for %s: %v", key.Token.Hex(), key.Venue, err)
		return
	}

	w.markApproved(key, unlimited)

	slog.Info("allowance: approved", "token", key.Token.Hex(), "venue", key.Venue.String())
	w.journal.Logf(ctx, journal.ScopeAllow, domain.AuditAllowance, "", "✓ approved %s for %s", key.Token.Hex(), key.Venue)
}

// EnsureNow garantiza de forma síncrona que venue puede gastar al menos amount de token.
// Lo usa el camino de venta, que no puede esperar a la cola.
func (w *Worker) EnsureNow(ctx context.Context, venue domain.Venue, token common.Address, amount *big.Int) error {
	key := Key{Token: token, Venue: venue}
	unlock := w.lockKey(key)
	defer unlock()

	if w.unlimited(key) {
		return nil
	}

	var unlimited bool
	err := retry.Do(ctx, retry.Policy{Attempts: sellAttempts, Delay: retry.Linear(w.cfg.Backoff)},
		func(ctx context.Context) error {
			var err error
			unlimited, err = w.approve(ctx, key, amount)
			return err
		})
	if err != nil {
		return &domain.AllowanceError{Token: token, Venue: venue, Err: err}
	}
	w.markApproved(key, unlimited)
	return nil
}

// approve lee la allowance de cada spender y solo envía approve(max) si está
// por debajo de max(minNeeded, floor). unlimited es true si al terminar todos
// los spenders tienen allowance ilimitada (approve(max) recién enviado o previo).
func (w *Worker) approve(ctx context.Context, key Key, minNeeded *big.Int) (unlimited bool, err error) {
	spenders, err := w.chain.Spenders(ctx, key.Venue, key.Token)
	if err != nil {
		return false, fmt.Errorf("spenders: %w", err)
	}

	need := w.cfg.Floor
	if minNeeded != nil && minNeeded.Cmp(need) > 0 {
		need = minNeeded
	}

	owner := w.chain.Owner()
	unlimited = true
	for _, spender := range spenders {
		current, err := w.chain.Allowance(ctx, key.Token, owner, spender)
		if err != nil {
			slog.Debug("allowance: read failed, assuming zero", "key", key.String(), "spender", spender.Hex(), "err", err)
			current = new(big.Int)
		}
		if current.Cmp(need) >= 0 {
			unlimited = unlimited && current.Cmp(unlimitedFloor) >= 0
			continue
		}
		tx, err := w.chain.Approve(ctx, key.Token, spender, MaxUint256)
		if err != nil {
			return false, fmt.Errorf("approve %s: %w", spender.Hex(), err)
		}
		slog.Info("allowance: approval sent", "token", key.Token.Hex(), "spender", spender.Hex(), "tx", tx)
	}
	return unlimited, nil
}
