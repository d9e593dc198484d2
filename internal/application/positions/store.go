// Package positions es el almacén autoritativo de posiciones reales y sus guardas.
package positions

import (
	"sort"
	"sync"
	"time"

	"github.com/alejandrodnm/autotrader/internal/application/trigger"
	"github.com/alejandrodnm/autotrader/internal/domain"
)

// MaxBuyFailures es el número de compras fallidas consecutivas que bloquea un par.
const MaxBuyFailures = 3

// Store guarda las posiciones reales por pair key más los sets auxiliares
// (cerrando, bloqueados) y el contador de fallos de compra.
// Toda mutación ocurre bajo un único lock exclusivo.
type Store struct {
	mu        sync.Mutex
	positions map[string]domain.Position
	closing   map[string]struct{}
	blocked   map[string]struct{}
	failures  map[string]int
}

// New crea un Store vacío.
func New() *Store {
	return &Store{
		positions: make(map[string]domain.Position),
		closing:   make(map[string]struct{}),
		blocked:   make(map[string]struct{}),
		failures:  make(map[string]int),
	}
}

// HasPositionOrBlocked es la única guarda de admisión antes de considerar una compra.
func (s *Store) HasPositionOrBlocked(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, open := s.positions[key]
	_, closing := s.closing[key]
	_, blocked := s.blocked[key]
	return open || closing || blocked
}

// OpenCount devuelve el número de posiciones abiertas.
func (s *Store) OpenCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.positions)
}

// Get devuelve una copia de la posición.
func (s *Store) Get(key string) (domain.Position, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.positions[key]
	return p, ok
}

// Positions devuelve copias de todas las posiciones, las más antiguas primero.
func (s *Store) Positions() []domain.Position {
	s.mu.Lock()
	out := make([]domain.Position, 0, len(s.positions))
	for _, p := range s.positions {
		out = append(out, p)
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].OpenedAt.Before(out[j].OpenedAt) })
	return out
}

// Keys devuelve los pair keys abiertos ordenados.
func (s *Store) Keys() []string {
	s.mu.Lock()
	keys := make([]string, 0, len(s.positions))
	for k := range s.positions {
		keys = append(keys, k)
	}
	s.mu.Unlock()
	sort.Strings(keys)
	return keys
}

// RecordBuy inserta una posición. Una compra nueva reemplaza la historia previa del par:
// limpia las marcas de cierre, bloqueo y fallos.
func (s *Store) RecordBuy(p domain.Position) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.closing, p.PairKey)
	delete(s.blocked, p.PairKey)
	delete(s.failures, p.PairKey)
	if p.RemainingSize <= 0 || p.RemainingSize > p.CommittedSize {
		p.RemainingSize = p.CommittedSize
	}
	s.positions[p.PairKey] = p
}

// ReserveClose marca la posición como "cerrando". Devuelve false si no existe
// o ya está reservada.
func (s *Store) ReserveClose(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reserveLocked(key)
}

func (s *Store) reserveLocked(key string) bool {
	if _, ok := s.closing[key]; ok {
		return false
	}
	if _, ok := s.positions[key]; !ok {
		return false
	}
	s.closing[key] = struct{}{}
	return true
}

// AbortClose quita la marca de cierre sin tocar la posición.
func (s *Store) AbortClose(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.closing, key)
}

// FinishSell elimina la posición y bloquea el par para siempre.
func (s *Store) FinishSell(key string) (domain.Position, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.closing, key)
	p, ok := s.positions[key]
	if ok {
		delete(s.positions, key)
		s.blocked[key] = struct{}{}
	}
	return p, ok
}

// ReduceRemaining descuenta la fracción vendida en un cierre parcial.
func (s *Store) ReduceRemaining(key string, fraction float64) {
	if fraction <= 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.positions[key]
	if !ok {
		return
	}
	p.RemainingSize -= p.RemainingSize * min(fraction, 1)
	if p.RemainingSize < 1e-12 {
		p.RemainingSize = 0
	}
	s.positions[key] = p
}

// Remove saca la posición de la gestión sin venderla y bloquea recompras.
func (s *Store) Remove(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.closing, key)
	if _, ok := s.positions[key]; !ok {
		return false
	}
	delete(s.positions, key)
	s.blocked[key] = struct{}{}
	return true
}

// IsBlocked indica si el par está bloqueado.
func (s *Store) IsBlocked(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.blocked[key]
	return ok
}

// IsClosing indica si el par tiene un cierre en curso.
func (s *Store) IsClosing(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.closing[key]
	return ok
}

// RecordBuyFailure incrementa el contador del par; al llegar a MaxBuyFailures lo bloquea.
func (s *Store) RecordBuyFailure(key string) (count int, blocked bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[key]++
	count = s.failures[key]
	if count >= MaxBuyFailures {
		s.blocked[key] = struct{}{}
		blocked = true
	}
	return count, blocked
}

// ClearBuyFailures resetea el contador tras una compra correcta.
func (s *Store) ClearBuyFailures(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.failures, key)
}

// EvaluateAndReserve actualiza el último precio, evalúa los triggers y, si uno
// dispara, reserva el cierre dentro del mismo lock. ok=false si no hay cierre.
func (s *Store) EvaluateAndReserve(key string, price float64, now time.Time, rules trigger.Rules) (domain.SellPlan, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.closing[key]; ok {
		return domain.SellPlan{}, false
	}
	p, ok := s.positions[key]
	if !ok {
		return domain.SellPlan{}, false
	}
	p.LastPrice = price
	s.positions[key] = p

	d := trigger.Evaluate(trigger.Subject{
		EntryPrice:    p.EntryPrice,
		RemainingSize: p.RemainingSize,
		OpenedAt:      p.OpenedAt,
		Frozen:        p.Frozen,
	}, price, now, rules)
	if !d.Fire {
		return domain.SellPlan{}, false
	}

	s.closing[key] = struct{}{}
	return domain.SellPlan{
		PairKey:    key,
		Position:   p,
		PnLPct:     d.PnLPct,
		Trigger:    d.Trigger,
		PercentPts: 100,
		Reserved:   true,
	}, true
}

// SetFrozen congela o descongela una posición real.
func (s *Store) SetFrozen(key string, frozen bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.positions[key]
	if !ok {
		return false
	}
	p.Frozen = frozen
	s.positions[key] = p
	return true
}
