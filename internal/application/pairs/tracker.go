// Package pairs mantiene el estado de mercado por par para los filtros de admisión.
package pairs

import (
	"math"
	"sync"
	"time"

	"github.com/alejandrodnm/autotrader/internal/domain"
)

// State es la vista acumulada de un par desde su primer precio.
type State struct {
	PairKey         string
	Venue           domain.Venue
	BaseSymbol      string
	QuoteSymbol     string
	FirstPrice      float64
	LastPrice       float64
	PnLPct          float64 // desde FirstPrice, redondeado a 0.01
	Liquidity       *float64
	BuyCount        int
	SellCount       int
	FirstSeen       time.Time
	LastUpdate      time.Time
	LastNonzeroMove time.Time
}

// Tracker es seguro para uso concurrente.
type Tracker struct {
	mu       sync.RWMutex
	pairs    map[string]*State
	maxPairs int
}

// New crea un tracker. maxPairs <= 0 = sin límite.
func New(maxPairs int) *Tracker {
	return &Tracker{pairs: make(map[string]*State), maxPairs: maxPairs}
}

// Observe aplica un evento y devuelve el estado resultante.
// Un precio cero elimina el par (ok=false). Un par nuevo se ignora cuando el tracker está lleno.
func (t *Tracker) Observe(ev domain.PairEvent, now time.Time) (State, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !ev.HasPrice() {
		delete(t.pairs, ev.PairKey)
		return State{}, false
	}

	st, ok := t.pairs[ev.PairKey]
	if !ok {
		if t.maxPairs > 0 && len(t.pairs) >= t.maxPairs {
			return State{}, false
		}
		st = &State{
			PairKey:         ev.PairKey,
			FirstPrice:      ev.Price,
			FirstSeen:       now,
			LastNonzeroMove: now,
		}
		t.pairs[ev.PairKey] = st
	}

	st.Venue = ev.Venue
	if ev.BaseSymbol != "" {
		st.BaseSymbol = ev.BaseSymbol
	}
	if ev.QuoteSymbol != "" {
		st.QuoteSymbol = ev.QuoteSymbol
	}
	st.LastPrice = ev.Price
	st.BuyCount = ev.BuyCount
	st.SellCount = ev.SellCount
	if ev.Liquidity != nil {
		liq := *ev.Liquidity
		st.Liquidity = &liq
	}
	st.LastUpdate = now

	st.PnLPct = round2(domain.PnLPct(st.FirstPrice, st.LastPrice))
	if st.PnLPct != 0 {
		st.LastNonzeroMove = now
	}
	return *st, true
}

// Get devuelve una copia del estado.
func (t *Tracker) Get(key string) (State, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	st, ok := t.pairs[key]
	if !ok {
		return State{}, false
	}
	return *st, true
}

// Remove olvida el par.
func (t *Tracker) Remove(key string) {
	t.mu.Lock()
	delete(t.pairs, key)
	t.mu.Unlock()
}

// Len devuelve el número de pares seguidos.
func (t *Tracker) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.pairs)
}

// Stale indica si el par no tiene momentum: PnL por debajo de minPnL y
// sin movimiento distinto de cero en la ventana de frescura.
func (s State) Stale(now time.Time, freshness time.Duration, minPnL float64) bool {
	return s.PnLPct < minPnL && now.Sub(s.LastNonzeroMove) > freshness
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
