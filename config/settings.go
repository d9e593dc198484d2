package config

import (
	"context"
	"fmt"
	"math/big"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/alejandrodnm/autotrader/internal/domain"
	"github.com/shopspring/decimal"
)

// Claves reconocidas de la superficie clave/valor.
const (
	KeyEnabled             = "enabled"
	KeySimMode             = "sim_mode"
	KeyDexes               = "dexes"
	KeyBuyAmount           = "buy_amount"
	KeyTPEnabled           = "tp_enabled"
	KeyTPPct               = "tp_pct"
	KeySLEnabled           = "sl_enabled"
	KeySLPct               = "sl_pct"
	KeyMaxHoldSecs         = "max_hold_secs"
	KeyMaxHoldPnL          = "max_hold_pnl"
	KeyMaxHoldPnLThreshold = "max_hold_pnl_threshold"
	KeyMaxPositions        = "max_positions"
	KeyMinLiquidity        = "min_liquidity"
	KeyMinBuys             = "min_buys"
	KeyAcceptedQuotes      = "accepted_quotes"
	KeyFreshnessSecs       = "freshness_secs"
	KeyMinPnLPct           = "min_pnl_pct"
	KeyWrapRatioPct        = "wrap_ratio_pct"
	KeyAvoidChinese        = "avoid_chinese"
	KeyMaxGwei             = "max_gwei"
	KeySlippageBps         = "slippage_bps"
	KeyFMSlippageBps       = "fm_slippage_bps"
)

type kind int

const (
	kindBool kind = iota
	kindFloat
	kindInt
	kindString
)

var keyKinds = map[string]kind{
	KeyEnabled:             kindBool,
	KeySimMode:             kindBool,
	KeyDexes:               kindString,
	KeyBuyAmount:           kindFloat,
	KeyTPEnabled:           kindBool,
	KeyTPPct:               kindFloat,
	KeySLEnabled:           kindBool,
	KeySLPct:               kindFloat,
	KeyMaxHoldSecs:         kindInt,
	KeyMaxHoldPnL:          kindBool,
	KeyMaxHoldPnLThreshold: kindFloat,
	KeyMaxPositions:        kindInt,
	KeyMinLiquidity:        kindFloat,
	KeyMinBuys:             kindInt,
	KeyAcceptedQuotes:      kindString,
	KeyFreshnessSecs:       kindInt,
	KeyMinPnLPct:           kindFloat,
	KeyWrapRatioPct:        kindInt,
	KeyAvoidChinese:        kindBool,
	KeyMaxGwei:             kindFloat,
	KeySlippageBps:         kindInt,
	KeyFMSlippageBps:       kindInt,
}

// aliases de claves antiguas.
var keyAliases = map[string]string{
	"buy_amount_wbnb": KeyBuyAmount,
}

// Defaults devuelve los valores por defecto de cada clave.
func Defaults() map[string]string {
	return map[string]string{
		KeyEnabled:             "false",
		KeySimMode:             "true",
		KeyDexes:               "v2,v3,fm",
		KeyBuyAmount:           "0.00001",
		KeyTPEnabled:           "false",
		KeyTPPct:               "10",
		KeySLEnabled:           "false",
		KeySLPct:               "5",
		KeyMaxHoldSecs:         "0",
		KeyMaxHoldPnL:          "true",
		KeyMaxHoldPnLThreshold: "50",
		KeyMaxPositions:        "3",
		KeyMinLiquidity:        "1000",
		KeyMinBuys:             "3",
		KeyAcceptedQuotes:      "BNB,CAKE,USDT,USD1,ASTER,WBNB",
		KeyFreshnessSecs:       "30",
		KeyMinPnLPct:           "100",
		KeyWrapRatioPct:        "80",
		KeyAvoidChinese:        "false",
		KeyMaxGwei:             "1.0",
		KeySlippageBps:         "50",
		KeyFMSlippageBps:       "100",
	}
}

// Persister guarda la superficie clave/valor tras cada cambio.
type Persister interface {
	SaveSettings(ctx context.Context, kv map[string]string) error
}

// Settings es la superficie clave/valor en caliente. Es seguro para uso concurrente:
// el dispatcher toma un Snapshot por evento mientras la API de control escribe.
type Settings struct {
	mu        sync.RWMutex
	kv        map[string]string
	persister Persister
}

// NewSettings crea la superficie con los defaults, sobreescritos por seed.
// Claves desconocidas o valores inválidos en seed se ignoran y se devuelven en skipped.
func NewSettings(seed map[string]string) (*Settings, []string) {
	s := &Settings{kv: Defaults()}
	skipped := s.Merge(seed)
	return s, skipped
}

// SetPersister registra dónde guardar los cambios hechos con Set/Toggle.
func (s *Settings) SetPersister(p Persister) {
	s.mu.Lock()
	s.persister = p
	s.mu.Unlock()
}

// Merge aplica kv sin persistir (carga desde YAML o desde la cache en SQLite).
func (s *Settings) Merge(kv map[string]string) []string {
	var skipped []string
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, v := range kv {
		key, val, err := normalize(k, v)
		if err != nil {
			skipped = append(skipped, k)
			continue
		}
		s.kv[key] = val
	}
	sort.Strings(skipped)
	return skipped
}

// Get devuelve el valor crudo de una clave.
func (s *Settings) Get(key string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.kv[canonical(key)]
	return v, ok
}

// Set valida, guarda y persiste un valor.
func (s *Settings) Set(ctx context.Context, key, value string) error {
	k, v, err := normalize(key, value)
	if err != nil {
		return fmt.Errorf("config.Settings.Set: %w", err)
	}

	s.mu.Lock()
	s.kv[k] = v
	snapshot := s.copyLocked()
	p := s.persister
	s.mu.Unlock()

	if p != nil {
		if err := p.SaveSettings(ctx, snapshot); err != nil {
			return fmt.Errorf("config.Settings.Set: persist: %w", err)
		}
	}
	return nil
}

// Toggle invierte una clave booleana y devuelve el nuevo valor.
func (s *Settings) Toggle(ctx context.Context, key string) (bool, error) {
	k := canonical(key)
	if kd, ok := keyKinds[k]; !ok || kd != kindBool {
		return false, fmt.Errorf("config.Settings.Toggle: %q is not a boolean key", key)
	}
	cur, _ := s.Get(k)
	next := cur != "true"
	if err := s.Set(ctx, k, strconv.FormatBool(next)); err != nil {
		return false, err
	}
	return next, nil
}

// All devuelve una copia de todos los valores.
func (s *Settings) All() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.copyLocked()
}

func (s *Settings) copyLocked() map[string]string {
	out := make(map[string]string, len(s.kv))
	for k, v := range s.kv {
		out[k] = v
	}
	return out
}

// Snapshot convierte la superficie actual en valores tipados.
func (s *Settings) Snapshot() TradeSettings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return parseTradeSettings(s.kv)
}

func canonical(key string) string {
	k := strings.ToLower(strings.TrimSpace(key))
	if alias, ok := keyAliases[k]; ok {
		return alias
	}
	return k
}

func normalize(key, value string) (string, string, error) {
	k := canonical(key)
	kd, ok := keyKinds[k]
	if !ok {
		return "", "", fmt.Errorf("unknown key %q", key)
	}
	v := strings.TrimSpace(value)
	switch kd {
	case kindBool:
		b, err := strconv.ParseBool(v)
		if err != nil {
			return "", "", fmt.Errorf("%s: invalid bool %q", k, value)
		}
		v = strconv.FormatBool(b)
	case kindFloat:
		if _, err := strconv.ParseFloat(v, 64); err != nil {
			return "", "", fmt.Errorf("%s: invalid number %q", k, value)
		}
	case kindInt:
		if _, err := strconv.ParseInt(v, 10, 64); err != nil {
			return "", "", fmt.Errorf("%s: invalid integer %q", k, value)
		}
	}
	return k, v, nil
}

// TradeSettings es un snapshot tipado de la superficie clave/valor.
type TradeSettings struct {
	Enabled             bool
	SimMode             bool
	Venues              map[domain.Venue]bool
	BuyAmount           float64
	TPEnabled           bool
	TPPct               float64
	SLEnabled           bool
	SLPct               float64
	MaxHold             time.Duration
	MaxHoldPnLGate      bool
	MaxHoldPnLThreshold float64
	MaxPositions        int
	MinLiquidity        float64
	MinBuys             int
	AcceptedQuotes      []string
	Freshness           time.Duration
	MinPnLPct           float64
	WrapRatioPct        int64
	AvoidChinese        bool
	GasPriceWei         *big.Int
	SlippageBps         int64
	FMSlippageBps       int64
}

const (
	minLiquidityFloor = 5.0
	defaultGasWei     = 1_000_000_000 // 1 gwei
)

// LiquidityThreshold es el mínimo efectivo de liquidez: max(min_liquidity, 5).
func (t TradeSettings) LiquidityThreshold() float64 {
	return max(t.MinLiquidity, minLiquidityFloor)
}

// VenueEnabled indica si el venue está en `dexes`.
func (t TradeSettings) VenueEnabled(v domain.Venue) bool {
	return t.Venues[v]
}

// QuoteAccepted compara el símbolo de quote sin distinguir mayúsculas.
func (t TradeSettings) QuoteAccepted(symbol string) bool {
	sym := strings.ToUpper(strings.TrimSpace(symbol))
	for _, q := range t.AcceptedQuotes {
		if q == sym {
			return true
		}
	}
	return false
}

// TP devuelve el porcentaje de take-profit si está habilitado.
func (t TradeSettings) TP() *float64 {
	if !t.TPEnabled {
		return nil
	}
	v := t.TPPct
	return &v
}

// SL devuelve el porcentaje de stop-loss si está habilitado.
func (t TradeSettings) SL() *float64 {
	if !t.SLEnabled {
		return nil
	}
	v := t.SLPct
	return &v
}

func parseTradeSettings(kv map[string]string) TradeSettings {
	b := func(k string) bool { return kv[k] == "true" }
	f := func(k string) float64 {
		v, _ := strconv.ParseFloat(kv[k], 64)
		return v
	}
	i := func(k string) int64 {
		v, _ := strconv.ParseInt(kv[k], 10, 64)
		return v
	}

	ts := TradeSettings{
		Enabled:             b(KeyEnabled),
		SimMode:             b(KeySimMode),
		Venues:              parseVenues(kv[KeyDexes]),
		BuyAmount:           f(KeyBuyAmount),
		TPEnabled:           b(KeyTPEnabled),
		TPPct:               f(KeyTPPct),
		SLEnabled:           b(KeySLEnabled),
		SLPct:               f(KeySLPct),
		MaxHold:             time.Duration(max(i(KeyMaxHoldSecs), 0)) * time.Second,
		MaxHoldPnLGate:      b(KeyMaxHoldPnL),
		MaxHoldPnLThreshold: f(KeyMaxHoldPnLThreshold),
		MaxPositions:        int(max(i(KeyMaxPositions), 0)),
		MinLiquidity:        f(KeyMinLiquidity),
		MinBuys:             int(max(i(KeyMinBuys), 0)),
		AcceptedQuotes:      parseQuotes(kv[KeyAcceptedQuotes]),
		Freshness:           time.Duration(max(i(KeyFreshnessSecs), 0)) * time.Second,
		MinPnLPct:           f(KeyMinPnLPct),
		WrapRatioPct:        min(max(i(KeyWrapRatioPct), 1), 99),
		AvoidChinese:        b(KeyAvoidChinese),
		GasPriceWei:         GweiToWei(kv[KeyMaxGwei]),
		SlippageBps:         max(i(KeySlippageBps), 0),
		FMSlippageBps:       max(i(KeyFMSlippageBps), 0),
	}
	return ts
}

func parseVenues(s string) map[domain.Venue]bool {
	out := make(map[domain.Venue]bool, 3)
	for _, part := range strings.Split(s, ",") {
		if v, err := domain.ParseVenue(part); err == nil {
			out[v] = true
		}
	}
	return out
}

func parseQuotes(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if q := strings.ToUpper(strings.TrimSpace(part)); q != "" {
			out = append(out, q)
		}
	}
	return out
}

// GweiToWei convierte un precio en gwei (string decimal) a wei.
// Valores vacíos, inválidos o no positivos devuelven 1 gwei.
func GweiToWei(gwei string) *big.Int {
	d, err := decimal.NewFromString(strings.TrimSpace(gwei))
	if err != nil || !d.IsPositive() {
		return big.NewInt(defaultGasWei)
	}
	wei := d.Shift(9).Truncate(0).BigInt()
	if wei.Sign() <= 0 {
		return big.NewInt(defaultGasWei)
	}
	return wei
}
