// Package control expone las operaciones manuales del operador por HTTP/JSON.
//
// Rutas:
//
//	GET    /settings                         superficie clave/valor
//	PUT    /settings/{key}                   {"value": "..."}
//	POST   /settings/{key}/toggle            invierte una clave booleana
//	GET    /live/positions                   posiciones reales
//	POST   /live/positions/{key}/sell?pct=N  venta manual (1..100, por defecto 100)
//	POST   /live/positions/{key}/freeze?on=  congela / descongela
//	DELETE /live/positions/{key}             deja de gestionar el par
//	POST   /live/sell-all                    vende todo en serie
//	GET    /sim/stats                        estadísticas de la simulación
//	GET    /sim/positions                    posiciones simuladas abiertas
//	POST   /sim/positions/{key}/take         cierre manual
//	POST   /sim/positions/{key}/partial?pct= venta parcial
//	POST   /sim/positions/{key}/freeze       invierte el congelado
//	POST   /sim/positions/{key}/ack          confirma la alerta de liquidez
//	POST   /sim/take-all                     cierra todo lo no congelado
//	POST   /sim/ack-all                      confirma todas las alertas
//	POST   /sim/reset                        vacía la simulación
//	GET    /closed?limit=N                   archivo de cierres
package control

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/alejandrodnm/autotrader/config"
	"github.com/alejandrodnm/autotrader/internal/adapters/metrics"
	"github.com/alejandrodnm/autotrader/internal/domain"
	"github.com/alejandrodnm/autotrader/internal/ports"
)

const defaultClosedLimit = 50

// SettingsStore es la superficie clave/valor en caliente.
type SettingsStore interface {
	All() map[string]string
	Set(ctx context.Context, key, value string) error
	Toggle(ctx context.Context, key string) (bool, error)
	Snapshot() config.TradeSettings
}

// LiveOps son las operaciones manuales del trader real.
type LiveOps interface {
	Positions() []domain.Position
	ManualSell(ctx context.Context, key string, pct int, ts config.TradeSettings) (bool, error)
	ManualSellAll(ctx context.Context, ts config.TradeSettings) (int, error)
	ManualRemove(ctx context.Context, key string) bool
	SetFrozen(key string, frozen bool) bool
}

// SimOps son las operaciones manuales del simulador.
type SimOps interface {
	Stats() domain.SimStats
	OpenPositions() []domain.SimPosition
	Take(ctx context.Context, key string) (domain.SimPosition, error)
	TakeAll(ctx context.Context) []domain.SimPosition
	PartialTake(ctx context.Context, key string, fraction float64) (float64, bool, error)
	ToggleFrozen(key string) (bool, error)
	AckLiqAlert(key string) bool
	AckAllLiqAlerts() int
	Reset()
}

// Server agrupa los handlers. live y archive pueden ser nil (solo simulación).
type Server struct {
	settings SettingsStore
	live     LiveOps
	sim      SimOps
	archive  ports.TradeStorage
}

// New crea el servidor de control.
func New(settings SettingsStore, live LiveOps, sim SimOps, archive ports.TradeStorage) *Server {
	return &Server{settings: settings, live: live, sim: sim, archive: archive}
}

// Handler devuelve el mux con todas las rutas.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /settings", s.getSettings)
	mux.HandleFunc("PUT /settings/{key}", s.setSetting)
	mux.HandleFunc("POST /settings/{key}/toggle", s.toggleSetting)

	mux.HandleFunc("GET /live/positions", s.livePositions)
	mux.HandleFunc("POST /live/positions/{key}/sell", s.liveSell)
	mux.HandleFunc("POST /live/positions/{key}/freeze", s.liveFreeze)
	mux.HandleFunc("DELETE /live/positions/{key}", s.liveRemove)
	mux.HandleFunc("POST /live/sell-all", s.liveSellAll)

	mux.HandleFunc("GET /sim/stats", s.simStats)
	mux.HandleFunc("GET /sim/positions", s.simPositions)
	mux.HandleFunc("POST /sim/positions/{key}/take", s.simTake)
	mux.HandleFunc("POST /sim/positions/{key}/partial", s.simPartial)
	mux.HandleFunc("POST /sim/positions/{key}/freeze", s.simFreeze)
	mux.HandleFunc("POST /sim/positions/{key}/ack", s.simAck)
	mux.HandleFunc("POST /sim/take-all", s.simTakeAll)
	mux.HandleFunc("POST /sim/ack-all", s.simAckAll)
	mux.HandleFunc("POST /sim/reset", s.simReset)

	mux.HandleFunc("GET /closed", s.closed)
	return mux
}

// Serve sirve la API en addr hasta que ctx termina.
func (s *Server) Serve(ctx context.Context, addr string) error {
	return metrics.ServeHTTP(ctx, "control", addr, s.Handler())
}

// --- settings ---

func (s *Server) getSettings(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.settings.All())
}

func (s *Server) setSetting(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Value string `json:"value"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decode body: %w", err))
		return
	}
	key := r.PathValue("key")
	if err := s.settings.Set(r.Context(), key, body.Value); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	slog.Info("control: setting updated", "key", key, "value", body.Value)
	writeJSON(w, http.StatusOK, map[string]string{"key": key, "value": body.Value})
}

func (s *Server) toggleSetting(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	v, err := s.settings.Toggle(r.Context(), key)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	slog.Info("control: setting toggled", "key", key, "value", v)
	writeJSON(w, http.StatusOK, map[string]any{"key": key, "value": v})
}

// --- live ---

func (s *Server) requireLive(w http.ResponseWriter) bool {
	if s.live == nil {
		writeError(w, http.StatusServiceUnavailable, errors.New("real trader not configured"))
		return false
	}
	return true
}

func (s *Server) livePositions(w http.ResponseWriter, _ *http.Request) {
	if !s.requireLive(w) {
		return
	}
	writeJSON(w, http.StatusOK, s.live.Positions())
}

func (s *Server) liveSell(w http.ResponseWriter, r *http.Request) {
	if !s.requireLive(w) {
		return
	}
	pct := 100
	if raw := r.URL.Query().Get("pct"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Errorf("invalid pct %q", raw))
			return
		}
		pct = n
	}
	key := pathKey(r)
	sold, err := s.live.ManualSell(r.Context(), key, pct, s.settings.Snapshot())
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"key": key, "sold": sold})
}

func (s *Server) liveFreeze(w http.ResponseWriter, r *http.Request) {
	if !s.requireLive(w) {
		return
	}
	on, err := strconv.ParseBool(r.URL.Query().Get("on"))
	if err != nil {
		writeError(w, http.StatusBadRequest, errors.New("query parameter on must be a boolean"))
		return
	}
	key := pathKey(r)
	if !s.live.SetFrozen(key, on) {
		writeError(w, http.StatusNotFound, fmt.Errorf("%s: %w", key, domain.ErrPositionNotFound))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"key": key, "frozen": on})
}

func (s *Server) liveRemove(w http.ResponseWriter, r *http.Request) {
	if !s.requireLive(w) {
		return
	}
	key := pathKey(r)
	writeJSON(w, http.StatusOK, map[string]any{"key": key, "removed": s.live.ManualRemove(r.Context(), key)})
}

func (s *Server) liveSellAll(w http.ResponseWriter, r *http.Request) {
	if !s.requireLive(w) {
		return
	}
	sold, err := s.live.ManualSellAll(r.Context(), s.settings.Snapshot())
	resp := map[string]any{"sold": sold}
	if err != nil {
		resp["error"] = err.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

// --- sim ---

func (s *Server) simStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.sim.Stats())
}

func (s *Server) simPositions(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.sim.OpenPositions())
}

func (s *Server) simTake(w http.ResponseWriter, r *http.Request) {
	closed, err := s.sim.Take(r.Context(), pathKey(r))
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, closed)
}

func (s *Server) simPartial(w http.ResponseWriter, r *http.Request) {
	pct, err := strconv.ParseFloat(r.URL.Query().Get("pct"), 64)
	if err != nil || pct <= 0 || pct > 100 {
		writeError(w, http.StatusBadRequest, errors.New("query parameter pct must be in (0, 100]"))
		return
	}
	realized, emptied, err := s.sim.PartialTake(r.Context(), pathKey(r), pct/100)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"realized": realized, "emptied": emptied})
}

func (s *Server) simFreeze(w http.ResponseWriter, r *http.Request) {
	frozen, err := s.sim.ToggleFrozen(pathKey(r))
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"frozen": frozen})
}

func (s *Server) simAck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"acknowledged": s.sim.AckLiqAlert(pathKey(r))})
}

func (s *Server) simTakeAll(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.sim.TakeAll(r.Context()))
}

func (s *Server) simAckAll(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"acknowledged": s.sim.AckAllLiqAlerts()})
}

func (s *Server) simReset(w http.ResponseWriter, _ *http.Request) {
	s.sim.Reset()
	slog.Info("control: simulation reset")
	writeJSON(w, http.StatusOK, map[string]any{"reset": true})
}

// --- archive ---

func (s *Server) closed(w http.ResponseWriter, r *http.Request) {
	if s.archive == nil {
		writeJSON(w, http.StatusOK, []domain.ClosedPosition{})
		return
	}
	limit := defaultClosedLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Errorf("invalid limit %q", raw))
			return
		}
		limit = n
	}
	closed, err := s.archive.ClosedPositions(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if closed == nil {
		closed = []domain.ClosedPosition{}
	}
	writeJSON(w, http.StatusOK, closed)
}

// --- helpers ---

func pathKey(r *http.Request) string {
	return domain.PairKey(r.PathValue("key"))
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrPositionNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrFrozen), errors.Is(err, domain.ErrLiquidityAlert), errors.Is(err, domain.ErrAlreadyClosing):
		return http.StatusConflict
	default:
		return http.StatusBadGateway
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("control: encode response", "err", err)
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
