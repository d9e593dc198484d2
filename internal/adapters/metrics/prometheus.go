// Package metrics expone los contadores del trader en formato Prometheus.
//
// Métricas:
//   - autotrader_rejections_total{mode,reason}      – candidatos descartados por admisión
//   - autotrader_buys_total{mode,venue}             – compras (real) o entradas simuladas
//   - autotrader_buy_failures_total{venue}          – swaps de compra fallidos
//   - autotrader_sells_total{mode,trigger,result}   – cierres por motivo (ok|failed)
//   - autotrader_open_positions{mode}               – posiciones abiertas
//   - autotrader_allowance_jobs_total{venue,result} – jobs de approve terminados
package metrics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/alejandrodnm/autotrader/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics implementa engine.Recorder y allowance.Recorder.
type Metrics struct {
	registry *prometheus.Registry

	rejections   *prometheus.CounterVec
	buys         *prometheus.CounterVec
	buyFailures  *prometheus.CounterVec
	sells        *prometheus.CounterVec
	open         *prometheus.GaugeVec
	allowanceJob *prometheus.CounterVec
}

// New crea y registra las métricas en un registry propio (más los collectors de Go y proceso).
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		rejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "autotrader_rejections_total",
			Help: "Candidates rejected by the admission filters",
		}, []string{"mode", "reason"}),
		buys: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "autotrader_buys_total",
			Help: "Positions opened",
		}, []string{"mode", "venue"}),
		buyFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "autotrader_buy_failures_total",
			Help: "Failed real buy attempts",
		}, []string{"venue"}),
		sells: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "autotrader_sells_total",
			Help: "Sell attempts by trigger and result",
		}, []string{"mode", "trigger", "result"}),
		open: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "autotrader_open_positions",
			Help: "Open positions",
		}, []string{"mode"}),
		allowanceJob: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "autotrader_allowance_jobs_total",
			Help: "Finished allowance jobs by venue and result",
		}, []string{"venue", "result"}),
	}
	m.registry.MustRegister(
		m.rejections, m.buys, m.buyFailures, m.sells, m.open, m.allowanceJob,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) Rejected(mode string, reason domain.RejectReason) {
	m.rejections.WithLabelValues(mode, string(reason)).Inc()
}

func (m *Metrics) Bought(mode string, venue domain.Venue) {
	m.buys.WithLabelValues(mode, venue.String()).Inc()
}

func (m *Metrics) BuyFailed(venue domain.Venue) {
	m.buyFailures.WithLabelValues(venue.String()).Inc()
}

func (m *Metrics) Sold(mode string, trigger domain.TriggerKind, ok bool) {
	m.sells.WithLabelValues(mode, trigger.String(), result(ok)).Inc()
}

func (m *Metrics) OpenPositions(mode string, n int) {
	m.open.WithLabelValues(mode).Set(float64(n))
}

func (m *Metrics) AllowanceResult(venue string, ok bool) {
	m.allowanceJob.WithLabelValues(venue, result(ok)).Inc()
}

// Registry devuelve el registry con todas las métricas.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler devuelve el handler HTTP de /metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Serve sirve /metrics y /healthz en addr hasta que ctx termina.
func (m *Metrics) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok\n"))
	})
	mux.Handle("/metrics", m.Handler())
	return ServeHTTP(ctx, "metrics", addr, mux)
}

// ServeHTTP levanta un servidor en addr y lo apaga con gracia al cancelar ctx.
func ServeHTTP(ctx context.Context, name, addr string, h http.Handler) error {
	srv := &http.Server{Addr: addr, Handler: h, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		slog.Info(name+": listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("%s: serve %s: %w", name, addr, err)
		}
		return nil
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func result(ok bool) string {
	if ok {
		return "ok"
	}
	return "failed"
}
