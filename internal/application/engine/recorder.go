package engine

import "github.com/alejandrodnm/autotrader/internal/domain"

// Modos de trading para métricas y archivo.
const (
	ModeReal = "real"
	ModeSim  = "sim"
)

// Recorder recibe los contadores de trading. La implementación real son las métricas Prometheus.
type Recorder interface {
	Rejected(mode string, reason domain.RejectReason)
	Bought(mode string, venue domain.Venue)
	BuyFailed(venue domain.Venue)
	Sold(mode string, trigger domain.TriggerKind, ok bool)
	OpenPositions(mode string, n int)
}

// NopRecorder descarta todo.
type NopRecorder struct{}

func (NopRecorder) Rejected(string, domain.RejectReason) {}
func (NopRecorder) Bought(string, domain.Venue) {}
func (NopRecorder) BuyFailed(domain.Venue) {}
func (NopRecorder) Sold(string, domain.TriggerKind, bool) {}
func (NopRecorder) OpenPositions(string, int) {}
