// Package feed implementa ports.PriceFeed sobre un websocket JSON.
//
// Cada mensaje de texto es un PairEvent o un array de PairEvent. Los mensajes
// mal formados se descartan con un warning; una desconexión reconecta con
// backoff exponencial entre ReconnectMin y ReconnectMax.
package feed

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alejandrodnm/autotrader/internal/domain"
	"github.com/alejandrodnm/autotrader/internal/retry"
	"github.com/gorilla/websocket"
)

const (
	handshakeTimeout = 15 * time.Second
	writeWait        = 10 * time.Second
	pongWait         = 60 * time.Second
	pingPeriod       = (pongWait * 9) / 10
)

// Config configura el cliente.
type Config struct {
	URL          string
	ReconnectMin time.Duration
	ReconnectMax time.Duration
}

// WSFeed lee eventos de precio de un websocket y los publica en un canal.
type WSFeed struct {
	cfg    Config
	dialer websocket.Dialer
	now    func() time.Time

	mu       sync.Mutex
	received int64
	dropped  int64
}

// New crea el feed. Los backoffs por defecto son 1s..30s.
func New(cfg Config) *WSFeed {
	if cfg.ReconnectMin <= 0 {
		cfg.ReconnectMin = time.Second
	}
	if cfg.ReconnectMax < cfg.ReconnectMin {
		cfg.ReconnectMax = 30 * time.Second
	}
	return &WSFeed{
		cfg:    cfg,
		dialer: websocket.Dialer{HandshakeTimeout: handshakeTimeout},
		now:    time.Now,
	}
}

// Stats devuelve los mensajes recibidos y descartados desde el arranque.
func (f *WSFeed) Stats() (received, dropped int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.received, f.dropped
}

// Run conecta y publica eventos en out hasta que ctx termina. Reconecta en cada desconexión.
func (f *WSFeed) Run(ctx context.Context, out chan<- domain.PairEvent) error {
	if f.cfg.URL == "" {
		return fmt.Errorf("feed.WSFeed.Run: url not configured")
	}

	delay := retry.Exponential(f.cfg.ReconnectMin, f.cfg.ReconnectMax)
	attempt := 0
	for {
		connected, err := f.runConnection(ctx, out)
		if ctx.Err() != nil {
			return nil
		}
		if connected {
			attempt = 0
		}
		backoff := delay(attempt)
		slog.Warn("feed: disconnected, reconnecting", "url", f.cfg.URL, "err", err, "backoff", backoff)

		if err := retry.Sleep(ctx, backoff); err != nil {
			return nil
		}
		if backoff < f.cfg.ReconnectMax {
			attempt++
		}
	}
}

// runConnection mantiene una conexión hasta que falle. connected indica si el dial tuvo éxito.
func (f *WSFeed) runConnection(ctx context.Context, out chan<- domain.PairEvent) (connected bool, err error) {
	conn, _, err := f.dialer.DialContext(ctx, f.cfg.URL, nil)
	if err != nil {
		return false, fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()
	slog.Info("feed: connected", "url", f.cfg.URL)

	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	done := make(chan struct{})
	defer close(done)
	go f.pingLoop(ctx, conn, done)

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return true, nil
			}
			return true, fmt.Errorf("read: %w", err)
		}
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		if msgType != websocket.TextMessage {
			continue
		}

		events, err := decode(data)
		if err != nil {
			f.count(0, 1)
			slog.Warn("feed: bad message", "err", err, "size", len(data))
			continue
		}
		f.count(int64(len(events)), 0)

		now := f.now()
		for _, ev := range events {
			ev.ReceivedAt = now
			select {
			case out <- ev:
			case <-ctx.Done():
				return true, nil
			}
		}
	}
}

// pingLoop mantiene viva la conexión y la cierra al cancelar ctx para desbloquear ReadMessage.
func (f *WSFeed) pingLoop(ctx context.Context, conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
			_ = conn.Close()
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				slog.Debug("feed: ping failed", "err", err)
				return
			}
		}
	}
}

func (f *WSFeed) count(received, dropped int64) {
	f.mu.Lock()
	f.received += received
	f.dropped += dropped
	f.mu.Unlock()
}

// decode acepta un objeto o un array de objetos.
func decode(data []byte) ([]domain.PairEvent, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, errors.New("empty message")
	}
	if data[0] == '[' {
		var events []domain.PairEvent
		if err := json.Unmarshal(data, &events); err != nil {
			return nil, fmt.Errorf("decode batch: %w", err)
		}
		return events, nil
	}
	var ev domain.PairEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil, fmt.Errorf("decode event: %w", err)
	}
	return []domain.PairEvent{ev}, nil
}
