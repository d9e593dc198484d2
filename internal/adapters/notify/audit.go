package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/alejandrodnm/autotrader/internal/domain"
	"github.com/redis/go-redis/v9"
)

// FileSink añade cada línea de audit a un fichero de texto ("[fecha] [scope] mensaje").
type FileSink struct {
	mu sync.Mutex
	w  io.WriteCloser
}

// NewFileSink abre path en modo append, creándolo si no existe.
func NewFileSink(path string) (*FileSink, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("notify.NewFileSink: open %q: %w", path, err)
	}
	return &FileSink{w: f}, nil
}

// Record implementa ports.AuditSink.
func (s *FileSink) Record(_ context.Context, ev domain.AuditEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := io.WriteString(s.w, ev.Line()+"\n"); err != nil {
		return fmt.Errorf("notify.FileSink.Record: %w", err)
	}
	return nil
}

// Close cierra el fichero.
func (s *FileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Close()
}

// RedisPublisher publica cada evento de audit como JSON en un canal Pub/Sub.
type RedisPublisher struct {
	rdb     *redis.Client
	channel string
}

// NewRedisPublisher conecta con addr. El ping inicial falla rápido si Redis no está.
func NewRedisPublisher(ctx context.Context, addr, channel string) (*RedisPublisher, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  2 * time.Second,
		WriteTimeout: time.Second,
		ReadTimeout:  time.Second,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("notify.NewRedisPublisher: ping %s: %w", addr, err)
	}
	if channel == "" {
		channel = "autotrader:audit"
	}
	return &RedisPublisher{rdb: rdb, channel: channel}, nil
}

// Record implementa ports.AuditSink.
func (p *RedisPublisher) Record(ctx context.Context, ev domain.AuditEvent) error {
	payload, err := auditPayload(ev)
	if err != nil {
		return fmt.Errorf("notify.RedisPublisher.Record: %w", err)
	}
	if err := p.rdb.Publish(ctx, p.channel, payload).Err(); err != nil {
		return fmt.Errorf("notify.RedisPublisher.Record: publish %s: %w", p.channel, err)
	}
	return nil
}

// Close cierra el cliente.
func (p *RedisPublisher) Close() error {
	return p.rdb.Close()
}

// auditPayload serializa el evento con la línea ya formateada para el visor.
func auditPayload(ev domain.AuditEvent) ([]byte, error) {
	return json.Marshal(struct {
		domain.AuditEvent
		Line string `json:"line"`
	}{ev, ev.Line()})
}
