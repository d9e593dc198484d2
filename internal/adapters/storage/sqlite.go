package storage

// sqlite.go — archivo local del trader.
//
// Tablas:
//   - `closed_positions`: una fila por cierre (real y sim), con trigger, PnL y duración.
//   - `audit_log`: las mismas líneas que ve el visor externo. Se podan al arrancar (> 30 días).
//   - `settings`: la superficie clave/valor persistida entre reinicios.

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/alejandrodnm/autotrader/internal/domain"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS closed_positions (
    id          TEXT PRIMARY KEY,
    mode        TEXT     NOT NULL,
    pair_key    TEXT     NOT NULL,
    venue       TEXT     NOT NULL,
    base_symbol TEXT     NOT NULL DEFAULT '',
    entry_price REAL     NOT NULL,
    exit_price  REAL     NOT NULL,
    size        REAL     NOT NULL,
    pnl_pct     REAL     NOT NULL DEFAULT 0,
    pnl         REAL     NOT NULL DEFAULT 0,
    trigger     TEXT     NOT NULL,
    tx_hash     TEXT     NOT NULL DEFAULT '',
    opened_at   DATETIME NOT NULL,
    closed_at   DATETIME NOT NULL,
    duration_s  INTEGER  NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS audit_log (
    id       TEXT PRIMARY KEY,
    at       DATETIME NOT NULL,
    scope    TEXT     NOT NULL,
    kind     TEXT     NOT NULL,
    pair_key TEXT     NOT NULL DEFAULT '',
    message  TEXT     NOT NULL
);

CREATE TABLE IF NOT EXISTS settings (
    key        TEXT PRIMARY KEY,
    value      TEXT     NOT NULL,
    updated_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_closed_at   ON closed_positions(closed_at DESC);
CREATE INDEX IF NOT EXISTS idx_closed_mode ON closed_positions(mode);
CREATE INDEX IF NOT EXISTS idx_audit_at    ON audit_log(at DESC);
`

const retentionAudit = 30 * 24 * time.Hour

// Summary agrega los cierres de un modo.
type Summary struct {
	Mode   string
	Closed int
	Wins   int
	PnL    float64
}

// SQLiteStorage implementa ports.TradeStorage, ports.SettingsStorage y
// ports.AuditSink usando SQLite (pure Go, sin CGo).
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage abre (o crea) la base de datos en la ruta dada,
// aplica el schema y poda el audit antiguo.
func NewSQLiteStorage(path string) (*SQLiteStorage, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("storage.NewSQLiteStorage: open %q: %w", path, err)
	}
	db.SetMaxOpenConns(1) // SQLite es single-writer
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage.NewSQLiteStorage: apply schema: %w", err)
	}

	s := &SQLiteStorage{db: db}
	s.pruneOld(context.Background())
	return s, nil
}

// SaveClosed archiva una posición cerrada. Un ID repetido no duplica la fila.
func (s *SQLiteStorage) SaveClosed(ctx context.Context, cp domain.ClosedPosition) error {
	duration := int64(0)
	if !cp.OpenedAt.IsZero() && cp.ClosedAt.After(cp.OpenedAt) {
		duration = int64(cp.ClosedAt.Sub(cp.OpenedAt).Seconds())
	}
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO closed_positions
			(id, mode, pair_key, venue, base_symbol, entry_price, exit_price, size,
			 pnl_pct, pnl, trigger, tx_hash, opened_at, closed_at, duration_s)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING`,
		cp.ID, cp.Mode, cp.PairKey, cp.Venue.String(), cp.BaseSymbol,
		cp.EntryPrice, cp.ExitPrice, cp.Size, cp.PnLPct, cp.PnL,
		cp.Trigger, cp.TxHash, cp.OpenedAt.UTC(), cp.ClosedAt.UTC(), duration,
	); err != nil {
		return fmt.Errorf("storage.SaveClosed: insert %s: %w", cp.PairKey, err)
	}
	return nil
}

// ClosedPositions devuelve los últimos cierres, más recientes primero. limit <= 0 = todos.
func (s *SQLiteStorage) ClosedPositions(ctx context.Context, limit int) ([]domain.ClosedPosition, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, mode, pair_key, venue, base_symbol, entry_price, exit_price, size,
		       pnl_pct, pnl, trigger, tx_hash, opened_at, closed_at
		FROM closed_positions
		ORDER BY closed_at DESC, rowid DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("storage.ClosedPositions: query: %w", err)
	}
	defer rows.Close()

	var out []domain.ClosedPosition
	for rows.Next() {
		var (
			cp    domain.ClosedPosition
			venue string
		)
		if err := rows.Scan(
			&cp.ID, &cp.Mode, &cp.PairKey, &venue, &cp.BaseSymbol,
			&cp.EntryPrice, &cp.ExitPrice, &cp.Size, &cp.PnLPct, &cp.PnL,
			&cp.Trigger, &cp.TxHash, &cp.OpenedAt, &cp.ClosedAt,
		); err != nil {
			return nil, fmt.Errorf("storage.ClosedPositions: scan row: %w", err)
		}
		cp.Venue, _ = domain.ParseVenue(venue)
		out = append(out, cp)
	}
	return out, rows.Err()
}

// Summaries devuelve el agregado de cierres por modo, ordenado por modo.
func (s *SQLiteStorage) Summaries(ctx context.Context) ([]Summary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT mode, COUNT(*), SUM(CASE WHEN pnl > 0 THEN 1 ELSE 0 END), COALESCE(SUM(pnl), 0)
		FROM closed_positions
		GROUP BY mode
		ORDER BY mode`)
	if err != nil {
		return nil, fmt.Errorf("storage.Summaries: query: %w", err)
	}
	defer rows.Close()

	var out []Summary
	for rows.Next() {
		var sm Summary
		if err := rows.Scan(&sm.Mode, &sm.Closed, &sm.Wins, &sm.PnL); err != nil {
			return nil, fmt.Errorf("storage.Summaries: scan row: %w", err)
		}
		out = append(out, sm)
	}
	return out, rows.Err()
}

// Record implementa ports.AuditSink.
func (s *SQLiteStorage) Record(ctx context.Context, ev domain.AuditEvent) error {
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO audit_log (id, at, scope, kind, pair_key, message) VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO NOTHING`,
		ev.ID, ev.At.UTC(), ev.Scope, string(ev.Kind), ev.PairKey, ev.Message,
	); err != nil {
		return fmt.Errorf("storage.Record: insert audit: %w", err)
	}
	return nil
}

// AuditLines devuelve las últimas n líneas del audit en orden cronológico.
func (s *SQLiteStorage) AuditLines(ctx context.Context, n int) ([]domain.AuditEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, at, scope, kind, pair_key, message FROM (
			SELECT rowid AS rid, * FROM audit_log ORDER BY at DESC, rowid DESC LIMIT ?
		) ORDER BY at ASC, rid ASC`, n)
	if err != nil {
		return nil, fmt.Errorf("storage.AuditLines: query: %w", err)
	}
	defer rows.Close()

	var out []domain.AuditEvent
	for rows.Next() {
		var (
			ev   domain.AuditEvent
			kind string
		)
		if err := rows.Scan(&ev.ID, &ev.At, &ev.Scope, &kind, &ev.PairKey, &ev.Message); err != nil {
			return nil, fmt.Errorf("storage.AuditLines: scan row: %w", err)
		}
		ev.Kind = domain.AuditKind(kind)
		out = append(out, ev)
	}
	return out, rows.Err()
}

// LoadSettings devuelve la superficie clave/valor persistida.
func (s *SQLiteStorage) LoadSettings(ctx context.Context) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM settings`)
	if err != nil {
		return nil, fmt.Errorf("storage.LoadSettings: query: %w", err)
	}
	defer rows.Close()

	kv := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("storage.LoadSettings: scan row: %w", err)
		}
		kv[k] = v
	}
	return kv, rows.Err()
}

// SaveSettings hace upsert de todas las claves en una transacción.
func (s *SQLiteStorage) SaveSettings(ctx context.Context, kv map[string]string) error {
	if len(kv) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("storage.SaveSettings: begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO settings (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			value      = excluded.value,
			updated_at = excluded.updated_at`)
	if err != nil {
		return fmt.Errorf("storage.SaveSettings: prepare: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for k, v := range kv {
		if _, err := stmt.ExecContext(ctx, k, v, now); err != nil {
			return fmt.Errorf("storage.SaveSettings: upsert %s: %w", k, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("storage.SaveSettings: commit: %w", err)
	}
	return nil
}

// Close cierra la conexión a la base de datos.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// pruneOld elimina audit antiguo para mantener la DB ligera. El archivo de cierres no se poda.
func (s *SQLiteStorage) pruneOld(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-retentionAudit)
	s.db.ExecContext(ctx, `DELETE FROM audit_log WHERE at < ?`, cutoff)
}
