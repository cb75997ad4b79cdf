// Package auditsink records run-level lifecycle events (run_start, run_end,
// error) to ClickHouse for after-the-fact audit. It is optional: when no DSN
// is configured, Record is a no-op and the sink never blocks a run.
package auditsink

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"

	"lanecore/internal/config"
)

// Event is one audited run-lifecycle record.
type Event struct {
	RunID     string
	SessionID string
	TraceID   string
	Type      string // run_start | run_end | error
	OK        bool
	Detail    string
	Timestamp time.Time
}

// Sink writes audit events to ClickHouse. A nil *Sink is valid and Record
// becomes a no-op, matching the disabled-by-default pattern used for the
// optional Redis query cache tier.
type Sink struct {
	conn  clickhouse.Conn
	table string
}

// New connects to ClickHouse using cfg. Returns (nil, nil) when DSN is empty.
func New(ctx context.Context, cfg config.ClickHouseConfig) (*Sink, error) {
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, nil
	}
	opts, err := clickhouse.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse clickhouse dsn: %w", err)
	}
	if cfg.Database != "" {
		opts.Auth.Database = cfg.Database
	}
	conn, err := clickhouse.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open clickhouse connection: %w", err)
	}
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := conn.Ping(pingCtx); err != nil {
		return nil, fmt.Errorf("clickhouse ping: %w", err)
	}
	table := strings.TrimSpace(cfg.AuditTable)
	if table == "" {
		table = "run_audit"
	}
	if err := conn.Exec(ctx, fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
  ts DateTime64(3),
  run_id String,
  session_id String,
  trace_id String,
  type String,
  ok UInt8,
  detail String
) ENGINE = MergeTree() ORDER BY ts
`, table)); err != nil {
		return nil, fmt.Errorf("ensure audit table: %w", err)
	}
	return &Sink{conn: conn, table: table}, nil
}

// Record appends an audit event. Safe to call on a nil *Sink.
func (s *Sink) Record(ctx context.Context, ev Event) error {
	if s == nil || s.conn == nil {
		return nil
	}
	ok := uint8(0)
	if ev.OK {
		ok = 1
	}
	ts := ev.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	return s.conn.Exec(ctx, fmt.Sprintf("INSERT INTO %s (ts, run_id, session_id, trace_id, type, ok, detail) VALUES (?, ?, ?, ?, ?, ?, ?)", s.table),
		ts, ev.RunID, ev.SessionID, ev.TraceID, ev.Type, ok, ev.Detail)
}

// Close releases the underlying connection. Safe to call on a nil *Sink.
func (s *Sink) Close() error {
	if s == nil || s.conn == nil {
		return nil
	}
	return s.conn.Close()
}
