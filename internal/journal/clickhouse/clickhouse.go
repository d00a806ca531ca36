package clickhouse

import (
	"context"
	"fmt"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"github.com/relaypilot/relaypilot/internal/journal"
)

// Sink writes journal events to ClickHouse over the native protocol.
type Sink struct {
	conn  driver.Conn
	table string
}

// New connects to addr (host:port) and verifies the connection. The table
// is created on first use so the supervisor can start before the analytics
// schema exists.
func New(addr, table string) (*Sink, error) {
	if table == "" {
		table = "worker_events"
	}
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{addr},
		Auth: clickhouse.Auth{
			Database: "default",
			Username: "default",
			Password: "",
		},
	})
	if err != nil {
		return nil, fmt.Errorf("connect to ClickHouse: %w", err)
	}
	if err := conn.Ping(context.Background()); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("ping ClickHouse: %w", err)
	}
	s := &Sink{conn: conn, table: table}
	if err := s.ensureSchema(context.Background()); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return s, nil
}

func (s *Sink) ensureSchema(ctx context.Context) error {
	stmt := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		occurred_at DateTime64(3),
		event String,
		worker String,
		pid Int32,
		exit_code Nullable(Int32),
		signal String,
		detail String
	) ENGINE = MergeTree() ORDER BY occurred_at`, s.table)
	return s.conn.Exec(ctx, stmt)
}

func (s *Sink) Send(ctx context.Context, e journal.Event) error {
	query := fmt.Sprintf(`INSERT INTO %s (occurred_at, event, worker, pid, exit_code, signal, detail)
		VALUES (?, ?, ?, ?, ?, ?, ?)`, s.table)

	var exitCode *int32
	if e.ExitCode != nil {
		c := int32(*e.ExitCode)
		exitCode = &c
	}
	err := s.conn.Exec(ctx, query,
		e.OccurredAt,
		string(e.Type),
		e.Worker,
		int32(e.PID),
		exitCode,
		e.Signal,
		e.Detail,
	)
	if err != nil {
		return fmt.Errorf("insert event into ClickHouse: %w", err)
	}
	return nil
}

func (s *Sink) Close() error {
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}
