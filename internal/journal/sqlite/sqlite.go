package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/relaypilot/relaypilot/internal/journal"
)

// Sink writes journal events to a SQLite database. It is the default sink:
// a bare file path in the journal DSN lands here.
type Sink struct {
	db    *sql.DB
	table string
}

// New opens (or creates) the database at dsn.
// DSN format:
//   - "sqlite:///path/to/file.db"
//   - "sqlite://:memory:"
//   - "/path/to/file.db" (without prefix)
//   - ":memory:" (in-memory database)
func New(dsn, table string) (*Sink, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, errors.New("empty SQLite DSN")
	}
	if strings.HasPrefix(strings.ToLower(dsn), "sqlite://") {
		dsn = strings.TrimPrefix(dsn, "sqlite://")
	}
	if table == "" {
		table = "worker_events"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	s := &Sink{db: db, table: table}
	if err := s.ensureSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Sink) ensureSchema(ctx context.Context) error {
	// Append-only audit table, no primary key.
	stmt := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s(
		occurred_at TIMESTAMP NOT NULL,
		event TEXT NOT NULL,
		worker TEXT NOT NULL,
		pid INTEGER NOT NULL,
		exit_code INTEGER NULL,
		signal TEXT NULL,
		detail TEXT NULL
	);`, s.table)
	_, err := s.db.ExecContext(ctx, stmt)
	return err
}

func (s *Sink) Send(ctx context.Context, e journal.Event) error {
	exitCode := interface{}(nil)
	if e.ExitCode != nil {
		exitCode = *e.ExitCode
	}
	_, err := s.db.ExecContext(ctx, fmt.Sprintf(`
		INSERT INTO %s(occurred_at, event, worker, pid, exit_code, signal, detail)
		VALUES(?, ?, ?, ?, ?, ?, ?);`, s.table),
		e.OccurredAt.UTC(), string(e.Type), e.Worker, e.PID, exitCode, e.Signal, e.Detail)
	return err
}

func (s *Sink) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
