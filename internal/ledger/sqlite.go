package ledger

import (
	"context"
	"database/sql"
	"time"

	"github.com/m-mizutani/goerr/v2"
	_ "github.com/mattn/go-sqlite3"

	"github.com/phenowatch/phenowatch/pkg/types"
)

const schema = `
CREATE TABLE IF NOT EXISTS notifications (
	id         TEXT PRIMARY KEY,
	notify_key TEXT NOT NULL UNIQUE,
	source     TEXT NOT NULL,
	week       TEXT NOT NULL,
	category   TEXT NOT NULL,
	severity   TEXT NOT NULL,
	count      INTEGER NOT NULL,
	op         TEXT NOT NULL DEFAULT '',
	threshold  REAL NOT NULL DEFAULT 0,
	rule       TEXT NOT NULL DEFAULT '',
	message    TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_notifications_created_at ON notifications(created_at);
`

const weekLayout = "2006-01-02"

// SQLite implements Ledger on a SQLite database file.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the database at path and applies the
// schema. Use ":memory:" for a throwaway database.
func OpenSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, goerr.Wrap(err, "open sqlite", goerr.V("path", path))
	}
	// A single connection keeps ":memory:" databases shared and serialises writes.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, goerr.Wrap(err, "apply ledger schema", goerr.V("path", path))
	}
	return &SQLite{db: db}, nil
}

// Claim implements Ledger.
func (s *SQLite) Claim(ctx context.Context, n *types.Notification) (bool, error) {
	if n == nil {
		return false, goerr.New("notification is nil")
	}
	if n.ID == "" {
		return false, goerr.New("notification ID is empty")
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO notifications
		 (id, notify_key, source, week, category, severity, count, op, threshold, rule, message, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		n.ID, n.Key(), n.Source, n.Week.UTC().Format(weekLayout), string(n.Category), n.Severity,
		n.Count, n.Op, n.Threshold, n.Rule, n.Message, n.CreatedAt.UTC(),
	)
	if err != nil {
		return false, goerr.Wrap(err, "insert notification", goerr.V("key", n.Key()))
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, goerr.Wrap(err, "rows affected")
	}
	return affected == 1, nil
}

// Recent implements Ledger.
func (s *SQLite) Recent(ctx context.Context, limit int) ([]*types.Notification, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, source, week, category, severity, count, op, threshold, rule, message, created_at
		 FROM notifications ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, goerr.Wrap(err, "query notifications")
	}
	defer rows.Close()

	out := make([]*types.Notification, 0)
	for rows.Next() {
		var (
			n        types.Notification
			week     string
			category string
		)
		if err := rows.Scan(&n.ID, &n.Source, &week, &category, &n.Severity, &n.Count,
			&n.Op, &n.Threshold, &n.Rule, &n.Message, &n.CreatedAt); err != nil {
			return nil, goerr.Wrap(err, "scan notification")
		}
		w, err := time.Parse(weekLayout, week)
		if err != nil {
			return nil, goerr.Wrap(err, "parse stored week", goerr.V("week", week))
		}
		n.Week = w
		n.Category = types.Category(category)
		out = append(out, &n)
	}
	if err := rows.Err(); err != nil {
		return nil, goerr.Wrap(err, "iterate notifications")
	}
	return out, nil
}

// Close implements Ledger.
func (s *SQLite) Close() error {
	return s.db.Close()
}
