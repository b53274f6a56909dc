package ledger

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteFilename is the database file created under the ledger directory.
const SQLiteFilename = "ledger.db"

// SQLiteLedger stores all keys in a single sqlite table. Rows are only ever
// inserted.
type SQLiteLedger struct {
	conn  *sql.DB
	runID string
}

func NewSQLiteLedger(dir, runID string) (*SQLiteLedger, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("%w: failed to create ledger directory: %v", ErrLedgerIO, err)
	}

	dsn := filepath.Join(dir, SQLiteFilename) + "?_journal_mode=WAL&_synchronous=FULL&_busy_timeout=5000"
	conn, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open database: %v", ErrLedgerIO, err)
	}

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("%w: failed to ping database: %v", ErrLedgerIO, err)
	}

	l := &SQLiteLedger{conn: conn, runID: runID}
	if err := l.createTables(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("%w: failed to create tables: %v", ErrLedgerIO, err)
	}

	return l, nil
}

func (l *SQLiteLedger) createTables() error {
	query := `
	CREATE TABLE IF NOT EXISTS ledger_entries (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		dataset TEXT NOT NULL,
		split TEXT NOT NULL,
		name TEXT NOT NULL,
		run_id TEXT,
		completed_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_ledger_entries_key ON ledger_entries (dataset, split);
	`

	_, err := l.conn.Exec(query)
	return err
}

func (l *SQLiteLedger) Load(key Key) (map[string]struct{}, error) {
	names, err := l.Entries(key)
	if err != nil {
		return nil, err
	}
	return toSet(names), nil
}

func (l *SQLiteLedger) Entries(key Key) ([]string, error) {
	rows, err := l.conn.Query(
		"SELECT name FROM ledger_entries WHERE dataset = ? AND split = ? ORDER BY id",
		key.Dataset, key.Split,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to query ledger %s: %v", ErrLedgerIO, key, err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("%w: failed to scan ledger entry: %v", ErrLedgerIO, err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: failed to read ledger %s: %v", ErrLedgerIO, key, err)
	}

	return dedupe(names), nil
}

func (l *SQLiteLedger) MarkDone(key Key, name string) error {
	if name == "" {
		return fmt.Errorf("invalid source name %q", name)
	}

	_, err := l.conn.Exec(
		"INSERT INTO ledger_entries (dataset, split, name, run_id, completed_at) VALUES (?, ?, ?, ?, ?)",
		key.Dataset, key.Split, name, l.runID, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("%w: failed to record %s in ledger %s: %v", ErrLedgerIO, name, key, err)
	}
	return nil
}

func (l *SQLiteLedger) Close() error {
	return l.conn.Close()
}
