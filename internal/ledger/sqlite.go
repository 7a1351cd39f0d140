package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // pure-Go SQLite driver

	"ecogame/internal/types"
)

// SQLiteStore keeps the snapshot in a SQLite table. Save replaces the whole
// table inside one transaction.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens or creates the database at path and runs migrations.
func OpenSQLite(path string) (*SQLiteStore, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	s := &SQLiteStore{db: db}
	if err := s.migrate(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

func (s *SQLiteStore) migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS players (
			name_key TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			total INTEGER NOT NULL DEFAULT 0,
			last_played INTEGER NOT NULL DEFAULT 0,
			position INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_players_total ON players(total DESC)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}

// Load reads every row, highest total first.
func (s *SQLiteStore) Load(ctx context.Context) ([]types.PlayerRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT name, total, last_played FROM players ORDER BY total DESC, position ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := []types.PlayerRecord{}
	for rows.Next() {
		var (
			rec types.PlayerRecord
			ms  int64
		)
		if err := rows.Scan(&rec.Name, &rec.Total, &ms); err != nil {
			return nil, err
		}
		if ms > 0 {
			rec.LastPlayed = types.NewTimestamp(time.UnixMilli(ms))
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Save replaces the table contents with records.
func (s *SQLiteStore) Save(ctx context.Context, records []types.PlayerRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM players`); err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO players (name_key, name, total, last_played, position) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, rec := range records {
		var ms int64
		if !rec.LastPlayed.IsZero() {
			ms = rec.LastPlayed.UnixMilli()
		}
		if _, err := stmt.ExecContext(ctx, Key(rec.Name), rec.Name, rec.Total, ms, i); err != nil {
			return fmt.Errorf("save player %q: %w", rec.Name, err)
		}
	}
	return tx.Commit()
}
