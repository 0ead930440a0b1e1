package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"

	_ "github.com/mattn/go-sqlite3"

	"github.com/roach88/lectern/internal/doc"
)

//go:embed schema.sql
var schemaSQL string

// Schema version tracking:
// 0 - Initial schema (pre-migration)
// 1 - Append-only triggers on commits
const currentSchemaVersion = 1

// SQLite stores snapshots and commits in a single database file.
type SQLite struct {
	db     *sql.DB
	logger *slog.Logger
}

var _ Backend = (*SQLite)(nil)

// OpenSQLite creates or opens a database at path. ":memory:" opens a private
// in-memory database.
//
// The database is configured with:
//   - WAL mode for concurrent reads during writes
//   - NORMAL synchronous mode (balance durability/performance)
//   - 5-second busy timeout for lock contention
//   - Foreign key enforcement
//
// This function is idempotent - safe to call multiple times.
func OpenSQLite(path string, logger *slog.Logger) (*SQLite, error) {
	if logger == nil {
		logger = slog.Default()
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite only supports one writer at a time, and every :memory:
	// connection is a separate database.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}

	if err := applySchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &SQLite{db: db, logger: logger}, nil
}

// Close closes the database connection.
func (s *SQLite) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// applyPragmas sets required SQLite configuration.
func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	return nil
}

// applySchema creates tables if they don't exist and runs migrations.
func applySchema(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}

	if err := runMigrations(db); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// runMigrations applies incremental schema migrations based on user_version.
func runMigrations(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}

	if version < 1 {
		if err := migrateToV1(db); err != nil {
			return err
		}
	}

	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}

	return nil
}

// migrateToV1 makes the commits table append-only at the database level.
func migrateToV1(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TRIGGER IF NOT EXISTS commits_no_update
		BEFORE UPDATE ON commits
		BEGIN
			SELECT RAISE(ABORT, 'commits are append-only');
		END;
		CREATE TRIGGER IF NOT EXISTS commits_no_delete
		BEFORE DELETE ON commits
		BEGIN
			SELECT RAISE(ABORT, 'commits are append-only');
		END;
	`)
	if err != nil {
		return fmt.Errorf("migrate to v1: %w", err)
	}
	return nil
}

// verifyPragma checks that a pragma is set to the expected value.
// Used for testing.
func (s *SQLite) verifyPragma(name, expected string) error {
	var value string
	query := fmt.Sprintf("PRAGMA %s", name)
	if err := s.db.QueryRow(query).Scan(&value); err != nil {
		return fmt.Errorf("failed to query %s: %w", name, err)
	}
	if value != expected {
		return fmt.Errorf("%s = %q, expected %q", name, value, expected)
	}
	return nil
}

// WriteSnapshot inserts or replaces the snapshot row for item.ID.
func (s *SQLite) WriteSnapshot(ctx context.Context, item doc.Item) error {
	if err := ValidateID(item.ID); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	data, err := encodeSnapshot(item)
	if err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO snapshots (id, type, version, data)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			type = excluded.type,
			version = excluded.version,
			data = excluded.data
	`, item.ID, string(item.Type), item.Version, string(data))
	if err != nil {
		return fmt.Errorf("write snapshot %s: %w", item.ID, err)
	}

	s.logger.Debug("snapshot written", "id", item.ID, "version", item.Version)
	return nil
}

// ReadSnapshot loads the snapshot row for id.
func (s *SQLite) ReadSnapshot(ctx context.Context, id string) (doc.Item, error) {
	if err := ValidateID(id); err != nil {
		return doc.Item{}, fmt.Errorf("read snapshot: %w", err)
	}

	var data string
	err := s.db.QueryRowContext(ctx, `SELECT data FROM snapshots WHERE id = ?`, id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return doc.Item{}, fmt.Errorf("read snapshot %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return doc.Item{}, fmt.Errorf("read snapshot %s: %w", id, err)
	}

	it, err := decodeSnapshot(id, []byte(data))
	if err != nil {
		return doc.Item{}, &CorruptError{ID: id, Source: "snapshots", Err: err}
	}
	return it, nil
}

// ListSnapshots returns every decodable snapshot ordered by id.
// Rows that fail to decode are skipped with a warning.
func (s *SQLite) ListSnapshots(ctx context.Context) ([]doc.Item, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, data FROM snapshots
		ORDER BY id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query snapshots: %w", err)
	}
	defer rows.Close()

	items := []doc.Item{}
	for rows.Next() {
		var id, data string
		if err := rows.Scan(&id, &data); err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		it, err := decodeSnapshot(id, []byte(data))
		if err != nil {
			s.logger.Warn("skipping corrupt snapshot", "id", id, "error", err)
			continue
		}
		items = append(items, it)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate snapshots: %w", err)
	}
	return items, nil
}

// AppendCommit inserts c at the end of the log for id.
func (s *SQLite) AppendCommit(ctx context.Context, id string, c doc.Commit) error {
	if err := ValidateID(id); err != nil {
		return fmt.Errorf("append commit: %w", err)
	}
	if err := checkCommitOwner(id, c); err != nil {
		return err
	}
	data, err := encodeCommit(c)
	if err != nil {
		return fmt.Errorf("append commit: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO commits (item_id, commit_id, version_number, data)
		VALUES (?, ?, ?, ?)
	`, id, c.CommitID, c.VersionNumber, string(data))
	if err != nil {
		return fmt.Errorf("append commit %s: %w", id, err)
	}

	s.logger.Debug("commit appended", "id", id, "commit_id", c.CommitID, "version", c.VersionNumber)
	return nil
}

// ReadCommits returns the commits for id in append order.
// Returns an empty slice (not nil) when the item has no commits.
func (s *SQLite) ReadCommits(ctx context.Context, id string) ([]doc.Commit, error) {
	if err := ValidateID(id); err != nil {
		return nil, fmt.Errorf("read commits: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, data FROM commits
		WHERE item_id = ?
		ORDER BY seq ASC
	`, id)
	if err != nil {
		return nil, fmt.Errorf("query commits: %w", err)
	}
	defer rows.Close()

	commits := []doc.Commit{}
	for rows.Next() {
		var seq int64
		var data string
		if err := rows.Scan(&seq, &data); err != nil {
			return nil, fmt.Errorf("scan commit: %w", err)
		}
		c, err := decodeCommit([]byte(data))
		if err != nil {
			s.logger.Warn("skipping corrupt commit", "id", id, "seq", seq, "error", err)
			continue
		}
		commits = append(commits, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate commits: %w", err)
	}
	return commits, nil
}
