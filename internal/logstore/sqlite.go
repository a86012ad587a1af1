package logstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/fyrsmithlabs/contextcore/internal/devlog"
	"github.com/fyrsmithlabs/contextcore/internal/logstore/migrations"
)

// Config configures the SQLite log store.
type Config struct {
	// Path is the database file (default: ./data/contextcore.db).
	Path string

	// BusyTimeout is how long a writer waits on a locked database (default: 5s).
	BusyTimeout time.Duration

	// MaxOpenConns limits the connection pool (default: 4).
	MaxOpenConns int
}

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.Path == "" {
		c.Path = filepath.Join("data", "contextcore.db")
	}
	if c.BusyTimeout == 0 {
		c.BusyTimeout = 5 * time.Second
	}
	if c.MaxOpenConns == 0 {
		c.MaxOpenConns = 4
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.Path == "" {
		return errors.New("sqlite path is required")
	}
	if c.BusyTimeout < 0 {
		return errors.New("busy timeout must not be negative")
	}
	if c.MaxOpenConns < 1 {
		return fmt.Errorf("max open connections must be at least 1, got %d", c.MaxOpenConns)
	}
	return nil
}

// SQLiteStore implements devlog.LogStore on SQLite.
//
// Tags are kept twice: as a JSON array on the log row for hydration and as
// rows of log_tags so that ANY-match filters run inside the query, before
// LIMIT is applied.
type SQLiteStore struct {
	db     *sql.DB
	path   string
	logger *zap.Logger
}

var _ devlog.LogStore = (*SQLiteStore)(nil)

// NewSQLiteStore opens (creating if needed) the database and runs migrations.
func NewSQLiteStore(cfg Config, logger *zap.Logger) (*SQLiteStore, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	if dir := filepath.Dir(cfg.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
	}

	dsn := fmt.Sprintf("%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(%d)&_pragma=foreign_keys(1)",
		cfg.Path, cfg.BusyTimeout.Milliseconds())
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)

	s := &SQLiteStore{db: db, path: cfg.Path, logger: logger}
	if err := s.migrate(context.Background(), migrations.FS); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	logger.Info("log store opened", zap.String("path", cfg.Path))
	return s, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *SQLiteStore) Path() string {
	return s.path
}

// Ping checks that the database is reachable.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// migrate applies every NNN_name.up.sql newer than the recorded version.
func (s *SQLiteStore) migrate(ctx context.Context, fsys fs.FS) error {
	if _, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at INTEGER NOT NULL
		)
	`); err != nil {
		return fmt.Errorf("creating schema_migrations table: %w", err)
	}

	var current int
	if err := s.db.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&current); err != nil {
		return fmt.Errorf("getting current version: %w", err)
	}

	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}
	var upFiles []string
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".up.sql") {
			upFiles = append(upFiles, e.Name())
		}
	}
	sort.Strings(upFiles)

	for _, name := range upFiles {
		var version int
		if _, err := fmt.Sscanf(name, "%d_", &version); err != nil {
			continue
		}
		if version <= current {
			continue
		}

		content, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", name, err)
		}

		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin migration %s: %w", name, err)
		}
		if _, err := tx.ExecContext(ctx, string(content)); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("executing migration %s: %w", name, err)
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO schema_migrations (version, applied_at) VALUES (?, ?)",
			version, time.Now().UnixMilli()); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("recording migration %s: %w", name, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %s: %w", name, err)
		}
		s.logger.Debug("applied migration", zap.String("name", name))
	}
	return nil
}

const logColumns = "id, title, content, tags, module, type, timestamp, created_at, updated_at, index_status"

// Save inserts or replaces a log and its tags.
func (s *SQLiteStore) Save(ctx context.Context, log *devlog.Log) error {
	tagsJSON, err := json.Marshal(nonNil(log.Tags))
	if err != nil {
		return fmt.Errorf("marshalling tags: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO logs (`+logColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			content = excluded.content,
			tags = excluded.tags,
			module = excluded.module,
			type = excluded.type,
			timestamp = excluded.timestamp,
			updated_at = excluded.updated_at,
			index_status = excluded.index_status
	`, log.ID, log.Title, log.Content, string(tagsJSON), log.Module, string(log.Type),
		log.Timestamp.UnixMilli(), log.CreatedAt.UnixMilli(), log.UpdatedAt.UnixMilli(),
		string(log.IndexStatus))
	if err != nil {
		return fmt.Errorf("saving log: %w", err)
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM log_tags WHERE log_id = ?", log.ID); err != nil {
		return fmt.Errorf("clearing tags: %w", err)
	}
	for _, tag := range log.Tags {
		if _, err := tx.ExecContext(ctx,
			"INSERT OR IGNORE INTO log_tags (log_id, tag) VALUES (?, ?)", log.ID, tag); err != nil {
			return fmt.Errorf("saving tag %q: %w", tag, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit log: %w", err)
	}
	return nil
}

// FindByID returns the log with id or an error wrapping devlog.ErrNotFound.
func (s *SQLiteStore) FindByID(ctx context.Context, id string) (*devlog.Log, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+logColumns+" FROM logs WHERE id = ?", id)
	log, err := scanLog(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", devlog.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("getting log: %w", err)
	}
	return log, nil
}

// FindByIDs returns the logs that exist among ids, in no particular order.
func (s *SQLiteStore) FindByIDs(ctx context.Context, ids []string) ([]*devlog.Log, error) {
	if len(ids) == 0 {
		return []*devlog.Log{}, nil
	}
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	query := "SELECT " + logColumns + " FROM logs WHERE id IN (" + placeholders(len(ids)) + ")"
	return s.queryLogs(ctx, query, args...)
}

// FindAll returns logs matching filter, newest first. limit <= 0 means no limit.
func (s *SQLiteStore) FindAll(ctx context.Context, filter devlog.Filter, limit int) ([]*devlog.Log, error) {
	where, args := whereClause(filter)
	query := "SELECT " + logColumns + " FROM logs" + where +
		" ORDER BY timestamp DESC, created_at DESC, id ASC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	return s.queryLogs(ctx, query, args...)
}

// FindByStatus returns logs in the given index status, oldest first.
func (s *SQLiteStore) FindByStatus(ctx context.Context, status devlog.IndexStatus, limit int) ([]*devlog.Log, error) {
	query := "SELECT " + logColumns + " FROM logs WHERE index_status = ? ORDER BY created_at ASC, id ASC"
	args := []any{string(status)}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	return s.queryLogs(ctx, query, args...)
}

// UpdateIndexStatus sets the index status of a log.
func (s *SQLiteStore) UpdateIndexStatus(ctx context.Context, id string, status devlog.IndexStatus) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE logs SET index_status = ?, updated_at = ? WHERE id = ?",
		string(status), time.Now().UTC().UnixMilli(), id)
	if err != nil {
		return fmt.Errorf("updating index status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("updating index status: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", devlog.ErrNotFound, id)
	}
	return nil
}

// DeleteByID removes a log. It reports whether a row was deleted.
func (s *SQLiteStore) DeleteByID(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM logs WHERE id = ?", id)
	if err != nil {
		return false, fmt.Errorf("deleting log: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("deleting log: %w", err)
	}
	return n > 0, nil
}

// Count returns the number of stored logs.
func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM logs").Scan(&n); err != nil {
		return 0, fmt.Errorf("counting logs: %w", err)
	}
	return n, nil
}

func (s *SQLiteStore) queryLogs(ctx context.Context, query string, args ...any) ([]*devlog.Log, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying logs: %w", err)
	}
	defer rows.Close()

	logs := make([]*devlog.Log, 0)
	for rows.Next() {
		log, err := scanLog(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning log: %w", err)
		}
		logs = append(logs, log)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating logs: %w", err)
	}
	return logs, nil
}

// whereClause translates a filter into SQL. Every constraint is applied in
// the query so LIMIT counts only matching rows.
func whereClause(f devlog.Filter) (string, []any) {
	var conds []string
	var args []any

	if len(f.Tags) > 0 {
		conds = append(conds,
			"EXISTS (SELECT 1 FROM log_tags t WHERE t.log_id = logs.id AND t.tag IN ("+placeholders(len(f.Tags))+"))")
		for _, tag := range f.Tags {
			args = append(args, tag)
		}
	}
	if f.Module != "" {
		conds = append(conds, "module = ?")
		args = append(args, f.Module)
	}
	if f.Type != "" {
		conds = append(conds, "type = ?")
		args = append(args, string(f.Type))
	}
	if f.DateRange != nil {
		if !f.DateRange.From.IsZero() {
			conds = append(conds, "timestamp >= ?")
			args = append(args, f.DateRange.From.UnixMilli())
		}
		if !f.DateRange.To.IsZero() {
			conds = append(conds, "timestamp <= ?")
			args = append(args, f.DateRange.To.UnixMilli())
		}
	}

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

type scanner interface {
	Scan(dest ...any) error
}

func scanLog(row scanner) (*devlog.Log, error) {
	var (
		log                         devlog.Log
		tagsJSON, logType, status   string
		timestamp, created, updated int64
	)
	if err := row.Scan(&log.ID, &log.Title, &log.Content, &tagsJSON, &log.Module, &logType,
		&timestamp, &created, &updated, &status); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(tagsJSON), &log.Tags); err != nil {
		return nil, fmt.Errorf("unmarshalling tags: %w", err)
	}
	log.Type = devlog.LogType(logType)
	log.IndexStatus = devlog.IndexStatus(status)
	log.Timestamp = time.UnixMilli(timestamp).UTC()
	log.CreatedAt = time.UnixMilli(created).UTC()
	log.UpdatedAt = time.UnixMilli(updated).UTC()
	return &log, nil
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func nonNil(tags []string) []string {
	if tags == nil {
		return []string{}
	}
	return tags
}
