package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"NewsDigest/internal/ports"
)

const backupTable = "backup_entries"

// Dialect selects placeholder style and column types for a SQL backend.
type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite"
)

// SQLStore persists backup entries into Postgres or SQLite.
type SQLStore struct {
	db      *sql.DB
	dialect Dialect
	builder sq.StatementBuilderType
}

var _ ports.BackupStore = (*SQLStore)(nil)

// NewSQLStore wires a sql.DB implementation for the given dialect.
func NewSQLStore(db *sql.DB, dialect Dialect) *SQLStore {
	builder := sq.StatementBuilder.PlaceholderFormat(sq.Question)
	if dialect == DialectPostgres {
		builder = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)
	}
	return &SQLStore{db: db, dialect: dialect, builder: builder}
}

// OpenSQLStore opens the database, creates the schema and returns a ready store.
func OpenSQLStore(ctx context.Context, dialect Dialect, dsn string) (*SQLStore, error) {
	driver := string(dialect)
	if dialect != DialectPostgres && dialect != DialectSQLite {
		return nil, fmt.Errorf("unsupported backup dialect %q", dialect)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	if dialect == DialectSQLite {
		db.SetMaxOpenConns(1)
	}

	store := NewSQLStore(db, dialect)
	if err := store.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Migrate creates the backup table when missing.
func (s *SQLStore) Migrate(ctx context.Context) error {
	payloadType := "BLOB"
	if s.dialect == DialectPostgres {
		payloadType = "BYTEA"
	}

	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
              cache_key  TEXT PRIMARY KEY,
              payload    %s NOT NULL,
              created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
          )`, backupTable, payloadType)

	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("migrate backup table: %w", err)
	}
	return nil
}

// Get returns the payload stored under key, if any.
func (s *SQLStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	query, args, err := s.getQuery(key)
	if err != nil {
		return nil, false, err
	}

	var payload []byte
	err = s.db.QueryRowContext(ctx, query, args...).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("query backup %s: %w", key, err)
	}
	return payload, true, nil
}

// Put stores the payload once; an existing entry for key is left untouched.
func (s *SQLStore) Put(ctx context.Context, key string, payload []byte) error {
	query, args, err := s.putQuery(key, payload)
	if err != nil {
		return err
	}

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert backup %s: %w", key, err)
	}
	return nil
}

// Close releases the underlying connection pool.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

func (s *SQLStore) getQuery(key string) (string, []any, error) {
	query, args, err := s.builder.
		Select("payload").
		From(backupTable).
		Where(sq.Eq{"cache_key": key}).
		ToSql()
	if err != nil {
		return "", nil, fmt.Errorf("build select: %w", err)
	}
	return query, args, nil
}

func (s *SQLStore) putQuery(key string, payload []byte) (string, []any, error) {
	query, args, err := s.builder.
		Insert(backupTable).
		Columns("cache_key", "payload").
		Values(key, payload).
		Suffix("ON CONFLICT (cache_key) DO NOTHING").
		ToSql()
	if err != nil {
		return "", nil, fmt.Errorf("build insert: %w", err)
	}
	return query, args, nil
}
