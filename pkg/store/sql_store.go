package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq" // Postgres driver
	_ "modernc.org/sqlite"

	"github.com/Mindburn-Labs/cryptoconditions/pkg/conditions"
)

type dialect struct {
	driver   string
	blobType string
	bind     func(n int) string
}

var (
	sqliteDialect = dialect{
		driver:   "sqlite",
		blobType: "BLOB",
		bind:     func(int) string { return "?" },
	}
	postgresDialect = dialect{
		driver:   "postgres",
		blobType: "BYTEA",
		bind:     func(n int) string { return fmt.Sprintf("$%d", n) },
	}
)

// SQLStore is a ConditionStore on SQLite or Postgres.
type SQLStore struct {
	db *sql.DB
	d  dialect
}

// Open connects to dsn and prepares the schema. A postgres:// or
// postgresql:// DSN selects Postgres; anything else is a SQLite path.
func Open(ctx context.Context, dsn string) (*SQLStore, error) {
	d := sqliteDialect
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		d = postgresDialect
	}
	db, err := sql.Open(d.driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", d.driver, err)
	}
	if d.driver == "sqlite" {
		// A single writer avoids SQLITE_BUSY under concurrent requests.
		db.SetMaxOpenConns(1)
	}
	s, err := newSQLStore(ctx, db, d)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// NewSQLiteStore wraps an open SQLite handle.
func NewSQLiteStore(ctx context.Context, db *sql.DB) (*SQLStore, error) {
	return newSQLStore(ctx, db, sqliteDialect)
}

// NewPostgresStore wraps an open Postgres handle.
func NewPostgresStore(ctx context.Context, db *sql.DB) (*SQLStore, error) {
	return newSQLStore(ctx, db, postgresDialect)
}

func newSQLStore(ctx context.Context, db *sql.DB, d dialect) (*SQLStore, error) {
	s := &SQLStore{db: db, d: d}
	if err := s.migrate(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLStore) migrate(ctx context.Context) error {
	query := `
	CREATE TABLE IF NOT EXISTS conditions (
		uri TEXT PRIMARY KEY,
		type_name TEXT NOT NULL,
		cost BIGINT NOT NULL,
		bin ` + s.d.blobType + ` NOT NULL,
		structure TEXT NOT NULL,
		created_at TEXT NOT NULL
	);`
	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("migrate condition store: %w", err)
	}
	return nil
}

// Close releases the database handle.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

func (s *SQLStore) Put(ctx context.Context, c conditions.Condition) (*Record, error) {
	structure, err := conditions.ConditionToJSONString(conditions.Strip(c))
	if err != nil {
		return nil, fmt.Errorf("encode condition structure: %w", err)
	}
	r := &Record{
		URI:       conditions.URI(c),
		Type:      c.Type().Name,
		Cost:      c.Cost(),
		Bin:       conditions.EncodeCondition(c),
		Condition: conditions.Strip(c),
		CreatedAt: time.Now().UTC(),
	}

	query := fmt.Sprintf(`INSERT INTO conditions (uri, type_name, cost, bin, structure, created_at)
		VALUES (%s, %s, %s, %s, %s, %s)
		ON CONFLICT (uri) DO NOTHING`,
		s.d.bind(1), s.d.bind(2), s.d.bind(3), s.d.bind(4), s.d.bind(5), s.d.bind(6))
	_, err = s.db.ExecContext(ctx, query,
		r.URI, r.Type, int64(r.Cost), r.Bin, structure, r.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert condition: %w", err)
	}
	return r, nil
}

const selectColumns = `SELECT uri, type_name, cost, bin, structure, created_at FROM conditions`

func (s *SQLStore) Get(ctx context.Context, uri string) (*Record, error) {
	row := s.db.QueryRowContext(ctx, selectColumns+` WHERE uri = `+s.d.bind(1), uri)
	r, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return r, err
}

func (s *SQLStore) List(ctx context.Context, limit int) ([]*Record, error) {
	rows, err := s.db.QueryContext(ctx, selectColumns+` ORDER BY created_at DESC LIMIT `+s.d.bind(1), limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []*Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (*Record, error) {
	var (
		r         Record
		cost      int64
		structure string
		createdAt string
	)
	if err := row.Scan(&r.URI, &r.Type, &cost, &r.Bin, &structure, &createdAt); err != nil {
		return nil, err
	}
	c, err := conditions.ConditionFromJSONString([]byte(structure))
	if err != nil {
		return nil, fmt.Errorf("stored condition %s: %w", r.URI, err)
	}
	r.Cost = uint64(cost)
	r.Condition = c
	r.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	return &r, nil
}
