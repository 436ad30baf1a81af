package store

import (
	"context"
	"crypto/ed25519"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mindburn-Labs/cryptoconditions/pkg/conditions"
)

func newTestStore(t *testing.T) *SQLStore {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	s, err := NewSQLiteStore(context.Background(), db)
	require.NoError(t, err)
	return s
}

func signedTree(t *testing.T) conditions.Condition {
	t.Helper()
	priv := ed25519.NewKeyFromSeed(make([]byte, ed25519.SeedSize))
	leaf, err := conditions.NewEd25519(priv.Public().(ed25519.PublicKey))
	require.NoError(t, err)
	leaf.Sign(priv, []byte("m"))
	th, err := conditions.NewThreshold(1, conditions.NewPreimage([]byte("secret")), leaf)
	require.NoError(t, err)
	return th
}

func TestSQLStore_PutGet(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	tree := signedTree(t)

	put, err := s.Put(ctx, tree)
	require.NoError(t, err)
	assert.Equal(t, conditions.URI(tree), put.URI)

	got, err := s.Get(ctx, put.URI)
	require.NoError(t, err)
	assert.Equal(t, "threshold-sha-256", got.Type)
	assert.Equal(t, tree.Cost(), got.Cost)
	assert.Equal(t, conditions.EncodeCondition(tree), got.Bin)
	assert.Equal(t, conditions.EncodeCondition(tree), conditions.EncodeCondition(got.Condition))
	assert.False(t, got.Condition.IsFulfilled(), "stored structure carries no evidence")
	assert.WithinDuration(t, time.Now(), got.CreatedAt, time.Minute)
}

func TestSQLStore_PutIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	c := conditions.NewPreimage([]byte("x"))

	_, err := s.Put(ctx, c)
	require.NoError(t, err)
	_, err = s.Put(ctx, c)
	require.NoError(t, err)

	all, err := s.List(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestSQLStore_GetMissing(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Get(context.Background(), "ni:///sha-256;AAAA?fpt=preimage-sha-256&cost=0")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLStore_List(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	for _, p := range []string{"a", "b", "c"} {
		_, err := s.Put(ctx, conditions.NewPreimage([]byte(p)))
		require.NoError(t, err)
	}

	two, err := s.List(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, two, 2)
}

func TestOpen_SQLiteFile(t *testing.T) {
	path := t.TempDir() + "/conditions.db"
	s, err := Open(context.Background(), path)
	require.NoError(t, err)
	_, err = s.Put(context.Background(), conditions.NewPreimage(nil))
	require.NoError(t, err)
	require.NoError(t, s.Close())

	reopened, err := Open(context.Background(), path)
	require.NoError(t, err)
	defer func() { _ = reopened.Close() }()
	_, err = reopened.Get(context.Background(), conditions.URI(conditions.NewPreimage(nil)))
	require.NoError(t, err)
}

func TestSQLStore_InsertFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS conditions").WillReturnResult(sqlmock.NewResult(0, 0))
	s, err := NewSQLiteStore(context.Background(), db)
	require.NoError(t, err)

	mock.ExpectExec("INSERT INTO conditions").WillReturnError(errors.New("disk I/O error"))
	_, err = s.Put(context.Background(), conditions.NewPreimage([]byte("x")))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to insert condition")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStore_PostgresPlaceholders(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	mock.ExpectExec(`(?s)CREATE TABLE IF NOT EXISTS conditions.*BYTEA`).WillReturnResult(sqlmock.NewResult(0, 0))
	s, err := NewPostgresStore(context.Background(), db)
	require.NoError(t, err)

	uri := conditions.URI(conditions.NewPreimage(nil))
	mock.ExpectQuery(`SELECT uri, type_name, cost, bin, structure, created_at FROM conditions WHERE uri = \$1`).
		WithArgs(uri).
		WillReturnRows(sqlmock.NewRows([]string{"uri", "type_name", "cost", "bin", "structure", "created_at"}))

	_, err = s.Get(context.Background(), uri)
	assert.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStore_MigrateFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	mock.ExpectExec("CREATE TABLE").WillReturnError(errors.New("read-only database"))
	_, err = NewSQLiteStore(context.Background(), db)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "migrate condition store")
}

func TestSQLStore_CorruptStructure(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	mock.ExpectExec("CREATE TABLE").WillReturnResult(sqlmock.NewResult(0, 0))
	s, err := NewSQLiteStore(context.Background(), db)
	require.NoError(t, err)

	mock.ExpectQuery("SELECT uri").
		WillReturnRows(sqlmock.NewRows([]string{"uri", "type_name", "cost", "bin", "structure", "created_at"}).
			AddRow("ni:///x", "preimage-sha-256", int64(0), []byte{}, `{"type":"nope"}`, ""))

	_, err = s.Get(context.Background(), "ni:///x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "stored condition ni:///x")
}
