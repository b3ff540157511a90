package sqlengine

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var errIntentional = errors.New("intentional failure")

func openTestEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := Open(context.Background(), ":memory:", 5*time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { e.Close() })
	return e
}

func TestOpenBootstrapsChangeLog(t *testing.T) {
	e := openTestEngine(t)
	require.True(t, e.changeLogReady)
	require.NoError(t, e.Ping(context.Background()))
}

func TestEnsureCollectionCreatesTableAndIsIdempotent(t *testing.T) {
	e := openTestEngine(t)
	ctx := context.Background()

	require.NoError(t, e.EnsureCollection(ctx, "users"))
	require.NoError(t, e.EnsureCollection(ctx, "users")) // second call is a no-op

	_, err := e.db.ExecContext(ctx, `INSERT INTO users (_id, data) VALUES ('1', '{"name":"ada"}')`)
	require.NoError(t, err)

	var name string
	err = e.db.QueryRowContext(ctx, `SELECT json_extract(data, '$.name') FROM users WHERE _id = '1'`).Scan(&name)
	require.NoError(t, err)
	require.Equal(t, "ada", name)
}

func TestEnsureCollectionRejectsBadName(t *testing.T) {
	e := openTestEngine(t)
	err := e.EnsureCollection(context.Background(), "1bad")
	require.Error(t, err)
}

func TestListCollectionsExcludesSystemTables(t *testing.T) {
	e := openTestEngine(t)
	ctx := context.Background()
	require.NoError(t, e.EnsureCollection(ctx, "users"))
	require.NoError(t, e.EnsureCollection(ctx, "orders"))

	names, err := e.ListCollections(ctx)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"users", "orders"}, names)
}

func TestDropCollectionRemovesTable(t *testing.T) {
	e := openTestEngine(t)
	ctx := context.Background()
	require.NoError(t, e.EnsureCollection(ctx, "users"))
	require.NoError(t, e.DropCollection(ctx, "users"))

	names, err := e.ListCollections(ctx)
	require.NoError(t, err)
	require.NotContains(t, names, "users")

	// Recreating after a drop must work, proving the bootstrap cache was cleared.
	require.NoError(t, e.EnsureCollection(ctx, "users"))
}

func TestTxCommitsOnSuccess(t *testing.T) {
	e := openTestEngine(t)
	ctx := context.Background()
	require.NoError(t, e.EnsureCollection(ctx, "users"))

	err := e.Tx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `INSERT INTO users (_id, data) VALUES ('1', '{}')`)
		return err
	})
	require.NoError(t, err)

	var count int
	require.NoError(t, e.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&count))
	require.Equal(t, 1, count)
}

func TestTxRollsBackOnError(t *testing.T) {
	e := openTestEngine(t)
	ctx := context.Background()
	require.NoError(t, e.EnsureCollection(ctx, "users"))

	err := e.Tx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `INSERT INTO users (_id, data) VALUES ('1', '{}')`); err != nil {
			return err
		}
		return errIntentional
	})
	require.ErrorIs(t, err, errIntentional)

	var count int
	require.NoError(t, e.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&count))
	require.Equal(t, 0, count)
}
