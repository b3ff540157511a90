package sqlengine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTriggersRecordInsertUpdateDelete(t *testing.T) {
	e := openTestEngine(t)
	ctx := context.Background()
	require.NoError(t, e.EnsureCollection(ctx, "users"))

	seq0, err := e.CurrentSeq(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(0), seq0)

	_, err = e.db.ExecContext(ctx, `INSERT INTO users (_id, data) VALUES ('1', '{"name":"ada"}')`)
	require.NoError(t, err)
	_, err = e.db.ExecContext(ctx, `UPDATE users SET data = '{"name":"ada","age":30}' WHERE _id = '1'`)
	require.NoError(t, err)
	_, err = e.db.ExecContext(ctx, `DELETE FROM users WHERE _id = '1'`)
	require.NoError(t, err)

	events, err := e.ChangesSince(ctx, "", 0, 10)
	require.NoError(t, err)
	require.Len(t, events, 3)

	require.Equal(t, "insert", events[0].Operation)
	require.Equal(t, "1", events[0].DocumentID)
	require.NotNil(t, events[0].FullDocument)

	require.Equal(t, "update", events[1].Operation)
	require.NotNil(t, events[1].FullDocument)
	require.NotNil(t, events[1].BeforeDocument)
	require.Equal(t, `{"name":"ada"}`, *events[1].BeforeDocument)

	require.Equal(t, "delete", events[2].Operation)
	require.Nil(t, events[2].FullDocument)
	require.NotNil(t, events[2].BeforeDocument)
	require.Equal(t, `{"name":"ada","age":30}`, *events[2].BeforeDocument)

	seq3, err := e.CurrentSeq(ctx)
	require.NoError(t, err)
	require.Equal(t, events[2].Seq, seq3)
}

func TestChangesSinceFiltersByCollectionAndSeq(t *testing.T) {
	e := openTestEngine(t)
	ctx := context.Background()
	require.NoError(t, e.EnsureCollection(ctx, "users"))
	require.NoError(t, e.EnsureCollection(ctx, "orders"))

	_, err := e.db.ExecContext(ctx, `INSERT INTO users (_id, data) VALUES ('1', '{}')`)
	require.NoError(t, err)
	_, err = e.db.ExecContext(ctx, `INSERT INTO orders (_id, data) VALUES ('2', '{}')`)
	require.NoError(t, err)

	events, err := e.ChangesSince(ctx, "orders", 0, 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Equal(t, "orders", events[0].Collection)

	all, err := e.ChangesSince(ctx, "", 0, 10)
	require.NoError(t, err)
	require.Len(t, all, 2)

	afterFirst, err := e.ChangesSince(ctx, "", all[0].Seq, 10)
	require.NoError(t, err)
	require.Len(t, afterFirst, 1)
}

func TestRecordUpdateDescriptionBackfillsLatestUpdateRow(t *testing.T) {
	e := openTestEngine(t)
	ctx := context.Background()
	require.NoError(t, e.EnsureCollection(ctx, "users"))

	_, err := e.db.ExecContext(ctx, `INSERT INTO users (_id, data) VALUES ('1', '{}')`)
	require.NoError(t, err)
	_, err = e.db.ExecContext(ctx, `UPDATE users SET data = '{"age":1}' WHERE _id = '1'`)
	require.NoError(t, err)

	require.NoError(t, e.RecordUpdateDescription(ctx, "users", "1", `{"updatedFields":{"age":1}}`))

	events, err := e.ChangesSince(ctx, "users", 0, 10)
	require.NoError(t, err)
	require.Len(t, events, 2)
	require.NotNil(t, events[1].UpdateDescription)
	require.Equal(t, `{"updatedFields":{"age":1}}`, *events[1].UpdateDescription)
}

func TestCompactChangeLogDeletesOlderRows(t *testing.T) {
	e := openTestEngine(t)
	ctx := context.Background()
	require.NoError(t, e.EnsureCollection(ctx, "users"))

	for i := 0; i < 3; i++ {
		_, err := e.db.ExecContext(ctx, `INSERT INTO users (_id, data) VALUES (?, '{}')`, string(rune('a'+i)))
		require.NoError(t, err)
	}

	events, err := e.ChangesSince(ctx, "", 0, 10)
	require.NoError(t, err)
	require.Len(t, events, 3)

	require.NoError(t, e.CompactChangeLog(ctx, events[2].Seq))

	remaining, err := e.ChangesSince(ctx, "", 0, 10)
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	require.Equal(t, events[2].Seq, remaining[0].Seq)
}

func TestCompactChangeLogNoopOnZero(t *testing.T) {
	e := openTestEngine(t)
	ctx := context.Background()
	require.NoError(t, e.EnsureCollection(ctx, "users"))
	_, err := e.db.ExecContext(ctx, `INSERT INTO users (_id, data) VALUES ('1', '{}')`)
	require.NoError(t, err)

	require.NoError(t, e.CompactChangeLog(ctx, 0))

	events, err := e.ChangesSince(ctx, "", 0, 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
}
