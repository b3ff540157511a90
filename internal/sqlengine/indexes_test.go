package sqlengine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCreateIndexOnJSONPath(t *testing.T) {
	e := openTestEngine(t)
	ctx := context.Background()
	require.NoError(t, e.EnsureCollection(ctx, "users"))

	name, err := e.CreateIndex(ctx, "users", IndexSpec{
		Keys: []IndexKey{{Path: "age", Dir: 1}},
	})
	require.NoError(t, err)
	require.Equal(t, "idx_users_age_asc", name)

	infos, err := e.ListIndexes(ctx, "users")
	require.NoError(t, err)
	require.Len(t, infos, 1)
	require.Equal(t, "idx_users_age_asc", infos[0].Name)
	require.False(t, infos[0].Unique)
	require.Contains(t, infos[0].Definition, "json_extract(data, '$.age')")
}

func TestCreateIndexOnIDUsesRealColumn(t *testing.T) {
	e := openTestEngine(t)
	ctx := context.Background()
	require.NoError(t, e.EnsureCollection(ctx, "users"))

	_, err := e.CreateIndex(ctx, "users", IndexSpec{Keys: []IndexKey{{Path: "_id", Dir: 1}}})
	require.NoError(t, err)

	infos, err := e.ListIndexes(ctx, "users")
	require.NoError(t, err)
	require.Contains(t, infos[0].Definition, "(_id ASC)")
}

func TestCreateUniqueIndex(t *testing.T) {
	e := openTestEngine(t)
	ctx := context.Background()
	require.NoError(t, e.EnsureCollection(ctx, "users"))

	name, err := e.CreateIndex(ctx, "users", IndexSpec{
		Name:   "uniq_email",
		Keys:   []IndexKey{{Path: "email", Dir: 1}},
		Unique: true,
	})
	require.NoError(t, err)
	require.Equal(t, "uniq_email", name)

	_, err = e.db.ExecContext(ctx, `INSERT INTO users (_id, data) VALUES ('1', '{"email":"a@x.com"}')`)
	require.NoError(t, err)
	_, err = e.db.ExecContext(ctx, `INSERT INTO users (_id, data) VALUES ('2', '{"email":"a@x.com"}')`)
	require.Error(t, err)

	infos, err := e.ListIndexes(ctx, "users")
	require.NoError(t, err)
	require.True(t, infos[0].Unique)
}

func TestCreateIndexCompoundKeys(t *testing.T) {
	e := openTestEngine(t)
	ctx := context.Background()
	require.NoError(t, e.EnsureCollection(ctx, "users"))

	name, err := e.CreateIndex(ctx, "users", IndexSpec{
		Keys: []IndexKey{{Path: "lastName", Dir: 1}, {Path: "age", Dir: -1}},
	})
	require.NoError(t, err)
	require.Equal(t, "idx_users_lastName_asc_age_desc", name)
}

func TestCreateIndexRejectsNoKeys(t *testing.T) {
	e := openTestEngine(t)
	ctx := context.Background()
	require.NoError(t, e.EnsureCollection(ctx, "users"))

	_, err := e.CreateIndex(ctx, "users", IndexSpec{})
	require.Error(t, err)
}

func TestDropIndexRemovesIt(t *testing.T) {
	e := openTestEngine(t)
	ctx := context.Background()
	require.NoError(t, e.EnsureCollection(ctx, "users"))

	name, err := e.CreateIndex(ctx, "users", IndexSpec{Keys: []IndexKey{{Path: "age", Dir: 1}}})
	require.NoError(t, err)
	require.NoError(t, e.DropIndex(ctx, name))

	infos, err := e.ListIndexes(ctx, "users")
	require.NoError(t, err)
	require.Empty(t, infos)
}
