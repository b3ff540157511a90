package mongolite

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedCursorFixture(t *testing.T, col *Collection) {
	t.Helper()
	ctx := context.Background()
	seed := []Document{
		{"name": "ada", "age": float64(30)},
		{"name": "bob", "age": float64(45)},
		{"name": "cid", "age": float64(20)},
		{"name": "dee", "age": float64(45)},
	}
	for _, d := range seed {
		_, err := col.InsertOne(ctx, d)
		require.NoError(t, err)
	}
}

func TestCursorSortAscending(t *testing.T) {
	ctx := context.Background()
	col := newTestCollection(t, "users")
	seedCursorFixture(t, col)

	docs, err := col.Find(Document{}).Sort("age", 1).ToArray(ctx)
	require.NoError(t, err)
	require.Len(t, docs, 4)
	ages := []float64{
		docs[0]["age"].(float64), docs[1]["age"].(float64),
		docs[2]["age"].(float64), docs[3]["age"].(float64),
	}
	assert.Equal(t, []float64{20, 30, 45, 45}, ages)
}

func TestCursorSortDescending(t *testing.T) {
	ctx := context.Background()
	col := newTestCollection(t, "users")
	seedCursorFixture(t, col)

	docs, err := col.Find(Document{}).Sort("age", -1).ToArray(ctx)
	require.NoError(t, err)
	assert.Equal(t, float64(45), docs[0]["age"])
}

func TestCursorLimit(t *testing.T) {
	ctx := context.Background()
	col := newTestCollection(t, "users")
	seedCursorFixture(t, col)

	docs, err := col.Find(Document{}).Sort("age", 1).Limit(2).ToArray(ctx)
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, float64(20), docs[0]["age"])
	assert.Equal(t, float64(30), docs[1]["age"])
}

func TestCursorSkipWithoutLimit(t *testing.T) {
	ctx := context.Background()
	col := newTestCollection(t, "users")
	seedCursorFixture(t, col)

	docs, err := col.Find(Document{}).Sort("age", 1).Skip(3).ToArray(ctx)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, float64(45), docs[0]["age"])
}

func TestCursorSkipAndLimit(t *testing.T) {
	ctx := context.Background()
	col := newTestCollection(t, "users")
	seedCursorFixture(t, col)

	docs, err := col.Find(Document{}).Sort("age", 1).Skip(1).Limit(2).ToArray(ctx)
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, float64(30), docs[0]["age"])
	assert.Equal(t, float64(45), docs[1]["age"])
}

func TestCursorProjectInclusion(t *testing.T) {
	ctx := context.Background()
	col := newTestCollection(t, "users")
	seedCursorFixture(t, col)

	docs, err := col.Find(Document{"name": "ada"}).Project(Document{"name": 1, "_id": 0}).ToArray(ctx)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, Document{"name": "ada"}, docs[0])
}

func TestCursorForEachStopsOnError(t *testing.T) {
	ctx := context.Background()
	col := newTestCollection(t, "users")
	seedCursorFixture(t, col)

	var seen int
	stopErr := assert.AnError
	err := col.Find(Document{}).ForEach(ctx, func(Document) error {
		seen++
		if seen == 2 {
			return stopErr
		}
		return nil
	})
	assert.ErrorIs(t, err, stopErr)
	assert.Equal(t, 2, seen)
}

func TestCursorCountIgnoresChainedOptions(t *testing.T) {
	ctx := context.Background()
	col := newTestCollection(t, "users")
	seedCursorFixture(t, col)

	n, err := col.Find(Document{}).Limit(1).Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)
}
