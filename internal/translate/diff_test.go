package translate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiffDocumentsTopLevelChange(t *testing.T) {
	updated, removed, err := DiffDocuments(`{"name":"ada","age":30}`, `{"name":"ada","age":31}`)
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{"age": float64(31)}, updated)
	assert.Empty(t, removed)
}

func TestDiffDocumentsAddedField(t *testing.T) {
	updated, removed, err := DiffDocuments(`{"name":"ada"}`, `{"name":"ada","age":31}`)
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{"age": float64(31)}, updated)
	assert.Empty(t, removed)
}

func TestDiffDocumentsRemovedField(t *testing.T) {
	updated, removed, err := DiffDocuments(`{"name":"ada","age":31}`, `{"name":"ada"}`)
	require.NoError(t, err)
	assert.Empty(t, updated)
	assert.Equal(t, []string{"age"}, removed)
}

func TestDiffDocumentsNestedOneLevel(t *testing.T) {
	updated, removed, err := DiffDocuments(
		`{"address":{"city":"NYC","zip":"10001"}}`,
		`{"address":{"city":"Boston","zip":"10001"}}`,
	)
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{"address.city": "Boston"}, updated)
	assert.Empty(t, removed)
}

func TestDiffDocumentsNestedFieldRemoved(t *testing.T) {
	updated, removed, err := DiffDocuments(
		`{"address":{"city":"NYC","zip":"10001"}}`,
		`{"address":{"city":"NYC"}}`,
	)
	require.NoError(t, err)
	assert.Empty(t, updated)
	assert.Equal(t, []string{"address.zip"}, removed)
}

func TestDiffDocumentsNoChange(t *testing.T) {
	updated, removed, err := DiffDocuments(`{"name":"ada"}`, `{"name":"ada"}`)
	require.NoError(t, err)
	assert.Empty(t, updated)
	assert.Empty(t, removed)
}

func TestDiffDocumentsReplacedObjectWithScalar(t *testing.T) {
	updated, removed, err := DiffDocuments(`{"address":{"city":"NYC"}}`, `{"address":"remote"}`)
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{"address": "remote"}, updated)
	assert.Empty(t, removed)
}
