package translate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToJSONPath(t *testing.T) {
	jp, err := ToJSONPath("address.city")
	require.NoError(t, err)
	assert.Equal(t, "$.address.city", jp)
}

func TestToJSONPathNumericSegment(t *testing.T) {
	jp, err := ToJSONPath("tags.0")
	require.NoError(t, err)
	assert.Equal(t, "$.tags.0", jp)
}

func TestToJSONPathRejectsBadSegment(t *testing.T) {
	_, err := ToJSONPath("a..b")
	assert.Error(t, err)
}

func TestIsIDPath(t *testing.T) {
	assert.True(t, IsIDPath("_id"))
	assert.False(t, IsIDPath("id"))
}

func TestJsonExtractSpecialCasesID(t *testing.T) {
	expr, err := jsonExtract("_id")
	require.NoError(t, err)
	assert.Equal(t, "_id", expr)

	expr, err = jsonExtract("age")
	require.NoError(t, err)
	assert.Equal(t, "json_extract(data, '$.age')", expr)
}

func TestNormalizeValue(t *testing.T) {
	assert.Equal(t, int64(1), normalizeValue(true))
	assert.Equal(t, int64(0), normalizeValue(false))
	assert.Equal(t, "x", normalizeValue("x"))
}
