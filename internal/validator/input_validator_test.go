package validator

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateCollectionNameAccepts(t *testing.T) {
	v := NewInputValidator()
	assert.NoError(t, v.ValidateCollectionName("users"))
	assert.NoError(t, v.ValidateCollectionName("user_events_2024"))
}

func TestValidateCollectionNameRejectsEmpty(t *testing.T) {
	v := NewInputValidator()
	assert.Error(t, v.ValidateCollectionName(""))
}

func TestValidateCollectionNameRejectsTooShort(t *testing.T) {
	v := NewInputValidator()
	assert.Error(t, v.ValidateCollectionName("ab"))
}

func TestValidateCollectionNameRejectsTooLong(t *testing.T) {
	v := NewInputValidator()
	assert.Error(t, v.ValidateCollectionName(strings.Repeat("a", 101)))
}

func TestValidateCollectionNameRejectsLeadingDigit(t *testing.T) {
	v := NewInputValidator()
	assert.Error(t, v.ValidateCollectionName("1users"))
}

func TestValidateCollectionNameRejectsSpecialChars(t *testing.T) {
	v := NewInputValidator()
	assert.Error(t, v.ValidateCollectionName("users-table"))
	assert.Error(t, v.ValidateCollectionName("users table"))
}

func TestValidateCollectionNameRejectsSQLKeyword(t *testing.T) {
	v := NewInputValidator()
	assert.Error(t, v.ValidateCollectionName("select"))
	assert.Error(t, v.ValidateCollectionName("Table"))
}

func TestValidateCollectionNameRejectsReservedPrefix(t *testing.T) {
	v := NewInputValidator()
	assert.Error(t, v.ValidateCollectionName("__mongolite_internal"))
	assert.Error(t, v.ValidateCollectionName("sqlite_master_copy"))
	assert.Error(t, v.ValidateCollectionName("_private"))
}

func TestValidateFieldNameAccepts(t *testing.T) {
	v := NewInputValidator()
	assert.NoError(t, v.ValidateFieldName("name"))
	assert.NoError(t, v.ValidateFieldName("_internal"))
}

func TestValidateFieldNameAcceptsNumericSegment(t *testing.T) {
	v := NewInputValidator()
	assert.NoError(t, v.ValidateFieldName("0"))
	assert.NoError(t, v.ValidateFieldName("12"))
}

func TestValidateFieldNameRejectsEmpty(t *testing.T) {
	v := NewInputValidator()
	assert.Error(t, v.ValidateFieldName(""))
}

func TestValidateFieldNameRejectsSpecialChars(t *testing.T) {
	v := NewInputValidator()
	assert.Error(t, v.ValidateFieldName("na-me"))
	assert.Error(t, v.ValidateFieldName("na.me"))
}

func TestSanitizeIdentifierStripsInvalidChars(t *testing.T) {
	v := NewInputValidator()
	assert.Equal(t, "idxname", v.SanitizeIdentifier("idx-name!"))
}

func TestSanitizeIdentifierPrefixesLeadingDigit(t *testing.T) {
	v := NewInputValidator()
	assert.Equal(t, "idx_1name", v.SanitizeIdentifier("1name"))
}

func TestSanitizeIdentifierEmptyFallsBack(t *testing.T) {
	v := NewInputValidator()
	assert.Equal(t, "unnamed_index", v.SanitizeIdentifier("!!!"))
}

func TestSanitizeIdentifierTruncatesLongNames(t *testing.T) {
	v := NewInputValidator()
	long := strings.Repeat("a", 150)
	assert.Len(t, v.SanitizeIdentifier(long), 100)
}
