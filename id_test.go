package mongolite

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewObjectIDIsValidAndUnique(t *testing.T) {
	a := NewObjectID()
	b := NewObjectID()
	assert.NotEqual(t, a, b)
	assert.NoError(t, ValidateObjectID(a))
	assert.Len(t, a, 24)
}

func TestValidateObjectIDRejectsMalformed(t *testing.T) {
	assert.Error(t, ValidateObjectID("not-an-object-id"))
	assert.Error(t, ValidateObjectID(""))
}
