// Package translate folds document filter expressions, update
// expressions and projection specs into SQLite json1 SQL fragments. It
// has no knowledge of *sql.DB — callers assemble the fragments it
// returns into full statements and execute them.
package translate

import (
	"strings"

	"github.com/madhouselabs/mongolite/internal/validator"
)

var idValidator = validator.NewInputValidator()

// ToJSONPath converts a dotted document path ("a.b.c") into the
// json_extract pointer expression ("$.a.b.c"), per §4.A. Every segment
// is validated the same way a collection field name is; a path that
// fails validation is rejected rather than interpolated into SQL.
//
// Numeric segments are emitted as plain property accessors rather than
// array-index accessors ("$.a.0" not "$.a[0]") because the compiler
// cannot always know the parent's runtime shape; SQLite's json1
// functions resolve both forms identically, so this is a safe default
// (§4.A, §9).
func ToJSONPath(path string) (string, error) {
	segments := strings.Split(path, ".")
	for _, seg := range segments {
		if err := idValidator.ValidateFieldName(seg); err != nil {
			return "", err
		}
	}
	return "$." + strings.Join(segments, "."), nil
}

// IsIDPath reports whether a path refers to the document identifier,
// which is special-cased to the indexed _id column rather than
// json_extract(data, '$._id') (§4.B).
func IsIDPath(path string) bool {
	return path == "_id"
}

// jsonExtract returns the SQL expression that reads path out of the
// data column, special-casing _id to the real column.
func jsonExtract(path string) (string, error) {
	if IsIDPath(path) {
		return "_id", nil
	}
	jp, err := ToJSONPath(path)
	if err != nil {
		return "", err
	}
	return "json_extract(data, '" + jp + "')", nil
}

// normalizeValue prepares a document value for positional binding.
// Booleans are coerced to 0/1: SQLite's json1 functions and column
// comparisons both treat JSON booleans as the integers 0/1, and some
// engines embedded this way have no native boolean type at all, so
// binding int64 here keeps comparisons consistent regardless of driver
// (§4.A).
func normalizeValue(v interface{}) interface{} {
	switch b := v.(type) {
	case bool:
		if b {
			return int64(1)
		}
		return int64(0)
	default:
		return v
	}
}
