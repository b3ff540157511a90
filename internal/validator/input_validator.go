// Package validator guards every identifier this module interpolates
// directly into SQL DDL (table names, index names, trigger names).
// Document values and filter operands never go through here — they are
// always bound as positional parameters.
package validator

import (
	"fmt"
	"regexp"
	"strings"
)

// InputValidator validates collection and field identifiers before they
// are used to build CREATE TABLE / CREATE INDEX / trigger statements.
type InputValidator struct{}

// NewInputValidator creates a new input validator.
func NewInputValidator() *InputValidator {
	return &InputValidator{}
}

var (
	// Collection name must start with a letter, contain only letters,
	// numbers and underscores. Min 3 chars, max 100.
	collectionNameRegex = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_]{2,99}$`)

	// fieldNameRegex validates a single dotted-path segment.
	fieldNameRegex = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

	// sqlKeywords cannot be used as collection names.
	sqlKeywords = map[string]bool{
		"select": true, "insert": true, "update": true, "delete": true,
		"drop": true, "create": true, "alter": true, "table": true,
		"database": true, "schema": true, "index": true, "view": true,
		"trigger": true, "procedure": true, "function": true, "grant": true,
		"revoke": true, "union": true, "join": true, "where": true,
		"order": true, "group": true, "having": true, "limit": true,
		"offset": true, "from": true, "into": true, "values": true,
		"set": true, "begin": true, "commit": true, "rollback": true,
		"transaction": true, "primary": true, "foreign": true, "key": true,
		"references": true, "constraint": true, "unique": true, "default": true,
		"null": true, "not": true, "and": true, "or": true,
		"in": true, "exists": true, "between": true, "like": true,
		"as": true, "on": true, "using": true, "with": true,
	}

	// reservedPrefixes are forbidden as collection name prefixes; they
	// collide with this module's own system tables (__mongolite_changes__)
	// and with SQLite's own reserved namespace (sqlite_*).
	reservedPrefixes = []string{"__mongolite", "sqlite_", "_"}
)

// ValidateCollectionName validates a collection name for use as a table
// identifier.
func (v *InputValidator) ValidateCollectionName(name string) error {
	if name == "" {
		return fmt.Errorf("collection name cannot be empty")
	}
	if len(name) < 3 {
		return fmt.Errorf("collection name must be at least 3 characters long")
	}
	if len(name) > 100 {
		return fmt.Errorf("collection name must not exceed 100 characters")
	}
	if !collectionNameRegex.MatchString(name) {
		return fmt.Errorf("collection name must start with a letter and contain only letters, numbers, and underscores")
	}

	lowerName := strings.ToLower(name)
	if sqlKeywords[lowerName] {
		return fmt.Errorf("collection name %q is a reserved SQL keyword", name)
	}
	for _, prefix := range reservedPrefixes {
		if strings.HasPrefix(lowerName, prefix) {
			return fmt.Errorf("collection name cannot start with reserved prefix %q", prefix)
		}
	}
	return nil
}

// ValidateFieldName validates a single dotted-path segment (the path
// codec splits on "." and validates each segment independently).
func (v *InputValidator) ValidateFieldName(name string) error {
	if name == "" {
		return fmt.Errorf("field name cannot be empty")
	}
	if len(name) > 100 {
		return fmt.Errorf("field name must not exceed 100 characters")
	}
	// Purely-numeric segments are legal (array index or object key) and
	// are resolved leniently by json_extract; see §4.A/§9.
	if isDigits(name) {
		return nil
	}
	if !fieldNameRegex.MatchString(name) {
		return fmt.Errorf("field name must start with a letter or underscore and contain only letters, numbers, and underscores")
	}
	return nil
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// SanitizeIdentifier makes a best-effort safe identifier out of an index
// name. Applied to every index name before it goes into CREATE INDEX,
// whether the caller supplied it or it was derived from the index keys;
// never applied to collection names, which must pass
// ValidateCollectionName outright.
func (v *InputValidator) SanitizeIdentifier(identifier string) string {
	sanitized := regexp.MustCompile(`[^a-zA-Z0-9_]`).ReplaceAllString(identifier, "")
	if len(sanitized) > 0 && !regexp.MustCompile(`^[a-zA-Z_]`).MatchString(sanitized) {
		sanitized = "idx_" + sanitized
	}
	if len(sanitized) > 100 {
		sanitized = sanitized[:100]
	}
	if sanitized == "" {
		sanitized = "unnamed_index"
	}
	return sanitized
}
