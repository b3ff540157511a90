package sqlengine

import (
	"context"
	"fmt"
	"strings"

	"github.com/madhouselabs/mongolite/internal/translate"
)

// IndexSpec describes an index a collection should have (§4.G). Keys
// preserves field order and direction the way Mongo's index spec does:
// 1 for ascending, -1 for descending.
type IndexSpec struct {
	Name   string
	Keys   []IndexKey
	Unique bool
}

type IndexKey struct {
	Path string
	Dir  int // 1 or -1
}

// CreateIndex builds a SQLite expression index over one or more JSON
// paths (§4.G). _id is special-cased to the real column, matching how
// the filter compiler treats it.
func (e *Engine) CreateIndex(ctx context.Context, table string, spec IndexSpec) (string, error) {
	if err := e.validator.ValidateCollectionName(table); err != nil {
		return "", err
	}
	if len(spec.Keys) == 0 {
		return "", fmt.Errorf("sqlengine: index %q has no keys", spec.Name)
	}

	name := spec.Name
	if name == "" {
		name = defaultIndexName(table, spec.Keys)
	}
	name = e.validator.SanitizeIdentifier(name)

	columns := make([]string, 0, len(spec.Keys))
	for _, k := range spec.Keys {
		expr, err := indexExpr(k.Path)
		if err != nil {
			return "", err
		}
		dir := "ASC"
		if k.Dir < 0 {
			dir = "DESC"
		}
		columns = append(columns, fmt.Sprintf("%s %s", expr, dir))
	}

	unique := ""
	if spec.Unique {
		unique = "UNIQUE "
	}

	ddl := fmt.Sprintf(`CREATE %sINDEX IF NOT EXISTS %s ON "%s" (%s)`, unique, name, table, strings.Join(columns, ", "))
	if _, err := e.db.ExecContext(ctx, ddl); err != nil {
		return "", fmt.Errorf("sqlengine: create index %s: %w", name, err)
	}
	return name, nil
}

func (e *Engine) DropIndex(ctx context.Context, name string) error {
	if _, err := e.db.ExecContext(ctx, fmt.Sprintf("DROP INDEX IF EXISTS %s", name)); err != nil {
		return fmt.Errorf("sqlengine: drop index %s: %w", name, err)
	}
	return nil
}

// ListIndexes reports every index SQLite currently holds for table,
// read back from sqlite_master the way the teacher's GetIndexes reads
// pg_indexes — here there's no catalogue column for "which JSON path",
// so this exposes the raw index definition SQL alongside the name.
func (e *Engine) ListIndexes(ctx context.Context, table string) ([]IndexInfo, error) {
	rows, err := e.db.QueryContext(ctx, `
		SELECT name, COALESCE(sql, '') FROM sqlite_master
		WHERE type = 'index' AND tbl_name = ? AND name NOT LIKE 'sqlite_autoindex_%'
	`, table)
	if err != nil {
		return nil, fmt.Errorf("sqlengine: list indexes on %s: %w", table, err)
	}
	defer rows.Close()

	var infos []IndexInfo
	for rows.Next() {
		var name, def string
		if err := rows.Scan(&name, &def); err != nil {
			return nil, err
		}
		infos = append(infos, IndexInfo{Name: name, Definition: def, Unique: strings.Contains(strings.ToUpper(def), "UNIQUE")})
	}
	return infos, rows.Err()
}

type IndexInfo struct {
	Name       string
	Definition string
	Unique     bool
}

func indexExpr(path string) (string, error) {
	if translate.IsIDPath(path) {
		return "_id", nil
	}
	jp, err := translate.ToJSONPath(path)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("json_extract(data, '%s')", jp), nil
}

func defaultIndexName(table string, keys []IndexKey) string {
	parts := make([]string, 0, len(keys)+1)
	parts = append(parts, "idx", table)
	for _, k := range keys {
		dir := "asc"
		if k.Dir < 0 {
			dir = "desc"
		}
		parts = append(parts, strings.ReplaceAll(k.Path, ".", "_")+"_"+dir)
	}
	return strings.Join(parts, "_")
}
