package mongolite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/madhouselabs/mongolite/internal/translate"
)

// Cursor is a lazy, single-pass iterator over a Find result. Sort, Skip,
// Limit and Project are chainable and must be called before the first
// call to Next/ToArray/ForEach/Count, which is when the query actually
// runs against the database (§4.E).
type Cursor struct {
	collection *Collection
	filter     Document
	sort       []sortKey
	skip       int64
	limit      int64
	projection Document

	rows    *sql.Rows
	started bool
	closed  bool
	current Document
	err     error
}

type sortKey struct {
	path string
	dir  int
}

func newCursor(c *Collection, filter Document) *Cursor {
	return &Cursor{collection: c, filter: filter}
}

// Sort orders results by path, ascending for dir 1 or descending for
// dir -1. Calling Sort more than once builds a compound sort, each key
// breaking ties left by the one before it.
func (cur *Cursor) Sort(path string, dir int) *Cursor {
	cur.sort = append(cur.sort, sortKey{path: path, dir: dir})
	return cur
}

func (cur *Cursor) Skip(n int64) *Cursor {
	cur.skip = n
	return cur
}

func (cur *Cursor) Limit(n int64) *Cursor {
	cur.limit = n
	return cur
}

// Project narrows or reshapes each returned document (§4.D).
func (cur *Cursor) Project(projection Document) *Cursor {
	cur.projection = projection
	return cur
}

func (cur *Cursor) execute(ctx context.Context) error {
	where, args, err := translate.CompileFilter(cur.filter)
	if err != nil {
		return newValidationError("filter", err)
	}

	query := fmt.Sprintf(`SELECT _id, data FROM "%s" WHERE %s`, cur.collection.name, where)

	if len(cur.sort) > 0 {
		parts := make([]string, len(cur.sort))
		for i, s := range cur.sort {
			expr, err := sortExpr(s.path)
			if err != nil {
				return newValidationError("sort", err)
			}
			dir := "ASC"
			if s.dir < 0 {
				dir = "DESC"
			}
			parts[i] = fmt.Sprintf("%s %s", expr, dir)
		}
		query += " ORDER BY " + strings.Join(parts, ", ")
	}

	switch {
	case cur.limit > 0 && cur.skip > 0:
		query += fmt.Sprintf(" LIMIT %d OFFSET %d", cur.limit, cur.skip)
	case cur.limit > 0:
		query += fmt.Sprintf(" LIMIT %d", cur.limit)
	case cur.skip > 0:
		// SQLite requires a LIMIT before OFFSET; -1 means unbounded.
		query += fmt.Sprintf(" LIMIT -1 OFFSET %d", cur.skip)
	}

	rows, err := cur.collection.engine.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return wrapEngineErr("find", err)
	}
	cur.rows = rows
	cur.started = true
	return nil
}

func sortExpr(path string) (string, error) {
	if translate.IsIDPath(path) {
		return "_id", nil
	}
	jp, err := translate.ToJSONPath(path)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("json_extract(data, '%s')", jp), nil
}

// Next advances the cursor. It returns false once the result set is
// exhausted or an error occurred; call Err to tell the two apart.
func (cur *Cursor) Next(ctx context.Context) bool {
	if cur.closed {
		return false
	}
	if !cur.started {
		if err := cur.execute(ctx); err != nil {
			cur.err = err
			return false
		}
	}
	if !cur.rows.Next() {
		cur.err = cur.rows.Err()
		cur.Close()
		return false
	}
	var id, data string
	if err := cur.rows.Scan(&id, &data); err != nil {
		cur.err = wrapEngineErr("find", err)
		cur.Close()
		return false
	}
	doc, err := decodeDocument(id, data)
	if err != nil {
		cur.err = err
		cur.Close()
		return false
	}
	if cur.projection != nil {
		doc, err = translate.ApplyProjection(doc, cur.projection)
		if err != nil {
			cur.err = newValidationError("projection", err)
			cur.Close()
			return false
		}
	}
	cur.current = doc
	return true
}

// Decode returns the document most recently advanced to by Next.
func (cur *Cursor) Decode() Document { return cur.current }

// Err returns the first error encountered by Next, if any.
func (cur *Cursor) Err() error { return cur.err }

func (cur *Cursor) Close() error {
	if cur.closed {
		return nil
	}
	cur.closed = true
	if cur.rows != nil {
		return cur.rows.Close()
	}
	return nil
}

// ToArray drains the cursor into a slice and closes it.
func (cur *Cursor) ToArray(ctx context.Context) ([]Document, error) {
	defer cur.Close()
	var out []Document
	for cur.Next(ctx) {
		out = append(out, cur.Decode())
	}
	if err := cur.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// ForEach calls fn for every document in order, stopping early if fn
// returns an error.
func (cur *Cursor) ForEach(ctx context.Context, fn func(Document) error) error {
	defer cur.Close()
	for cur.Next(ctx) {
		if err := fn(cur.Decode()); err != nil {
			return err
		}
	}
	return cur.Err()
}

// Count reports how many documents match the cursor's filter, ignoring
// any Sort/Skip/Limit/Project already chained onto it.
func (cur *Cursor) Count(ctx context.Context) (int64, error) {
	return cur.collection.CountDocuments(ctx, cur.filter)
}
