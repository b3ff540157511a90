package mongolite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/madhouselabs/mongolite/internal/sqlengine"
	"github.com/madhouselabs/mongolite/internal/translate"
)

// Collection is a handle to one document table. All of its methods are
// safe for concurrent use (§4.F, §5).
type Collection struct {
	name          string
	engine        *sqlengine.Engine
	streams       *streamManager
	queueCapacity int
}

func (c *Collection) Name() string { return c.name }

// UpdateResult reports how many documents an update matched and
// actually modified, plus the id of a document synthesised by an
// upsert (§4.C, §4.F).
type UpdateResult struct {
	MatchedCount  int64
	ModifiedCount int64
	UpsertedID    string
}

// DeleteResult reports how many documents a delete removed.
type DeleteResult struct {
	DeletedCount int64
}

// UpdateOptions configures UpdateOne/UpdateMany.
type UpdateOptions struct {
	// Upsert, when true and no document matches the filter, synthesises
	// one from the filter's equality constraints plus the update's
	// $set/replacement body and inserts it (§4.C).
	Upsert bool
}

func firstUpdateOptions(opts []UpdateOptions) UpdateOptions {
	if len(opts) == 0 {
		return UpdateOptions{}
	}
	return opts[0]
}

// InsertOne inserts doc, assigning it a fresh ObjectID for _id unless
// the caller already supplied a non-empty string _id (§4.F).
func (c *Collection) InsertOne(ctx context.Context, doc Document) (string, error) {
	id := idOrNew(doc)
	body, err := encodeDocument(doc)
	if err != nil {
		return "", newValidationError("", err)
	}

	_, err = c.engine.DB().ExecContext(ctx, fmt.Sprintf(`INSERT INTO "%s" (_id, data) VALUES (?, ?)`, c.name), id, body)
	if err != nil {
		if isUniqueViolation(err) {
			return "", &ConstraintError{Collection: c.name, Err: ErrDuplicateKey}
		}
		return "", wrapEngineErr("insert one", err)
	}
	return id, nil
}

// InsertMany inserts every document in docs inside a single
// transaction: if any insert fails, none are committed (§4.F).
func (c *Collection) InsertMany(ctx context.Context, docs []Document) ([]string, error) {
	ids := make([]string, len(docs))
	err := c.engine.Tx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(`INSERT INTO "%s" (_id, data) VALUES (?, ?)`, c.name))
		if err != nil {
			return err
		}
		defer stmt.Close()

		for i, doc := range docs {
			id := idOrNew(doc)
			body, err := encodeDocument(doc)
			if err != nil {
				return newValidationError("", err)
			}
			if _, err := stmt.ExecContext(ctx, id, body); err != nil {
				if isUniqueViolation(err) {
					return &ConstraintError{Collection: c.name, Err: ErrDuplicateKey}
				}
				return err
			}
			ids[i] = id
		}
		return nil
	})
	if err != nil {
		var ce *ConstraintError
		var ve *ValidationError
		if errors.As(err, &ce) || errors.As(err, &ve) {
			return nil, err
		}
		return nil, wrapEngineErr("insert many", err)
	}
	return ids, nil
}

func idOrNew(doc Document) string {
	if id, ok := doc["_id"].(string); ok && id != "" {
		return id
	}
	return NewObjectID()
}

// FindOne returns the first document matching filter, or ErrNoDocuments
// if none match.
func (c *Collection) FindOne(ctx context.Context, filter Document) (Document, error) {
	where, args, err := translate.CompileFilter(filter)
	if err != nil {
		return nil, newValidationError("filter", err)
	}
	query := fmt.Sprintf(`SELECT _id, data FROM "%s" WHERE %s LIMIT 1`, c.name, where)
	var id, data string
	err = c.engine.DB().QueryRowContext(ctx, query, args...).Scan(&id, &data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNoDocuments
		}
		return nil, wrapEngineErr("find one", err)
	}
	return decodeDocument(id, data)
}

// Find returns a Cursor over every document matching filter. The query
// itself isn't run until the cursor is iterated, so Sort/Skip/Limit/
// Project can still be chained onto the result (§4.E).
func (c *Collection) Find(filter Document) *Cursor {
	return newCursor(c, filter)
}

func (c *Collection) findOneID(ctx context.Context, where string, args []interface{}) (string, bool, error) {
	query := fmt.Sprintf(`SELECT _id FROM "%s" WHERE %s LIMIT 1`, c.name, where)
	var id string
	err := c.engine.DB().QueryRowContext(ctx, query, args...).Scan(&id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, wrapEngineErr("find matching row", err)
	}
	return id, true, nil
}

// matchedRow is one row identified by a filter before a mutation is
// applied to it, carrying the pre-mutation body so the update path can
// diff before/after for the change stream's updateDescription (§4.H).
type matchedRow struct {
	id   string
	data string
}

func (c *Collection) selectMatched(ctx context.Context, where string, args []interface{}) ([]matchedRow, error) {
	rows, err := c.engine.DB().QueryContext(ctx, fmt.Sprintf(`SELECT _id, data FROM "%s" WHERE %s`, c.name, where), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var matched []matchedRow
	for rows.Next() {
		var r matchedRow
		if err := rows.Scan(&r.id, &r.data); err != nil {
			return nil, err
		}
		matched = append(matched, r)
	}
	return matched, rows.Err()
}

func idsOf(rows []matchedRow) []string {
	ids := make([]string, len(rows))
	for i, r := range rows {
		ids[i] = r.id
	}
	return ids
}

func bodiesByID(rows []matchedRow) map[string]string {
	m := make(map[string]string, len(rows))
	for _, r := range rows {
		m[r.id] = r.data
	}
	return m
}

func idPlaceholders(ids []string) (string, []interface{}) {
	parts := make([]string, len(ids))
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		parts[i] = "?"
		args[i] = id
	}
	return strings.Join(parts, ", "), args
}

// recordUpdateDescriptions diffs each id's before/after body and
// backfills the change log's update_description column for any row
// whose body actually changed (§4.H).
func (c *Collection) recordUpdateDescriptions(ctx context.Context, ids []string, before map[string]string) error {
	if len(ids) == 0 {
		return nil
	}
	idExpr, idArgs := idPlaceholders(ids)
	// The post-update bodies are read in full and the rows closed before
	// any backfill runs: the engine holds a single connection, so an Exec
	// issued while these rows are open would wait on it forever.
	after, err := c.selectMatched(ctx, "_id IN ("+idExpr+")", idArgs)
	if err != nil {
		return err
	}

	for _, r := range after {
		desc, err := buildUpdateDescriptionJSON(before[r.id], r.data)
		if err != nil {
			return err
		}
		if desc == "" {
			continue
		}
		if err := c.engine.RecordUpdateDescription(ctx, c.name, r.id, desc); err != nil {
			return err
		}
	}
	return nil
}

func buildUpdateDescriptionJSON(beforeBody, afterBody string) (string, error) {
	updated, removed, err := translate.DiffDocuments(beforeBody, afterBody)
	if err != nil {
		return "", err
	}
	if len(updated) == 0 && len(removed) == 0 {
		return "", nil
	}
	payload := make(map[string]interface{}, 2)
	if len(updated) > 0 {
		payload["updatedFields"] = updated
	}
	if len(removed) > 0 {
		payload["removedFields"] = removed
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// UpdateOne applies update to the first document matching filter.
func (c *Collection) UpdateOne(ctx context.Context, filter, update Document, opts ...UpdateOptions) (*UpdateResult, error) {
	return c.update(ctx, filter, update, false, firstUpdateOptions(opts))
}

// UpdateMany applies update to every document matching filter.
func (c *Collection) UpdateMany(ctx context.Context, filter, update Document, opts ...UpdateOptions) (*UpdateResult, error) {
	return c.update(ctx, filter, update, true, firstUpdateOptions(opts))
}

func (c *Collection) update(ctx context.Context, filter, update Document, many bool, opts UpdateOptions) (*UpdateResult, error) {
	where, whereArgs, err := translate.CompileFilter(filter)
	if err != nil {
		return nil, newValidationError("filter", err)
	}
	plan, err := translate.CompileUpdate(update)
	if err != nil {
		return nil, newValidationError("update", err)
	}

	if !many {
		id, found, err := c.findOneID(ctx, where, whereArgs)
		if err != nil {
			return nil, err
		}
		if !found {
			if opts.Upsert {
				return c.upsert(ctx, filter, update, plan)
			}
			return &UpdateResult{}, nil
		}
		where, whereArgs = "_id = ?", []interface{}{id}
	}

	matched, err := c.selectMatched(ctx, where, whereArgs)
	if err != nil {
		return nil, wrapEngineErr("update", err)
	}
	if len(matched) == 0 {
		if opts.Upsert {
			return c.upsert(ctx, filter, update, plan)
		}
		return &UpdateResult{}, nil
	}

	ids := idsOf(matched)
	before := bodiesByID(matched)

	switch {
	case plan.NeedsRMW:
		return c.updateWithRMW(ctx, ids, before, plan)
	case plan.IsReplacement:
		return c.replace(ctx, ids, before, plan.Replacement)
	default:
		return c.updateSQL(ctx, ids, before, plan)
	}
}

// upsert synthesises a document from the filter's top-level equality
// constraints plus the update's $set/replacement body, assigns it an
// _id if one wasn't supplied, and inserts it (§4.C). Operators and
// logical combinators in the filter contribute nothing to the
// synthesised document — only plain field:value equality constraints
// are well-defined as starting values.
func (c *Collection) upsert(ctx context.Context, filter, update Document, plan *translate.UpdatePlan) (*UpdateResult, error) {
	doc := make(Document)
	for k, v := range filter {
		if strings.HasPrefix(k, "$") {
			continue
		}
		if _, isOperatorExpr := v.(map[string]interface{}); isOperatorExpr {
			continue
		}
		doc[k] = v
	}

	if plan.IsReplacement {
		for k, v := range plan.Replacement {
			if k == "_id" {
				continue
			}
			doc[k] = v
		}
	} else if setFields, ok := update[translate.UpdateSet].(map[string]interface{}); ok {
		for k, v := range setFields {
			doc[k] = v
		}
	}

	id, err := c.InsertOne(ctx, doc)
	if err != nil {
		return nil, err
	}
	return &UpdateResult{UpsertedID: id}, nil
}

func (c *Collection) updateSQL(ctx context.Context, ids []string, before map[string]string, plan *translate.UpdatePlan) (*UpdateResult, error) {
	idExpr, idArgs := idPlaceholders(ids)
	query := fmt.Sprintf(`UPDATE "%s" SET data = %s WHERE _id IN (%s)`, c.name, plan.SetExpr, idExpr)
	args := append(append([]interface{}{}, plan.Args...), idArgs...)
	res, err := c.engine.DB().ExecContext(ctx, query, args...)
	if err != nil {
		return nil, wrapEngineErr("update", err)
	}
	n, _ := res.RowsAffected()
	if err := c.recordUpdateDescriptions(ctx, ids, before); err != nil {
		return nil, wrapEngineErr("update", err)
	}
	return &UpdateResult{MatchedCount: int64(len(ids)), ModifiedCount: n}, nil
}

// replace overwrites the data of every row in ids with replacement,
// preserving each row's own _id (a replacement document never carries
// its own _id across; §4.C).
func (c *Collection) replace(ctx context.Context, ids []string, before map[string]string, replacement Document) (*UpdateResult, error) {
	var modified int64
	for _, id := range ids {
		doc := cloneDocument(replacement)
		doc["_id"] = id
		body, err := encodeDocument(doc)
		if err != nil {
			return nil, newValidationError("", err)
		}
		res, err := c.engine.DB().ExecContext(ctx, fmt.Sprintf(`UPDATE "%s" SET data = ? WHERE _id = ?`, c.name), body, id)
		if err != nil {
			return nil, wrapEngineErr("replace", err)
		}
		n, _ := res.RowsAffected()
		modified += n
	}
	if err := c.recordUpdateDescriptions(ctx, ids, before); err != nil {
		return nil, wrapEngineErr("replace", err)
	}
	return &UpdateResult{MatchedCount: int64(len(ids)), ModifiedCount: modified}, nil
}

// updateWithRMW handles updates containing $pull: the non-$pull
// operators apply first as a pure SQL expression, then each matched row
// is read back, has its arrays filtered in Go, and is written back —
// all inside one transaction (§4.C, §5).
func (c *Collection) updateWithRMW(ctx context.Context, ids []string, before map[string]string, plan *translate.UpdatePlan) (*UpdateResult, error) {
	var modified int64
	idExpr, idArgs := idPlaceholders(ids)
	err := c.engine.Tx(ctx, func(tx *sql.Tx) error {
		query := fmt.Sprintf(`UPDATE "%s" SET data = %s WHERE _id IN (%s)`, c.name, plan.SetExpr, idExpr)
		args := append(append([]interface{}{}, plan.Args...), idArgs...)
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return err
		}

		rows, err := tx.QueryContext(ctx, fmt.Sprintf(`SELECT _id, data FROM "%s" WHERE _id IN (%s)`, c.name, idExpr), idArgs...)
		if err != nil {
			return err
		}
		var matched []matchedRow
		for rows.Next() {
			var r matchedRow
			if err := rows.Scan(&r.id, &r.data); err != nil {
				rows.Close()
				return err
			}
			matched = append(matched, r)
		}
		if err := rows.Close(); err != nil {
			return err
		}
		if err := rows.Err(); err != nil {
			return err
		}

		for _, r := range matched {
			doc, err := decodeDocument(r.id, r.data)
			if err != nil {
				return err
			}
			for _, pull := range plan.PullOps {
				if err := translate.ApplyPull(doc, pull.Path, pull.Predicate); err != nil {
					return err
				}
			}
			body, err := encodeDocument(doc)
			if err != nil {
				return err
			}
			res, err := tx.ExecContext(ctx, fmt.Sprintf(`UPDATE "%s" SET data = ? WHERE _id = ?`, c.name), body, r.id)
			if err != nil {
				return err
			}
			n, _ := res.RowsAffected()
			modified += n
		}
		return nil
	})
	if err != nil {
		return nil, wrapEngineErr("update", err)
	}
	if err := c.recordUpdateDescriptions(ctx, ids, before); err != nil {
		return nil, wrapEngineErr("update", err)
	}
	return &UpdateResult{MatchedCount: int64(len(ids)), ModifiedCount: modified}, nil
}

// DeleteOne removes the first document matching filter.
func (c *Collection) DeleteOne(ctx context.Context, filter Document) (*DeleteResult, error) {
	where, args, err := translate.CompileFilter(filter)
	if err != nil {
		return nil, newValidationError("filter", err)
	}
	id, found, err := c.findOneID(ctx, where, args)
	if err != nil {
		return nil, err
	}
	if !found {
		return &DeleteResult{}, nil
	}
	res, err := c.engine.DB().ExecContext(ctx, fmt.Sprintf(`DELETE FROM "%s" WHERE _id = ?`, c.name), id)
	if err != nil {
		return nil, wrapEngineErr("delete one", err)
	}
	n, _ := res.RowsAffected()
	return &DeleteResult{DeletedCount: n}, nil
}

// DeleteMany removes every document matching filter.
func (c *Collection) DeleteMany(ctx context.Context, filter Document) (*DeleteResult, error) {
	where, args, err := translate.CompileFilter(filter)
	if err != nil {
		return nil, newValidationError("filter", err)
	}
	res, err := c.engine.DB().ExecContext(ctx, fmt.Sprintf(`DELETE FROM "%s" WHERE %s`, c.name, where), args...)
	if err != nil {
		return nil, wrapEngineErr("delete many", err)
	}
	n, _ := res.RowsAffected()
	return &DeleteResult{DeletedCount: n}, nil
}

// CountDocuments counts every document matching filter.
func (c *Collection) CountDocuments(ctx context.Context, filter Document) (int64, error) {
	where, args, err := translate.CompileFilter(filter)
	if err != nil {
		return 0, newValidationError("filter", err)
	}
	var n int64
	err = c.engine.DB().QueryRowContext(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM "%s" WHERE %s`, c.name, where), args...).Scan(&n)
	if err != nil {
		return 0, wrapEngineErr("count documents", err)
	}
	return n, nil
}

// EstimatedDocumentCount returns the table's row count without applying
// any filter. The count is exact (a plain COUNT(*) over the table); it
// differs from CountDocuments only in taking no filter.
func (c *Collection) EstimatedDocumentCount(ctx context.Context) (int64, error) {
	var n int64
	err := c.engine.DB().QueryRowContext(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM "%s"`, c.name)).Scan(&n)
	if err != nil {
		return 0, wrapEngineErr("estimated document count", err)
	}
	return n, nil
}

// IndexKey is one field of a compound index, Dir 1 for ascending or -1
// for descending (§4.G).
type IndexKey struct {
	Path string
	Dir  int
}

// IndexModel describes an index to create. Name is optional; a name is
// derived from the keys when left blank.
type IndexModel struct {
	Name   string
	Keys   []IndexKey
	Unique bool
}

// IndexDescription reports one index currently defined on a collection.
type IndexDescription struct {
	Name       string
	Definition string
	Unique     bool
}

// CreateIndex builds an expression index over one or more document
// paths and returns its resolved name (§4.G).
func (c *Collection) CreateIndex(ctx context.Context, model IndexModel) (string, error) {
	spec := sqlengine.IndexSpec{Name: model.Name, Unique: model.Unique}
	for _, k := range model.Keys {
		spec.Keys = append(spec.Keys, sqlengine.IndexKey{Path: k.Path, Dir: k.Dir})
	}
	name, err := c.engine.CreateIndex(ctx, c.name, spec)
	if err != nil {
		return "", wrapEngineErr("create index", err)
	}
	return name, nil
}

func (c *Collection) DropIndex(ctx context.Context, name string) error {
	return wrapEngineErr("drop index", c.engine.DropIndex(ctx, name))
}

func (c *Collection) ListIndexes(ctx context.Context) ([]IndexDescription, error) {
	infos, err := c.engine.ListIndexes(ctx, c.name)
	if err != nil {
		return nil, wrapEngineErr("list indexes", err)
	}
	out := make([]IndexDescription, len(infos))
	for i, info := range infos {
		out[i] = IndexDescription{Name: info.Name, Definition: info.Definition, Unique: info.Unique}
	}
	return out, nil
}

// Watch opens a change stream scoped to this collection (§4.H).
func (c *Collection) Watch(ctx context.Context, opts WatchOptions) (*Subscription, error) {
	return c.streams.watch(ctx, c.name, opts, c.queueCapacity)
}

func isUniqueViolation(err error) bool {
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
