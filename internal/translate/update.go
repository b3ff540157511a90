package translate

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Update operators recognised by CompileUpdate (§4.C).
const (
	UpdateSet    = "$set"
	UpdateUnset  = "$unset"
	UpdateInc    = "$inc"
	UpdatePush   = "$push"
	UpdatePull   = "$pull"
	UpdateRename = "$rename"
)

var knownUpdateOps = map[string]bool{
	UpdateSet: true, UpdateUnset: true, UpdateInc: true,
	UpdatePush: true, UpdatePull: true, UpdateRename: true,
}

// operatorOrder is the order in which operator kinds are folded into the
// SQL expression chain. $pull is handled separately because removing
// matching array elements can't be expressed as a pure json1 expression
// and requires reading the row back (§4.C, §5).
var operatorOrder = []string{UpdateRename, UpdateUnset, UpdateSet, UpdateInc, UpdatePush}

// PullOp is one field/predicate pair from a $pull clause, applied by the
// caller against the decoded document under a read-modify-write (§4.C).
type PullOp struct {
	Path      string
	Predicate interface{}
}

// UpdatePlan is the compiled form of an update document. Either
// IsReplacement is set (the update is a whole-document replacement, and
// the caller must preserve the matched row's _id) or SetExpr/Args
// describe a SQL expression to assign to the data column, optionally
// paired with PullOps that must be applied after decoding the row.
type UpdatePlan struct {
	IsReplacement bool
	Replacement   map[string]interface{}

	SetExpr string
	Args    []interface{}

	NeedsRMW bool
	PullOps  []PullOp
}

// CompileUpdate folds an update document into an UpdatePlan (§4.C). A
// document with no $-prefixed top-level keys is a replacement document;
// otherwise every top-level key must be a recognised update operator.
func CompileUpdate(update map[string]interface{}) (*UpdatePlan, error) {
	if !hasOperators(update) {
		return &UpdatePlan{IsReplacement: true, Replacement: update}, nil
	}

	for k := range update {
		if !knownUpdateOps[k] {
			return nil, fmt.Errorf("unknown update operator %q", k)
		}
	}

	plan := &UpdatePlan{}
	expr := "data"
	var args []interface{}

	for _, op := range operatorOrder {
		raw, ok := update[op]
		if !ok {
			continue
		}
		fields, ok := raw.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("%s: expects a field->value mapping", op)
		}
		for _, field := range sortedKeys(fields) {
			val := fields[field]
			var fragExpr string
			var fragArgs []interface{}
			var err error
			switch op {
			case UpdateRename:
				fragExpr, fragArgs, err = compileRename(expr, field, val)
			case UpdateUnset:
				fragExpr, fragArgs, err = compileUnset(expr, field)
			case UpdateSet:
				fragExpr, fragArgs, err = compileSet(expr, field, val)
			case UpdateInc:
				fragExpr, fragArgs, err = compileInc(expr, field, val)
			case UpdatePush:
				fragExpr, fragArgs, err = compilePush(expr, field, val)
			}
			if err != nil {
				return nil, err
			}
			expr = fragExpr
			args = append(args, fragArgs...)
		}
	}

	if raw, ok := update[UpdatePull]; ok {
		fields, ok := raw.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("%s: expects a field->predicate mapping", UpdatePull)
		}
		for _, field := range sortedKeys(fields) {
			if field == "_id" {
				return nil, ErrImmutableID
			}
			plan.PullOps = append(plan.PullOps, PullOp{Path: field, Predicate: fields[field]})
		}
		plan.NeedsRMW = true
	}

	plan.SetExpr = expr
	plan.Args = args
	return plan, nil
}

func hasOperators(update map[string]interface{}) bool {
	for k := range update {
		if strings.HasPrefix(k, "$") {
			return true
		}
	}
	return false
}

// boundValue is a value ready to be spliced into a SQL fragment: either a
// plain "?" placeholder bound to a scalar, or a "json(?)" placeholder
// bound to a marshalled array/object so json1 stores it as structured
// JSON rather than an escaped string (§4.A, §4.C).
type boundValue struct {
	placeholder string
	arg         interface{}
}

func bindValue(val interface{}) (boundValue, error) {
	switch v := val.(type) {
	case []interface{}, map[string]interface{}:
		b, err := json.Marshal(v)
		if err != nil {
			return boundValue{}, err
		}
		return boundValue{placeholder: "json(?)", arg: string(b)}, nil
	default:
		return boundValue{placeholder: "?", arg: normalizeValue(v)}, nil
	}
}

func compileSet(expr, field string, val interface{}) (string, []interface{}, error) {
	if field == "_id" {
		return "", nil, ErrImmutableID
	}
	jp, err := ToJSONPath(field)
	if err != nil {
		return "", nil, err
	}
	bv, err := bindValue(val)
	if err != nil {
		return "", nil, err
	}
	return fmt.Sprintf("json_set(%s, '%s', %s)", expr, jp, bv.placeholder), []interface{}{bv.arg}, nil
}

func compileUnset(expr, field string) (string, []interface{}, error) {
	if field == "_id" {
		return "", nil, ErrImmutableID
	}
	jp, err := ToJSONPath(field)
	if err != nil {
		return "", nil, err
	}
	return fmt.Sprintf("json_remove(%s, '%s')", expr, jp), nil, nil
}

func compileInc(expr, field string, val interface{}) (string, []interface{}, error) {
	if field == "_id" {
		return "", nil, ErrImmutableID
	}
	jp, err := ToJSONPath(field)
	if err != nil {
		return "", nil, err
	}
	n, ok := toFloat(val)
	if !ok {
		return "", nil, fmt.Errorf("$inc requires a numeric value")
	}
	extract := fmt.Sprintf("json_extract(%s, '%s')", expr, jp)
	return fmt.Sprintf("json_set(%s, '%s', COALESCE(%s, 0) + ?)", expr, jp, extract), []interface{}{n}, nil
}

func compilePush(expr, field string, val interface{}) (string, []interface{}, error) {
	if field == "_id" {
		return "", nil, ErrImmutableID
	}
	jp, err := ToJSONPath(field)
	if err != nil {
		return "", nil, err
	}
	bv, err := bindValue(val)
	if err != nil {
		return "", nil, err
	}
	extract := fmt.Sprintf("json_extract(%s, '%s')", expr, jp)
	fragment := fmt.Sprintf(
		"json_set(%s, '%s', json(CASE WHEN json_type(%s)='array' THEN json_insert(%s, '$[#]', %s) ELSE json_array(%s) END))",
		expr, jp, extract, extract, bv.placeholder, bv.placeholder,
	)
	return fragment, []interface{}{bv.arg, bv.arg}, nil
}

func compileRename(expr, oldField string, val interface{}) (string, []interface{}, error) {
	if oldField == "_id" {
		return "", nil, ErrImmutableID
	}
	newField, ok := val.(string)
	if !ok {
		return "", nil, fmt.Errorf("$rename requires a string target path")
	}
	if newField == "_id" {
		return "", nil, ErrImmutableID
	}
	oldJP, err := ToJSONPath(oldField)
	if err != nil {
		return "", nil, err
	}
	newJP, err := ToJSONPath(newField)
	if err != nil {
		return "", nil, err
	}
	set := fmt.Sprintf("json_set(%s, '%s', json_extract(%s, '%s'))", expr, newJP, expr, oldJP)
	return fmt.Sprintf("json_remove(%s, '%s')", set, oldJP), nil, nil
}

// ApplyPull removes every element of the array at path that matches
// predicate, mutating doc in place. Called by the collection facade
// after re-reading a row matched by a $pull update (§4.C, §5). A path
// that resolves to nothing is left untouched rather than treated as an
// error, mirroring how $unset on a missing field is a no-op.
func ApplyPull(doc map[string]interface{}, path string, predicate interface{}) error {
	cur, ok := lookupPath(doc, path)
	if !ok {
		return nil
	}
	arr, ok := cur.([]interface{})
	if !ok {
		return fmt.Errorf("$pull: %q is not an array", path)
	}
	filtered := make([]interface{}, 0, len(arr))
	for _, el := range arr {
		match, err := matchesPullPredicate(el, predicate)
		if err != nil {
			return err
		}
		if !match {
			filtered = append(filtered, el)
		}
	}
	return setPath(doc, path, filtered)
}

func matchesPullPredicate(el interface{}, predicate interface{}) (bool, error) {
	switch p := predicate.(type) {
	case map[string]interface{}:
		if isOperatorMap(p) {
			for _, op := range sortedKeys(p) {
				ok, err := evalPullOperator(el, op, p[op])
				if err != nil {
					return false, err
				}
				if !ok {
					return false, nil
				}
			}
			return true, nil
		}
		elMap, ok := el.(map[string]interface{})
		if !ok {
			return false, nil
		}
		for k, v := range p {
			if !deepEqual(elMap[k], v) {
				return false, nil
			}
		}
		return true, nil
	default:
		return deepEqual(el, predicate), nil
	}
}

func evalPullOperator(el interface{}, op string, value interface{}) (bool, error) {
	switch op {
	case OpNe:
		return !deepEqual(el, value), nil
	case OpGt, OpGte, OpLt, OpLte:
		a, ok1 := toFloat(el)
		b, ok2 := toFloat(value)
		if !ok1 || !ok2 {
			return false, fmt.Errorf("%s: operands must be numeric", op)
		}
		switch op {
		case OpGt:
			return a > b, nil
		case OpGte:
			return a >= b, nil
		case OpLt:
			return a < b, nil
		default:
			return a <= b, nil
		}
	case OpIn, OpNin:
		list, ok := value.([]interface{})
		if !ok {
			return false, fmt.Errorf("%s requires an array", op)
		}
		found := false
		for _, v := range list {
			if deepEqual(el, v) {
				found = true
				break
			}
		}
		if op == OpIn {
			return found, nil
		}
		return !found, nil
	default:
		return false, fmt.Errorf("unsupported $pull operator %q", op)
	}
}

func deepEqual(a, b interface{}) bool {
	ab, errA := json.Marshal(a)
	bb, errB := json.Marshal(b)
	if errA != nil || errB != nil {
		return false
	}
	return string(ab) == string(bb)
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}
