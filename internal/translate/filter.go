package translate

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Filter operators recognised by CompileFilter (§3, §4.B).
const (
	OpNe     = "$ne"
	OpGt     = "$gt"
	OpGte    = "$gte"
	OpLt     = "$lt"
	OpLte    = "$lte"
	OpIn     = "$in"
	OpNin    = "$nin"
	OpExists = "$exists"
	OpRegex  = "$regex"
	OpAnd    = "$and"
	OpOr     = "$or"
	OpNor    = "$nor"
	OpNot    = "$not"
)

var comparisonSQL = map[string]string{
	OpNe:  "!=",
	OpGt:  ">",
	OpGte: ">=",
	OpLt:  "<",
	OpLte: "<=",
}

// CompileFilter folds a document filter expression into a SQL fragment
// for placement after WHERE, plus its positional parameters (§4.B). An
// empty filter compiles to "1=1" so callers can append it unconditionally.
func CompileFilter(filter map[string]interface{}) (string, []interface{}, error) {
	if len(filter) == 0 {
		return "1=1", nil, nil
	}
	return compileAnd(filter)
}

// compileAnd treats every key of m as an implicit top-level $and.
func compileAnd(m map[string]interface{}) (string, []interface{}, error) {
	keys := sortedKeys(m)
	var frags []string
	var args []interface{}
	for _, k := range keys {
		frag, a, err := compileKey(k, m[k])
		if err != nil {
			return "", nil, err
		}
		frags = append(frags, frag)
		args = append(args, a...)
	}
	if len(frags) == 0 {
		return "1=1", nil, nil
	}
	return strings.Join(frags, " AND "), args, nil
}

func compileKey(key string, value interface{}) (string, []interface{}, error) {
	switch key {
	case OpAnd:
		return compileCombinator(key, value, " AND ")
	case OpOr:
		return compileCombinator(key, value, " OR ")
	case OpNor:
		return compileNor(value)
	case OpNot:
		return compileNot(value)
	default:
		return compilePath(key, value)
	}
}

func compileCombinator(op string, value interface{}, joiner string) (string, []interface{}, error) {
	children, ok := value.([]interface{})
	if !ok {
		return "", nil, fmt.Errorf("%s: expects an array of subexpressions", op)
	}
	if len(children) == 0 {
		return "", nil, fmt.Errorf("%s: %w", op, ErrEmptyCombinator)
	}
	var frags []string
	var args []interface{}
	for _, c := range children {
		cm, ok := c.(map[string]interface{})
		if !ok {
			return "", nil, fmt.Errorf("%s: each subexpression must be an object", op)
		}
		frag, a, err := compileAnd(cm)
		if err != nil {
			return "", nil, err
		}
		frags = append(frags, "("+frag+")")
		args = append(args, a...)
	}
	return strings.Join(frags, joiner), args, nil
}

// compileNor negates each child and ANDs the results together: a
// document matches $nor only if none of the children match (§4.B).
func compileNor(value interface{}) (string, []interface{}, error) {
	children, ok := value.([]interface{})
	if !ok {
		return "", nil, fmt.Errorf("$nor: expects an array of subexpressions")
	}
	if len(children) == 0 {
		return "", nil, fmt.Errorf("$nor: %w", ErrEmptyCombinator)
	}
	var frags []string
	var args []interface{}
	for _, c := range children {
		cm, ok := c.(map[string]interface{})
		if !ok {
			return "", nil, fmt.Errorf("$nor: each subexpression must be an object")
		}
		frag, a, err := compileAnd(cm)
		if err != nil {
			return "", nil, err
		}
		frags = append(frags, "NOT ("+frag+")")
		args = append(args, a...)
	}
	return strings.Join(frags, " AND "), args, nil
}

func compileNot(value interface{}) (string, []interface{}, error) {
	cm, ok := value.(map[string]interface{})
	if !ok {
		return "", nil, fmt.Errorf("$not: expects a single subexpression object")
	}
	if len(cm) == 0 {
		return "", nil, fmt.Errorf("$not: %w", ErrEmptyCombinator)
	}
	frag, args, err := compileAnd(cm)
	if err != nil {
		return "", nil, err
	}
	return "NOT (" + frag + ")", args, nil
}

func compilePath(path string, value interface{}) (string, []interface{}, error) {
	extractExpr, err := jsonExtract(path)
	if err != nil {
		return "", nil, err
	}

	if ops, ok := value.(map[string]interface{}); ok && isOperatorMap(ops) {
		return compileOperators(extractExpr, ops)
	}
	return compileEquality(extractExpr, value)
}

// isOperatorMap reports whether every key of m begins with "$" — the
// signal that m is an operator application rather than a literal
// object to match by equality (§3).
func isOperatorMap(m map[string]interface{}) bool {
	if len(m) == 0 {
		return false
	}
	for k := range m {
		if !strings.HasPrefix(k, "$") {
			return false
		}
	}
	return true
}

func compileOperators(extractExpr string, ops map[string]interface{}) (string, []interface{}, error) {
	keys := sortedKeys(ops)
	var frags []string
	var args []interface{}
	for _, op := range keys {
		frag, a, err := compileOperator(extractExpr, op, ops[op])
		if err != nil {
			return "", nil, err
		}
		frags = append(frags, frag)
		args = append(args, a...)
	}
	return strings.Join(frags, " AND "), args, nil
}

func compileOperator(extractExpr, op string, value interface{}) (string, []interface{}, error) {
	switch op {
	case OpNe:
		if value == nil {
			return fmt.Sprintf("%s IS NOT NULL", extractExpr), nil, nil
		}
		return fmt.Sprintf("%s != ?", extractExpr), []interface{}{normalizeValue(value)}, nil
	case OpGt, OpGte, OpLt, OpLte:
		return fmt.Sprintf("%s %s ?", extractExpr, comparisonSQL[op]), []interface{}{normalizeValue(value)}, nil
	case OpIn:
		return compileInNin(extractExpr, value, false)
	case OpNin:
		return compileInNin(extractExpr, value, true)
	case OpExists:
		b, ok := value.(bool)
		if !ok {
			return "", nil, fmt.Errorf("$exists requires a boolean value")
		}
		if b {
			return fmt.Sprintf("%s IS NOT NULL", extractExpr), nil, nil
		}
		return fmt.Sprintf("%s IS NULL", extractExpr), nil, nil
	case OpRegex:
		pattern, ok := value.(string)
		if !ok {
			return "", nil, fmt.Errorf("$regex requires a string pattern")
		}
		return fmt.Sprintf("%s LIKE ?", extractExpr), []interface{}{pattern}, nil
	default:
		return "", nil, fmt.Errorf("unknown filter operator %q", op)
	}
}

func compileInNin(extractExpr string, value interface{}, negate bool) (string, []interface{}, error) {
	list, ok := value.([]interface{})
	if !ok {
		return "", nil, fmt.Errorf("$in/$nin require an array value")
	}
	if len(list) == 0 {
		// Empty membership list short-circuits rather than producing
		// invalid "IN ()" SQL (§4.B).
		if negate {
			return "1", nil, nil
		}
		return "0", nil, nil
	}
	placeholders := make([]string, len(list))
	args := make([]interface{}, len(list))
	for i, v := range list {
		placeholders[i] = "?"
		args[i] = normalizeValue(v)
	}
	verb := "IN"
	if negate {
		verb = "NOT IN"
	}
	return fmt.Sprintf("%s %s (%s)", extractExpr, verb, strings.Join(placeholders, ", ")), args, nil
}

func compileEquality(extractExpr string, value interface{}) (string, []interface{}, error) {
	switch v := value.(type) {
	case nil:
		// Matches both "field is JSON null" and "field is missing",
		// matching document-store semantics (§4.A).
		return fmt.Sprintf("%s IS NULL", extractExpr), nil, nil
	case []interface{}, map[string]interface{}:
		b, err := json.Marshal(v)
		if err != nil {
			return "", nil, err
		}
		return fmt.Sprintf("%s = ?", extractExpr), []interface{}{string(b)}, nil
	default:
		return fmt.Sprintf("%s = ?", extractExpr), []interface{}{normalizeValue(v)}, nil
	}
}

func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
