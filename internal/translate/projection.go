package translate

import (
	"fmt"
	"strings"
)

// ApplyProjection shapes a decoded document according to a projection
// spec (§4.D). Projections run in Go against the already-decoded
// document rather than in SQL: json1 has no general "build me a new
// object from these dotted paths" primitive, and the shapes involved
// (arbitrary nesting, the _id exception) are naturally a tree walk.
//
// A projection spec is either an inclusion spec (every non-_id value
// truthy) or an exclusion spec (every non-_id value falsy); mixing the
// two is rejected except for _id, which may always be set to 0 inside
// an inclusion spec to drop the identifier. An empty spec is a no-op.
func ApplyProjection(doc map[string]interface{}, projection map[string]interface{}) (map[string]interface{}, error) {
	if len(projection) == 0 {
		return doc, nil
	}

	var inclusion, exclusion, idIncluded, idExcluded bool
	fields := make(map[string]bool, len(projection))

	for path, raw := range projection {
		include, err := isIncludeValue(raw)
		if err != nil {
			return nil, err
		}
		if path == "_id" {
			if include {
				idIncluded = true
			} else {
				idExcluded = true
			}
			continue
		}
		fields[path] = include
		if include {
			inclusion = true
		} else {
			exclusion = true
		}
	}

	if inclusion && exclusion {
		return nil, ErrMixedProjection
	}

	result := make(map[string]interface{})

	switch {
	case inclusion:
		for path, include := range fields {
			if !include {
				continue
			}
			if v, ok := lookupPath(doc, path); ok {
				assignPath(result, path, v)
			}
		}
		if !idExcluded {
			if v, ok := doc["_id"]; ok {
				result["_id"] = v
			}
		}
	case exclusion:
		for k, v := range doc {
			result[k] = v
		}
		for path := range fields {
			removePath(result, path)
		}
		if idExcluded {
			delete(result, "_id")
		}
	default:
		// Projection named only _id. {_id: 1} includes just _id, the same
		// as any other inclusion spec would; {_id: 0} excludes only _id,
		// leaving the rest of the document untouched.
		if idIncluded {
			if v, ok := doc["_id"]; ok {
				result["_id"] = v
			}
			break
		}
		for k, v := range doc {
			result[k] = v
		}
		if idExcluded {
			delete(result, "_id")
		}
	}

	return result, nil
}

func isIncludeValue(v interface{}) (bool, error) {
	switch t := v.(type) {
	case bool:
		return t, nil
	case int:
		return t != 0, nil
	case int64:
		return t != 0, nil
	case float64:
		return t != 0, nil
	default:
		return false, fmt.Errorf("projection value must be 0, 1, true, or false")
	}
}

func assignPath(dst map[string]interface{}, path string, value interface{}) {
	segments := strings.Split(path, ".")
	cur := dst
	for i, seg := range segments {
		if i == len(segments)-1 {
			cur[seg] = value
			return
		}
		next, ok := cur[seg].(map[string]interface{})
		if !ok {
			next = make(map[string]interface{})
			cur[seg] = next
		}
		cur = next
	}
}

func removePath(dst map[string]interface{}, path string) {
	segments := strings.Split(path, ".")
	cur := dst
	for i, seg := range segments {
		if i == len(segments)-1 {
			delete(cur, seg)
			return
		}
		next, ok := cur[seg].(map[string]interface{})
		if !ok {
			return
		}
		cur = next
	}
}
