package translate

import "strings"

// lookupPath navigates a decoded document by dotted path, stopping short
// of crossing into arrays (array-contained objects aren't addressable by
// dotted path here; see §9). Returns ok=false if any segment is missing
// or the path runs into a non-object value.
func lookupPath(doc map[string]interface{}, path string) (interface{}, bool) {
	segments := strings.Split(path, ".")
	var cur interface{} = doc
	for _, seg := range segments {
		m, ok := cur.(map[string]interface{})
		if !ok {
			return nil, false
		}
		v, ok := m[seg]
		if !ok {
			return nil, false
		}
		cur = v
	}
	return cur, true
}

// setPath writes value at the dotted path, creating no intermediate
// objects: every segment but the last must already resolve to an object.
func setPath(doc map[string]interface{}, path string, value interface{}) error {
	segments := strings.Split(path, ".")
	cur := doc
	for i, seg := range segments {
		if i == len(segments)-1 {
			cur[seg] = value
			return nil
		}
		next, ok := cur[seg].(map[string]interface{})
		if !ok {
			return errIntermediateNotObject(path, seg)
		}
		cur = next
	}
	return nil
}

func errIntermediateNotObject(path, segment string) error {
	return &pathError{path: path, segment: segment}
}

type pathError struct {
	path    string
	segment string
}

func (e *pathError) Error() string {
	return "path " + e.path + ": intermediate segment " + e.segment + " is not an object"
}
