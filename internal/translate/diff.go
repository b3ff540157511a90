package translate

import "encoding/json"

// DiffDocuments compares two encoded document bodies (the same strings
// stored in the `data` column — already stripped of _id) and reports
// the change description Mongo's change streams compute by diffing
// before/after at the top level and one level deep: a path whose leaf
// scalar changed (or was added) goes into updatedFields, using a dotted
// path when the change is one level inside a nested object; a path
// present before but absent after goes into removedFields (§4.H).
func DiffDocuments(beforeJSON, afterJSON string) (updatedFields map[string]interface{}, removedFields []string, err error) {
	var before, after map[string]interface{}
	if beforeJSON != "" {
		if err := json.Unmarshal([]byte(beforeJSON), &before); err != nil {
			return nil, nil, err
		}
	}
	if afterJSON != "" {
		if err := json.Unmarshal([]byte(afterJSON), &after); err != nil {
			return nil, nil, err
		}
	}

	updatedFields = make(map[string]interface{})
	for key, afterVal := range after {
		beforeVal, existed := before[key]
		if !existed {
			updatedFields[key] = afterVal
			continue
		}
		if deepEqual(beforeVal, afterVal) {
			continue
		}

		beforeObj, beforeIsObj := beforeVal.(map[string]interface{})
		afterObj, afterIsObj := afterVal.(map[string]interface{})
		if !beforeIsObj || !afterIsObj {
			updatedFields[key] = afterVal
			continue
		}
		for subKey, subAfter := range afterObj {
			subBefore, subExisted := beforeObj[subKey]
			if !subExisted || !deepEqual(subBefore, subAfter) {
				updatedFields[key+"."+subKey] = subAfter
			}
		}
		for subKey := range beforeObj {
			if _, ok := afterObj[subKey]; !ok {
				removedFields = append(removedFields, key+"."+subKey)
			}
		}
	}

	for key := range before {
		if _, ok := after[key]; !ok {
			removedFields = append(removedFields, key)
		}
	}

	return updatedFields, removedFields, nil
}
