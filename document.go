package mongolite

import (
	"encoding/json"
	"fmt"
)

// Document is the shape every CRUD method accepts and returns: a
// decoded JSON object. Its _id key is always a plain string: a generated
// hex ObjectID, or the non-empty string the caller supplied on insert.
type Document = map[string]interface{}

// encodeDocument serializes doc's body for the `data` column, stripping
// _id first — the identifier lives in its own indexed column, not
// inside the JSON blob, so every json1 path expression this module
// builds addresses only the caller's own fields (§3).
func encodeDocument(doc Document) (string, error) {
	body := make(Document, len(doc))
	for k, v := range doc {
		if k == "_id" {
			continue
		}
		body[k] = v
	}
	b, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("mongolite: encode document: %w", err)
	}
	return string(b), nil
}

// decodeDocument reassembles a Document from a stored row, reattaching
// the _id column value that encodeDocument stripped out.
func decodeDocument(id, data string) (Document, error) {
	var doc Document
	if err := json.Unmarshal([]byte(data), &doc); err != nil {
		return nil, fmt.Errorf("mongolite: decode document: %w", err)
	}
	if doc == nil {
		doc = make(Document)
	}
	doc["_id"] = id
	return doc, nil
}

func cloneDocument(doc Document) Document {
	clone := make(Document, len(doc))
	for k, v := range doc {
		clone[k] = v
	}
	return clone
}
