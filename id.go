package mongolite

import (
	"fmt"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// NewObjectID returns a fresh 24-character hex identifier suitable for
// a document's _id. The underlying generator is the same one
// applications already use when talking to MongoDB directly, so ids
// produced by this module sort the same way and carry the same
// embedded-timestamp property (§3).
func NewObjectID() string {
	return primitive.NewObjectID().Hex()
}

// ValidateObjectID reports whether id is a well-formed 24-character hex
// ObjectID string. InsertOne does not call it: caller-supplied _id
// values of any non-empty string are accepted (§3).
func ValidateObjectID(id string) error {
	if _, err := primitive.ObjectIDFromHex(id); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidID, err)
	}
	return nil
}
