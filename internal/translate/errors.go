package translate

import "errors"

var (
	// ErrImmutableID is returned when an update operator targets _id.
	ErrImmutableID = errors.New("_id is immutable and cannot be modified by an update operator")

	// ErrMixedProjection is returned when a projection spec mixes
	// inclusion and exclusion outside the permitted "_id: 0" exception
	// (§4.D, §9).
	ErrMixedProjection = errors.New("projection cannot mix inclusion and exclusion")

	// ErrEmptyCombinator is returned for $and/$or/$nor/$not with no
	// subexpressions.
	ErrEmptyCombinator = errors.New("logical combinator has no subexpressions")
)
