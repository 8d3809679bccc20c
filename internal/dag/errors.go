package dag

import "errors"

var (
	// ErrMalformedEncoding is returned when bytes cannot be parsed as a
	// dag-pb node: a link table followed by optional data.
	ErrMalformedEncoding = errors.New("dag: malformed encoding")

	// ErrMissingField is returned when a required JSON field is absent.
	ErrMissingField = errors.New("dag: missing field")

	// ErrUndefinedLink is returned when a link has no target CID.
	ErrUndefinedLink = errors.New("dag: link has undefined cid")

	// ErrLinkNotFound is returned when no link has the requested name.
	ErrLinkNotFound = errors.New("dag: no link by that name")
)
