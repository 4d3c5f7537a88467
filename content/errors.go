package content

import "errors"

var (
	// ErrNotFound is returned when looking up a document that does
	// not exist.
	ErrNotFound = errors.New("not found")

	// ErrMissingDocID is returned when inserting a document with a
	// missing / invalid ID.
	ErrMissingDocID = errors.New("document has missing / invalid id")
)
