package xid

import "github.com/google/uuid"

// New returns a random (v4) UUID string. Row ids are uuid columns in
// postgres, so every generated id must parse as one.
func New() string {
	return uuid.NewString()
}

// Valid reports whether id is a well-formed UUID. Lookups short-circuit
// on malformed ids instead of sending them to the database.
func Valid(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}
