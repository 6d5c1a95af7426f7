package id

import "github.com/google/uuid"

// New returns a random render job identifier.
func New() string {
	return uuid.NewString()
}

// Valid reports whether s is a job identifier produced by New.
func Valid(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}
