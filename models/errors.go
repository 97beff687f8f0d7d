package models

// Error types attached to the errors returned by universes and the store.
const (
	ErrTypeUniverseNotFound = "universe_not_found"
	ErrTypeObjectNotFound   = "object_not_found"
	ErrTypeInvalidUniverse  = "invalid_universe"
	ErrTypeInvalidObject    = "invalid_object"
	ErrTypeInvalidSearch    = "invalid_search"
)
