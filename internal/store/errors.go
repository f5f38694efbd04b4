package store

import "github.com/listenupapp/listenup-client/internal/errors"

// Sentinel errors. Aliased from the domain error package so callers can
// match with errors.Is regardless of which layer produced them.
var (
	ErrNotFound      = errors.ErrNotFound
	ErrAlreadyExists = errors.Conflict("resource already exists")
)
