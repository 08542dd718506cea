// Package apperr defines sentinel errors shared across the engine.
package apperr

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrConflict      = errors.New("conflict")
	ErrAlreadyExists = errors.New("already exists")
	ErrAmbiguous     = errors.New("ambiguous")
)
