// Package apperr holds the sentinel errors shared across service edges.
package apperr

import "errors"

var (
	ErrNotFound        = errors.New("not found")
	ErrConflict        = errors.New("conflict")
	ErrAlreadyExists   = errors.New("already exists")
	ErrInvalidSettings = errors.New("invalid settings")
)
