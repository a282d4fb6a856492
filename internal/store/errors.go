package store

import "cosmossdk.io/errors"

var (
	ErrNotFound  = errors.Register("store", 1, "document not found")
	ErrConnect   = errors.Register("store", 2, "could not connect to document store")
	ErrExecute   = errors.Register("store", 3, "pipeline execution failed")
	ErrDecode    = errors.Register("store", 4, "result decode failed")
)
