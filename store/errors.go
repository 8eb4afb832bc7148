package store

import "errors"

// Sentinel errors returned by Store methods. Callers compare with errors.Is.
var (
	ErrNotFound          = errors.New("store: entity not found")
	ErrInvalidChange     = errors.New("store: original content must be present iff operation is modify or delete")
	ErrDuplicateDecision = errors.New("store: iteration already has an arbiter decision")
	ErrNonContiguous     = errors.New("store: iteration numbers must be contiguous")
)
