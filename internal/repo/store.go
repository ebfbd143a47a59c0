package repo

import "errors"

// ErrNotFound signals that a requested record does not exist.
var ErrNotFound = errors.New("not found")

// ErrAlreadyApplied signals an attempt to apply an optimization result whose
// applied flag has already flipped. The guard fires before any mutation.
var ErrAlreadyApplied = errors.New("optimization result already applied")
