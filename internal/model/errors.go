package model

import "errors"

// ErrNotFound is the shared sentinel for "no such domain/link/workspace",
// returned by catalog.Store and recognized by resolver.Resolve.
var ErrNotFound = errors.New("not found")
