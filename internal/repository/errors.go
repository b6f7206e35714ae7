package repository

import "errors"

// ErrNotFound is returned when a document does not exist. Services translate
// it into their own domain errors instead of matching on message strings.
var ErrNotFound = errors.New("not found")
