package nodestore

import "errors"

// ErrNotFound is returned by Fetch and Release when digest is absent.
var ErrNotFound = errors.New("nodestore: digest not found")
