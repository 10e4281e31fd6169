package seccrypto

import "errors"

// ErrAuthenticity is returned by Unwrap when a ciphertext fails to verify
// against its claimed digest. Callers typically translate this into the
// package-level seccs.ErrAuthenticity at the façade boundary.
var ErrAuthenticity = errors.New("seccrypto: authenticity check failed")
