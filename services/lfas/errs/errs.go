// Package errs defines the sentinel error taxonomy exposed at the LFAS
// embedding boundary: package-level errors.New sentinels, wrapped at the
// call site with fmt.Errorf("%w: ...") so callers can use errors.Is
// against a stable value.
package errs

import (
	"context"
	"errors"
)

var (
	// ErrStorage indicates an underlying store I/O failure, map-full
	// condition, or lock poisoning.
	ErrStorage = errors.New("lfas: storage error")

	// ErrCorruption indicates posting-list deserialization failure,
	// metadata magic/version mismatch, or an invariant violation (e.g.
	// tf-vector length not equal to bitmap cardinality).
	ErrCorruption = errors.New("lfas: corruption error")

	// ErrConfig indicates an invalid field weight, an unknown field tag
	// in a config map, or a missing storage path.
	ErrConfig = errors.New("lfas: config error")

	// ErrQuery indicates an empty query, or top_k/blocking_k equal to
	// zero.
	ErrQuery = errors.New("lfas: query error")
)

// IsCancelled reports whether err represents a cooperatively cancelled
// operation. Cancellation wraps context's own canonical sentinels rather
// than minting a new one, since context already defines them.
func IsCancelled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
