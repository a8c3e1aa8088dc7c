package lfas

import "github.com/rprado/lfas/services/lfas/errs"

// Sentinel errors returned by Engine operations. Wrapped with
// fmt.Errorf("%w: ...", ...) at the call site, so callers should use
// errors.Is against these values rather than string matching.
var (
	ErrStorage    = errs.ErrStorage
	ErrCorruption = errs.ErrCorruption
	ErrConfig     = errs.ErrConfig
	ErrQuery      = errs.ErrQuery
)

// IsCancelled reports whether err represents a cooperatively cancelled
// Search.
func IsCancelled(err error) bool {
	return errs.IsCancelled(err)
}
