// README: Caller-facing error kinds returned at the store boundary.
package market

import "errors"

// The store wraps these with the offending ids; callers classify with
// errors.Is. Precondition violations inside entity transitions are not
// errors but panics, since they signal cross-map inconsistency.
var (
	ErrNotFound          = errors.New("not found")
	ErrAlreadyClosed     = errors.New("already closed")
	ErrAlreadyExists     = errors.New("already exists")
	ErrInvalidState      = errors.New("invalid state")
	ErrOwnershipConflict = errors.New("ownership conflict")
)
