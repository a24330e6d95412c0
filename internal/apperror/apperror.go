// Package apperror carries the error taxonomy's category on every error
// that crosses the channel engine's boundary, so an HTTP handler can map
// a category to a status code with a single switch instead of string
// matching against error messages.
package apperror

import "errors"

// Category is one of the taxonomy's seven classes. Each names both
// where an error came from and what the caller must do about it.
type Category string

const (
	// Validation errors are surfaced verbatim with no state change:
	// bad amount, bad choice, bad pick, non-positive bet, duplicate
	// channel, channel not found.
	Validation Category = "validation"
	// Policy errors are surfaced with no state change: insufficient
	// balance, bankroll cap exceeded, pending commit exists,
	// tickets-per-draw exceeded, house cannot cover max payout.
	Policy Category = "policy"
	// Liveness errors are surfaced with pending resources cleaned up:
	// commit expired, verifiable-RNG round expired, dispute deadline
	// passed.
	Liveness Category = "liveness"
	// Integrity errors are fatal: an invariant violation on close is a
	// bug, not a protocol violation, and must not settle.
	Integrity Category = "integrity"
	// Cryptographic errors reject or revert: signature recovery
	// mismatch, bad commitment.
	Cryptographic Category = "cryptographic"
	// Transfer errors reroute to a pull-payment fallback rather than
	// failing the whole operation: on-chain call failure.
	Transfer Category = "transfer"
	// Provider errors propagate the requestor's failure; a
	// verifiable-RNG round stays None or moves Requested->Expired.
	Provider Category = "provider"
)

// Error pairs an underlying error with its taxonomy category.
type Error struct {
	Category Category
	Err      error
}

// New wraps err with category. Returns nil if err is nil, so it composes
// with the usual `if err := f(); err != nil { return New(cat, err) }`
// shape without an extra nil check at call sites.
func New(category Category, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Category: category, Err: err}
}

func (e *Error) Error() string { return e.Err.Error() }
func (e *Error) Unwrap() error { return e.Err }

// CategoryOf extracts the taxonomy category from err. Errors that were
// never classified default to Validation, the taxonomy's safest
// category: surfaced verbatim, no state change.
func CategoryOf(err error) Category {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Category
	}
	return Validation
}
