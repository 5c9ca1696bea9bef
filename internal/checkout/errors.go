package checkout

import "errors"

var (
	ErrEmptyCart          = errors.New("cart is empty, nothing to checkout")
	ErrSubmissionInFlight = errors.New("a checkout submission is already in flight")
	ErrIllegalTransition  = errors.New("illegal transition of checkout status")
	ErrClosed             = errors.New("checkout orchestrator is closed")
)

// ValidationError lists form fields that failed validation, keyed by field name.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	return "checkout form is invalid"
}
