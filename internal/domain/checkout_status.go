package domain

type CheckoutStatus string

const (
	CheckoutStatusIdle               CheckoutStatus = "IDLE"
	CheckoutStatusSubmitting         CheckoutStatus = "SUBMITTING"
	CheckoutStatusSucceeded          CheckoutStatus = "SUCCEEDED"
	CheckoutStatusSucceededNoReceipt CheckoutStatus = "SUCCEEDED_NO_RECEIPT"
	CheckoutStatusFailed             CheckoutStatus = "FAILED"
)

func (s CheckoutStatus) IsTerminal() bool {
	return s == CheckoutStatusSucceeded || s == CheckoutStatusSucceededNoReceipt || s == CheckoutStatusFailed
}

// Completed reports whether the gateway accepted the order, with or without a receipt.
func (s CheckoutStatus) Completed() bool {
	return s == CheckoutStatusSucceeded || s == CheckoutStatusSucceededNoReceipt
}

// CanTransitionTo allows re-arming from any settled state but never while a submission is in flight.
func (s CheckoutStatus) CanTransitionTo(next CheckoutStatus) bool {
	switch next {
	case CheckoutStatusSubmitting:
		return s != CheckoutStatusSubmitting
	case CheckoutStatusSucceeded, CheckoutStatusSucceededNoReceipt, CheckoutStatusFailed:
		return s == CheckoutStatusSubmitting
	default:
		return false
	}
}

// String representation (for logging)
func (s CheckoutStatus) String() string {
	return string(s)
}

// View is what the checkout page renders, derived from cart and order state.
type View string

const (
	ViewCheckoutForm View = "CHECKOUT_FORM"
	ViewEmptyCart    View = "EMPTY_CART"
	ViewConfirmation View = "CONFIRMATION"
	ViewThankYou     View = "THANK_YOU"
)

func DeriveView(hasCart, completed, hasReceipt bool) View {
	switch {
	case completed && hasReceipt:
		return ViewConfirmation
	case completed:
		return ViewThankYou
	case hasCart:
		return ViewCheckoutForm
	default:
		return ViewEmptyCart
	}
}
