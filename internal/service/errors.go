package service

import "errors"

var (
	ErrInvalidTransition = errors.New("status transition not allowed")
	// ErrProofRequired guards the paid-equivalent status: it can only be
	// reached with a verified payment.
	ErrProofRequired  = errors.New("payment proof required for this status")
	ErrAmountMismatch = errors.New("amount does not match order total")
	ErrNotPayable     = errors.New("order is not awaiting payment")
)
