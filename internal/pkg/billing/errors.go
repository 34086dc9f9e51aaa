package billing

import "errors"

var (
	// ErrInvalidEvent is a delivery that is signed but lacks data we need.
	ErrInvalidEvent         = errors.New("invalid billing event")
	ErrSubscriptionNotFound = errors.New("subscription not found")
	ErrCustomerNotLinked    = errors.New("no user linked to billing customer")
	ErrInvalidSignature     = errors.New("invalid webhook signature")
)
