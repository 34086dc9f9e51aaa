package allocation

import "errors"

var (
	ErrSubscriptionNotFound = errors.New("subscription not found")
	ErrFailedNotFound       = errors.New("failed allocation not found")
	ErrNotRetryable         = errors.New("failed allocation is already resolved")
	ErrDiscrepancyNotFound  = errors.New("discrepancy not found")
	ErrNotFixable           = errors.New("discrepancy cannot be fixed automatically")

	errAlreadyAllocated = errors.New("already allocated for period")
)
