package ledger

import "errors"

var (
	ErrInvalidAmount       = errors.New("amount must be greater than zero")
	ErrInsufficientCredits = errors.New("insufficient credits")
	ErrSelfTransfer        = errors.New("cannot transfer credits to yourself")
	ErrUserNotFound        = errors.New("user not found")
	ErrPackageNotFound     = errors.New("credit package not found")
	ErrInvalidSource       = errors.New("invalid transaction source")
)
