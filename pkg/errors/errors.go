package apperrors

import "errors"

// Standardized engine errors
var (
	ErrNotActive             = errors.New("deposits not active")
	ErrInvalidAmount         = errors.New("invalid amount")
	ErrLtvOutOfRange         = errors.New("target ltv out of range")
	ErrUnauthorizedCallback  = errors.New("unauthorized loan callback")
	ErrNoPendingLoan         = errors.New("no pending loan operation")
	ErrSharePriceBelowFloor  = errors.New("share price below floor")
	ErrHealthFactorTooLow    = errors.New("health factor below floor")
	ErrPriceFeedStale        = errors.New("price feed stale")
	ErrPriceDeviation        = errors.New("price deviation beyond threshold")
	ErrSlippageExceeded      = errors.New("swap slippage exceeded")
	ErrTokenNotAllowed       = errors.New("reward token not allowed")
	ErrRepaymentShort        = errors.New("insufficient funds for loan repayment")
	ErrVenueNotSnapshottable = errors.New("venue does not support rollback snapshots")
	ErrOperationInProgress   = errors.New("operation already in progress")
)
