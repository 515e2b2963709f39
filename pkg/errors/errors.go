package apperrors

import "errors"

// Standardized exchange errors
var (
	ErrInsufficientFunds    = errors.New("insufficient funds")
	ErrOrderRejected        = errors.New("order rejected")
	ErrOrderNotFound        = errors.New("order not found")
	ErrRateLimitExceeded    = errors.New("rate limit exceeded")
	ErrNetwork              = errors.New("network error")
	ErrInvalidSymbol        = errors.New("invalid symbol")
	ErrAuthenticationFailed = errors.New("authentication failed")
	ErrTimestampOutOfBounds = errors.New("timestamp out of bounds")
	ErrAssetNotHeld         = errors.New("asset not held in account")
	ErrNotConnected         = errors.New("stream not connected")
)
