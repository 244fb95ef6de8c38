package errors

import "errors"

var (
	ErrUserRequired   = errors.New("user id is required")
	ErrInvalidAmount  = errors.New("order amount must be positive")
	ErrAmountTooLarge = errors.New("order amount exceeds the allowed maximum")
	ErrOrderNotFound  = errors.New("order not found")
)
