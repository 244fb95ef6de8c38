package errors

import "errors"

var (
	ErrUserRequired    = errors.New("user id is required")
	ErrInvalidAmount   = errors.New("amount must be a positive number of minor units")
	ErrAccountExists   = errors.New("account already exists")
	ErrAccountNotFound = errors.New("account not found")
)
