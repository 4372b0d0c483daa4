package domain

import "errors"

// Ledger errors returned by services and repositories.
// Callers wrap them with context and match with errors.Is.
var (
	ErrNotFound              = errors.New("not found")
	ErrUnsupportedInstrument = errors.New("unsupported instrument")
	ErrInvalidAmount         = errors.New("invalid amount")
	ErrInvalidDirection      = errors.New("invalid direction")
	ErrInsufficientBalance   = errors.New("insufficient balance")
	ErrInvalidPrice          = errors.New("invalid price")
	ErrAlreadyFinalized      = errors.New("already finalized")
	ErrUnauthorized          = errors.New("unauthorized")
	ErrAlreadyExists         = errors.New("already exists")
	ErrInvalidInput          = errors.New("invalid input")
)
