package domain

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrLockHeld      = errors.New("lock already held")

	// Rejection kinds raised by the settlement engine. Engine errors match
	// exactly one of these with errors.Is.
	ErrValidation        = errors.New("validation failed")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrInvalidState      = errors.New("invalid state")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrNoEntitlement     = errors.New("no entitlement")
	ErrReentrant         = errors.New("reentrant call")

	// Causes behind ErrNoEntitlement on a gains claim.
	ErrNoWinningStake = errors.New("no stake on winning outcome")
	ErrAlreadyClaimed = errors.New("already claimed")

	ErrInvalidSignature = errors.New("invalid signature")
)
