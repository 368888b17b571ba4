package model

import "errors"

// Error classes shared by the ledger, the payment processor and the HTTP layer.
var (
	ErrValidation          = errors.New("validation failed")
	ErrNotFound            = errors.New("not found")
	ErrDuplicate           = errors.New("already processed")
	ErrConflict            = errors.New("concurrent write conflict")
	ErrUpstream            = errors.New("payment provider unavailable")
	ErrUnauthorized        = errors.New("unauthorized")
	ErrInsufficientCredits = errors.New("insufficient credits")
	ErrReferralCycle       = errors.New("referral chain loops back on itself")
)
