package service

import "errors"

// Sentinel errors. Handlers map these onto HTTP statuses and everything
// below the handler layer compares with errors.Is.
var (
	ErrInsufficientCredits = errors.New("credits: insufficient credits")
	ErrGuestLimitReached   = errors.New("credits: guest limit reached")
	ErrAccountNotFound     = errors.New("credits: account not found")
)
