package domain

import "errors"

var (
	// Common domain errors
	ErrNotFound        = errors.New("entity not found")
	ErrInvalidArgument = errors.New("invalid argument")
	ErrInvalidState    = errors.New("operation not allowed in current checkout state")
	ErrSessionClosed   = errors.New("checkout session closed")

	// Upstream outcomes, see Result.Err
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrInvalidPlan         = errors.New("invalid plan")
	ErrUnauthorized        = errors.New("upstream rejected credentials")
	ErrNetwork             = errors.New("upstream unreachable")
	ErrNotConfigured       = errors.New("server credential not configured")
	ErrUpstream            = errors.New("upstream error")

	// Identity
	ErrInvalidInitData  = errors.New("invalid telegram init data")
	ErrIdentityMismatch = errors.New("identity does not match pending order")
	ErrRateLimited      = errors.New("too many requests")
)
