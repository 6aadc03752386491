package domain

import "fmt"

// Error codes surfaced by the upstream API or synthesized by the gateway client.
const (
	CodeInsufficientBalance = "INSUFFICIENT_BALANCE"
	CodeInvalidPlan         = "INVALID_PLAN"
	CodeNetwork             = "NETWORK_ERROR"
	CodeUnauthorized        = "UNAUTHORIZED"
	CodeConfig              = "CONFIG_ERROR"
	CodeBadResponse         = "BAD_RESPONSE"
)

// IsDomainCode reports whether code is a business-rule failure that must
// never be retried by the transport layer.
func IsDomainCode(code string) bool {
	return code == CodeInsufficientBalance || code == CodeInvalidPlan
}

// Result is the tagged outcome of a gateway call. Expected failures are
// carried as data, never as a Go error or panic.
type Result[T any] struct {
	OK      bool
	Data    T
	Code    string
	Message string
	Status  int // HTTP status of the last upstream response, 0 when none
}

func Ok[T any](v T) Result[T] {
	return Result[T]{OK: true, Data: v, Status: 200}
}

func Fail[T any](code, message string, status int) Result[T] {
	return Result[T]{Code: code, Message: message, Status: status}
}

// Err maps the result onto the package sentinels so callers can use errors.Is.
func (r Result[T]) Err() error {
	if r.OK {
		return nil
	}
	switch r.Code {
	case CodeInsufficientBalance:
		return ErrInsufficientBalance
	case CodeInvalidPlan:
		return ErrInvalidPlan
	case CodeNetwork:
		return fmt.Errorf("%w: %s", ErrNetwork, r.Message)
	case CodeUnauthorized:
		return ErrUnauthorized
	case CodeConfig:
		return ErrNotConfigured
	}
	if r.Message != "" {
		return fmt.Errorf("%w: %s: %s", ErrUpstream, r.Code, r.Message)
	}
	return fmt.Errorf("%w: %s", ErrUpstream, r.Code)
}

// MapResult converts the payload of a successful result, preserving failures.
func MapResult[T, U any](r Result[T], fn func(T) U) Result[U] {
	if !r.OK {
		return Result[U]{Code: r.Code, Message: r.Message, Status: r.Status}
	}
	return Result[U]{OK: true, Data: fn(r.Data), Status: r.Status}
}
