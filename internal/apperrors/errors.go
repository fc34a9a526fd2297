// Package apperrors defines the typed error taxonomy of the card domain.
// Services return these values (optionally wrapped around a cause) and the
// handler layer maps them to HTTP statuses.
package apperrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Error is a typed, recoverable domain error. Two Errors are considered
// equal by errors.Is when their codes match, so wrapped causes do not break
// sentinel comparisons.
type Error struct {
	Code    string
	Message string
	Status  int
	Err     error
}

var (
	ErrUserNotFound        = New("USER_NOT_FOUND", "user not found", http.StatusNotFound)
	ErrCardNotFound        = New("CARD_NOT_FOUND", "card not found", http.StatusNotFound)
	ErrAccessDenied        = New("ACCESS_DENIED", "access denied", http.StatusForbidden)
	ErrCardLimit           = New("CARD_LIMIT", "maximum number of cards reached (5)", http.StatusBadRequest)
	ErrGenerationExhausted = New("GENERATION_EXHAUSTED", "unable to generate unique card number after 10 attempts", http.StatusInternalServerError)
	ErrAlreadyBlocked      = New("ALREADY_BLOCKED", "card is already blocked", http.StatusBadRequest)
	ErrCardNotActive       = New("CARD_NOT_ACTIVE", "both cards must be active for transfer", http.StatusBadRequest)
	ErrInsufficientFunds   = New("INSUFFICIENT_FUNDS", "insufficient funds", http.StatusBadRequest)
	ErrInvalidAmount       = New("INVALID_AMOUNT", "transfer amount must be positive", http.StatusBadRequest)
	ErrCrypto              = New("CRYPTO_ERROR", "failed to process card data", http.StatusInternalServerError)
	ErrConflict            = New("CONFLICT", "resource already exists", http.StatusConflict)
	ErrInvalidCredentials  = New("INVALID_CREDENTIALS", "invalid username or password", http.StatusUnauthorized)
	ErrUsernameTaken       = New("USERNAME_TAKEN", "username already exists", http.StatusConflict)
	ErrEmailTaken          = New("EMAIL_TAKEN", "email already exists", http.StatusConflict)
)

// New creates a domain error with the given code, message and HTTP status.
func New(code, message string, status int) *Error {
	return &Error{Code: code, Message: message, Status: status}
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches by code so that errors.Is(err, ErrCardNotFound) holds for any
// wrapped copy of the sentinel.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// With returns a copy of the error carrying err as its cause.
func (e *Error) With(err error) *Error {
	return &Error{Code: e.Code, Message: e.Message, Status: e.Status, Err: err}
}

// As extracts the typed error from an error chain.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}
