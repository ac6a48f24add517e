package xerrors

import (
	"errors"
	"fmt"
)

// Shared sentinel errors for the stockwatch service and client.
var (
	ErrNotFound          = errors.New("resource not found")
	ErrUnauthorized      = errors.New("unauthorized access")
	ErrForbidden         = errors.New("forbidden")
	ErrInvalidInput      = errors.New("invalid input")
	ErrConflict          = errors.New("conflict: resource already exists")
	ErrRateLimited       = errors.New("too many requests")
	ErrSessionExpired    = errors.New("session expired or invalid")
	ErrInvalidSymbol     = errors.New("invalid symbol")
	ErrInvalidPeriod     = errors.New("invalid period")
	ErrInvalidInterval   = errors.New("invalid interval")
	ErrProviderFailed    = errors.New("finance provider failed")
	ErrNotAuthenticated  = errors.New("not authenticated")
	ErrChannelNotReady   = errors.New("notification channel not connected")
	ErrInvalidCredential = errors.New("invalid email or password")
)

// Wrap adds context to an error. Returns nil for a nil err.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

func Is(err, target error) bool {
	return errors.Is(err, target)
}

// MessageOrDefault returns err.Error() or fallback if err is nil.
func MessageOrDefault(err error, fallback string) string {
	if err != nil {
		return err.Error()
	}
	return fallback
}
