package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// ErrorKind classifies a failed request.
type ErrorKind int

const (
	// KindNoResponse means the request was sent but nothing came back:
	// connection failures and timeouts.
	KindNoResponse ErrorKind = iota + 1
	// KindStatus means the server answered with a non-2xx status.
	KindStatus
	// KindRequest covers everything else: bad URLs, encoding failures,
	// caller cancellation.
	KindRequest
)

// Error is returned by every Client operation that fails.
type Error struct {
	Kind    ErrorKind
	Status  int
	Message string
	Body    []byte
	Err     error
}

func (e *Error) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("api: %d: %s", e.Status, e.Message)
	}
	return "api: " + e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// ServerMessage is the `message` or `error` field of the response body, if any.
func (e *Error) ServerMessage() string {
	return bodyMessage(e.Body)
}

// Unauthorized reports a 401 answer.
func (e *Error) Unauthorized() bool {
	return e.Kind == KindStatus && e.Status == http.StatusUnauthorized
}

// IsRetryable is the default retry predicate: no response, 408, 429 or 5xx.
func IsRetryable(e *Error) bool {
	switch e.Kind {
	case KindNoResponse:
		return true
	case KindStatus:
		return e.Status == http.StatusRequestTimeout ||
			e.Status == http.StatusTooManyRequests ||
			e.Status >= 500
	}
	return false
}

// AsError extracts an *Error from err.
func AsError(err error) (*Error, bool) {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}

// StatusOf returns the HTTP status carried by err, or 0.
func StatusOf(err error) int {
	if apiErr, ok := AsError(err); ok {
		return apiErr.Status
	}
	return 0
}

func statusError(status int, body []byte) *Error {
	msg := bodyMessage(body)
	if msg == "" {
		msg = fmt.Sprintf("request failed with status code %d", status)
	}
	return &Error{Kind: KindStatus, Status: status, Message: msg, Body: body}
}

func noResponseError(err error) *Error {
	return &Error{Kind: KindNoResponse, Message: "no response received", Err: err}
}

func requestError(err error) *Error {
	msg := "unknown error"
	if err != nil && err.Error() != "" {
		msg = err.Error()
	}
	return &Error{Kind: KindRequest, Message: msg, Err: err}
}

// bodyMessage reads `message`, then `error`, from a JSON error body.
func bodyMessage(body []byte) string {
	if len(body) == 0 {
		return ""
	}
	var payload struct {
		Message any `json:"message"`
		Error   any `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}
	if s, ok := payload.Message.(string); ok && s != "" {
		return s
	}
	if s, ok := payload.Error.(string); ok && s != "" {
		return s
	}
	return ""
}
