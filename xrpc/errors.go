package xrpc

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Error body returned by XRPC servers.
type XRPCError struct {
	ErrStr  string `json:"error"`
	Message string `json:"message"`
}

func (xe *XRPCError) Error() string {
	return fmt.Sprintf("%s: %s", xe.ErrStr, xe.Message)
}

// Non-200 response from an XRPC server.
type Error struct {
	StatusCode int
	Wrapped    error
	Ratelimit  *RatelimitInfo
}

type RatelimitInfo struct {
	Limit     int
	Remaining int
	Policy    string
	Reset     time.Time
}

func (e *Error) Error() string {
	if e.Wrapped == nil {
		return fmt.Sprintf("XRPC ERROR %d", e.StatusCode)
	}
	if e.StatusCode == http.StatusTooManyRequests && e.Ratelimit != nil {
		return fmt.Sprintf("XRPC ERROR %d: %s (throttled until %s)", e.StatusCode, e.Wrapped, e.Ratelimit.Reset.Local())
	}
	return fmt.Sprintf("XRPC ERROR %d: %s", e.StatusCode, e.Wrapped)
}

func (e *Error) Unwrap() error {
	return e.Wrapped
}

// The error name from the response body, if one was decoded.
func (e *Error) Name() string {
	var xe *XRPCError
	if errors.As(e.Wrapped, &xe) {
		return xe.ErrStr
	}
	return ""
}

func (e *Error) IsThrottled() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.Name() == "RateLimitExceeded"
}

// Parameter or shape problems with the request itself. Repeating the same request will not help.
func (e *Error) IsBadRequest() bool {
	if e.IsThrottled() || e.IsExpiredToken() {
		return false
	}
	return e.StatusCode == http.StatusBadRequest || e.Name() == "InvalidRequest"
}

func (e *Error) IsExpiredToken() bool {
	return e.Name() == "ExpiredToken"
}

func (e *Error) IsAuthFailure() bool {
	return e.StatusCode == http.StatusUnauthorized || e.Name() == "AuthenticationRequired"
}

// Response body did not match the expected shape.
type DecodeError struct {
	Method string
	Err    error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decoding %s response: %s", e.Method, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

func (e *DecodeError) DecodeFailure() bool {
	return true
}

func asError(err error, target **Error) bool {
	return err != nil && errors.As(err, target)
}
