// Package apierror provides machine-readable error codes for the gateway
// and client layer, built on samber/oops, plus the mapping from HTTP
// status codes to the user-facing messages the web client shows.
package apierror

import (
	"fmt"
	"net/http"

	"github.com/samber/oops"
)

// Code identifies an error class across the gateway and client.
type Code string

const (
	CodeConfigInvalid    Code = "gateway.config.invalid"
	CodePortConflict     Code = "gateway.listen.port_conflict"
	CodeProxyUnreachable Code = "gateway.proxy.unreachable"
	CodeProxyUpstream    Code = "gateway.proxy.upstream_failure"

	CodeAuthExpired      Code = "client.auth.expired"
	CodeRefreshFailed    Code = "client.auth.refresh_failed"
	CodeTransientNetwork Code = "client.network.transient"
	CodeRequestFailed    Code = "client.request.failed"
)

// New creates a coded error.
func New(code Code, msg string) error {
	return oops.Code(string(code)).New(msg)
}

// Errorf creates a coded error with formatting.
func Errorf(code Code, format string, args ...any) error {
	return oops.Code(string(code)).Errorf(format, args...)
}

// Wrap attaches a code and message to an existing error.
// Returns nil if err is nil.
func Wrap(err error, code Code, msg string) error {
	if err == nil {
		return nil
	}
	return oops.Code(string(code)).Wrapf(err, "%s", msg)
}

// CodeOf extracts the code from an error chain, or "" if none is present.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return ""
	}
	if code, ok := oopsErr.Code().(string); ok {
		return Code(code)
	}
	return Code(fmt.Sprintf("%v", oopsErr.Code()))
}

// HasCode reports whether the error carries the given code.
func HasCode(err error, code Code) bool {
	return err != nil && CodeOf(err) == code
}

// MessageForStatus translates an HTTP status into the message shown to the
// user. A non-empty server-supplied detail always wins.
func MessageForStatus(statusCode int, serverMessage string) string {
	if serverMessage != "" {
		return serverMessage
	}

	switch statusCode {
	case http.StatusBadRequest:
		return "Invalid request"
	case http.StatusUnauthorized:
		return "Please log in to continue"
	case http.StatusForbidden:
		return "You do not have permission to do that"
	case http.StatusNotFound:
		return "The requested resource was not found"
	case http.StatusUnprocessableEntity:
		return "The submitted data failed validation"
	case http.StatusTooManyRequests:
		return "Too many requests, please slow down"
	case http.StatusInternalServerError:
		return "Internal server error"
	default:
		return fmt.Sprintf("Server error (%d)", statusCode)
	}
}
