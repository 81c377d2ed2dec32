package rpc

import (
	"errors"
	"fmt"
)

// Canonical error codes carried in envelope error objects. Every error
// that crosses a transport boundary maps to one of these.
const (
	CodeMethodNotFound     = "method_not_found"
	CodeInvalidParams      = "invalid_params"
	CodeDuplicateName      = "duplicate_name"
	CodeNotFound           = "not_found"
	CodeAlreadyRegistered  = "already_registered"
	CodeUnknownKey         = "unknown_key"
	CodeQueueFull          = "queue_full"
	CodeServiceUnavailable = "service_unavailable"
	CodeTransportClosed    = "transport_closed"
	CodeTimeout            = "timeout"
	CodeHandlerError       = "handler_error"
	CodeUnauthorized       = "unauthorized"
	CodeValidationError    = "validation_error"
	CodeLowConfidence      = "low_confidence"
	CodeProcessingError    = "processing_error"
)

// Error is a coded error suitable for serialization into an envelope
// error object. Handlers return *Error when they want a specific code
// on the wire; plain errors map to handler_error.
type Error struct {
	Code    string
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Errorf builds a coded error with a formatted message.
func Errorf(code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// CodeOf extracts the canonical code from err. Plain errors from
// handlers report handler_error; everything else defaults to
// processing_error.
func CodeOf(err error) string {
	var coded *Error
	if errors.As(err, &coded) {
		return coded.Code
	}
	return CodeHandlerError
}

// MessageOf extracts the human-readable message from err.
func MessageOf(err error) string {
	var coded *Error
	if errors.As(err, &coded) {
		return coded.Message
	}
	return err.Error()
}
