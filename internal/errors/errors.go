package errors

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorType represents the type of error
type ErrorType int

const (
	// Channel I/O: open, read, reconnect
	TransportError ErrorType = iota

	// Framing and record decoding
	ParseError

	// Outbound POST to the partner API
	DeliveryError

	// Client-credentials exchange
	TokenError

	// Audit files and the dispatch ledger
	StorageError

	// Startup configuration
	ConfigError

	GeneralError
)

func (t ErrorType) String() string {
	switch t {
	case TransportError:
		return "transport"
	case ParseError:
		return "parse"
	case DeliveryError:
		return "delivery"
	case TokenError:
		return "token"
	case StorageError:
		return "storage"
	case ConfigError:
		return "config"
	default:
		return "general"
	}
}

// TypedError represents an error with a specific type
type TypedError struct {
	Type    ErrorType
	Message string
	Cause   error
}

// Error implements the error interface
func (e *TypedError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *TypedError) Unwrap() error {
	return e.Cause
}

// NewTypedError creates a new typed error
func NewTypedError(errorType ErrorType, message string, cause error) *TypedError {
	return &TypedError{
		Type:    errorType,
		Message: message,
		Cause:   cause,
	}
}

func Transport(message string, cause error) error {
	return NewTypedError(TransportError, message, cause)
}

func Parse(message string, cause error) error {
	return NewTypedError(ParseError, message, cause)
}

func Delivery(message string, cause error) error {
	return NewTypedError(DeliveryError, message, cause)
}

func Token(message string, cause error) error {
	return NewTypedError(TokenError, message, cause)
}

func Storage(message string, cause error) error {
	return NewTypedError(StorageError, message, cause)
}

func Config(message string, cause error) error {
	return NewTypedError(ConfigError, message, cause)
}

// IsTransportError checks if the error came from a channel or a network connection
func IsTransportError(err error) bool {
	if err == nil {
		return false
	}

	if GetErrorType(err) == TransportError {
		return true
	}

	// Fallback to string matching for errors from the serial and net packages
	errorStr := err.Error()
	return contains(errorStr, "connection refused") ||
		contains(errorStr, "connection reset") ||
		contains(errorStr, "broken pipe") ||
		contains(errorStr, "no such file or directory") ||
		contains(errorStr, "port not found")
}

func IsParseError(err error) bool {
	return GetErrorType(err) == ParseError
}

func IsDeliveryError(err error) bool {
	return GetErrorType(err) == DeliveryError
}

func IsTokenError(err error) bool {
	return GetErrorType(err) == TokenError
}

func IsStorageError(err error) bool {
	return GetErrorType(err) == StorageError
}

func IsConfigError(err error) bool {
	return GetErrorType(err) == ConfigError
}

// GetErrorType returns the type of the first TypedError in the chain, otherwise GeneralError
func GetErrorType(err error) ErrorType {
	var typedErr *TypedError
	if errors.As(err, &typedErr) {
		return typedErr.Type
	}
	return GeneralError
}

// contains is a helper function to check if a string contains a substring
func contains(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
