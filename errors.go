package streamsink

import (
	"errors"
	"fmt"
)

// Error represents a streamsink error with categorization.
type Error struct {
	// Code is a machine-readable error code
	Code string

	// Message is a human-readable error message
	Message string

	// Err is the underlying error (if any)
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// Error codes.
const (
	// ErrCodeNoData indicates no data was found.
	ErrCodeNoData = "NO_DATA"

	// ErrCodeValidation indicates a message failed validation.
	ErrCodeValidation = "VALIDATION_ERROR"

	// ErrCodeConfiguration indicates invalid configuration.
	ErrCodeConfiguration = "CONFIGURATION_ERROR"

	// ErrCodeDatabase indicates database operation failed.
	ErrCodeDatabase = "DATABASE_ERROR"

	// ErrCodeHandlerFailure indicates a message handler failed or panicked.
	ErrCodeHandlerFailure = "HANDLER_FAILURE"

	// ErrCodePublish indicates the broker rejected or could not receive a record.
	ErrCodePublish = "PUBLISH_FAILURE"

	// ErrCodeSerialization indicates a payload could not be encoded or decoded.
	ErrCodeSerialization = "SERIALIZATION_FAILURE"
)

// Common errors.
var (
	// ErrNoData is returned when a query returns no results.
	// This is not necessarily an error condition in all cases.
	ErrNoData = &Error{
		Code:    ErrCodeNoData,
		Message: "no data found",
	}

	// ErrInvalidConfiguration is returned when a component is misconfigured.
	ErrInvalidConfiguration = &Error{
		Code:    ErrCodeConfiguration,
		Message: "invalid configuration",
	}
)

// NewError creates a new Error with the given code and message.
func NewError(code, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
	}
}

// NewErrorWithCause creates a new Error wrapping an underlying error.
func NewErrorWithCause(code, message string, cause error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Err:     cause,
	}
}

// HasCode reports whether any *Error in err's chain carries code.
func HasCode(err error, code string) bool {
	for err != nil {
		var e *Error
		if !errors.As(err, &e) {
			return false
		}
		if e.Code == code {
			return true
		}
		err = e.Err
	}
	return false
}

// IsNoData checks if an error is ErrNoData.
func IsNoData(err error) bool {
	return errors.Is(err, ErrNoData) || HasCode(err, ErrCodeNoData)
}

// IsValidation checks if an error is a validation failure.
func IsValidation(err error) bool {
	return HasCode(err, ErrCodeValidation)
}

// IsPublishFailure checks if an error came from the broker producer.
func IsPublishFailure(err error) bool {
	return HasCode(err, ErrCodePublish)
}

// IsSerializationFailure checks if an error came from encoding or decoding a payload.
func IsSerializationFailure(err error) bool {
	return HasCode(err, ErrCodeSerialization)
}
