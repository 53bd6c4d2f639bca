package types

import (
	"errors"
	"fmt"
	"strings"
)

type ErrorKind string

const (
	ErrorKindMissingTransaction ErrorKind = "MissingTransaction"
	ErrorKindMissingPrivateKey  ErrorKind = "MissingPrivateKey"
	ErrorKindMissingFields      ErrorKind = "MissingFields"
	ErrorKindInvalidKeyFormat   ErrorKind = "InvalidKeyFormat"
	ErrorKindSigningFailure     ErrorKind = "SigningFailure"
	ErrorKindInternal           ErrorKind = "InternalError"
)

// IsClientError reports whether the failure was caused by the caller's input.
func (k ErrorKind) IsClientError() bool {
	switch k {
	case ErrorKindMissingTransaction, ErrorKindMissingPrivateKey, ErrorKindMissingFields, ErrorKindInvalidKeyFormat:
		return true
	default:
		return false
	}
}

// SigningError is the only error type that crosses the validator/signer boundary.
// Its message is safe to return to callers: it never contains key material.
type SigningError struct {
	Kind   ErrorKind
	Fields []string
	Cause  error
}

func (e *SigningError) Error() string {
	switch e.Kind {
	case ErrorKindMissingTransaction:
		return "Transaction object is required"
	case ErrorKindMissingPrivateKey:
		return "Private key is required"
	case ErrorKindMissingFields:
		return fmt.Sprintf("Missing required transaction fields: %s", strings.Join(e.Fields, ", "))
	case ErrorKindInvalidKeyFormat:
		return "Invalid private key format"
	case ErrorKindSigningFailure:
		if e.Cause == nil {
			return "Transaction signing failed"
		}
		return fmt.Sprintf("Transaction signing failed: %s", e.Cause.Error())
	default:
		return "Internal server error"
	}
}

func (e *SigningError) Unwrap() error {
	return e.Cause
}

func NewMissingTransactionError() *SigningError {
	return &SigningError{Kind: ErrorKindMissingTransaction}
}

func NewMissingPrivateKeyError() *SigningError {
	return &SigningError{Kind: ErrorKindMissingPrivateKey}
}

func NewMissingFieldsError(fields []string) *SigningError {
	return &SigningError{Kind: ErrorKindMissingFields, Fields: fields}
}

// NewInvalidKeyFormatError deliberately carries no cause; parser errors can quote the input.
func NewInvalidKeyFormatError() *SigningError {
	return &SigningError{Kind: ErrorKindInvalidKeyFormat}
}

func NewSigningFailureError(cause error) *SigningError {
	return &SigningError{Kind: ErrorKindSigningFailure, Cause: cause}
}

func NewInternalError(cause error) *SigningError {
	return &SigningError{Kind: ErrorKindInternal, Cause: cause}
}

// KindOf classifies err. Anything that is not a SigningError is internal.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var se *SigningError
	if errors.As(err, &se) {
		return se.Kind
	}
	return ErrorKindInternal
}
