package errs

import (
	"errors"
	"fmt"
)

// Kind is the closed set of failure categories surfaced by the relayer
type Kind string

const (
	// KindConfiguration indicates a missing or invalid chain/service setting. Fatal at startup.
	KindConfiguration Kind = "CONFIGURATION"

	// KindValidation indicates a bad address, amount or chain key. Rejected before any side effect.
	KindValidation Kind = "VALIDATION"

	// KindChainCall indicates a reverted, dropped or unreachable chain interaction
	KindChainCall Kind = "CHAIN_CALL"

	// KindAttestationTimeout indicates the attestation service never reported completion
	KindAttestationTimeout Kind = "ATTESTATION_TIMEOUT"

	// KindInsufficientFunds indicates the custody or hot wallet cannot cover the amount
	KindInsufficientFunds Kind = "INSUFFICIENT_FUNDS"
)

// Error is a relayer failure with its kind and the operation that produced it
type Error struct {
	Kind    Kind
	Op      string
	Chain   string
	Message string
	Cause   error
}

// New creates an Error of the given kind
func New(kind Kind, op, message string) *Error {
	return &Error{Kind: kind, Op: op, Message: message}
}

// Wrap creates an Error of the given kind around cause
func Wrap(kind Kind, op string, cause error, message string) *Error {
	return &Error{Kind: kind, Op: op, Message: message, Cause: cause}
}

// OnChain sets the chain the error happened on
func (e *Error) OnChain(chain string) *Error {
	e.Chain = chain
	return e
}

// Error implements the error interface
func (e *Error) Error() string {
	prefix := string(e.Kind)
	if e.Chain != "" {
		prefix = fmt.Sprintf("%s:%s", e.Kind, e.Chain)
	}

	msg := e.Message
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Cause != nil {
		msg = msg + ": " + e.Cause.Error()
	}

	return fmt.Sprintf("[%s] %s", prefix, msg)
}

// Unwrap returns the underlying cause
func (e *Error) Unwrap() error {
	return e.Cause
}

// KindOf returns the kind of the first *Error in err's chain, or "" if there is none
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsKind reports whether err carries the given kind
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// IsResumable reports whether the failed work can be picked up again from persisted state
// (re-polling the attestation for an already confirmed burn)
func IsResumable(err error) bool {
	return IsKind(err, KindAttestationTimeout)
}

func Configuration(op, format string, args ...interface{}) *Error {
	return New(KindConfiguration, op, fmt.Sprintf(format, args...))
}

func Validation(op, format string, args ...interface{}) *Error {
	return New(KindValidation, op, fmt.Sprintf(format, args...))
}

func InsufficientFunds(op, format string, args ...interface{}) *Error {
	return New(KindInsufficientFunds, op, fmt.Sprintf(format, args...))
}

func ChainCall(op string, cause error, format string, args ...interface{}) *Error {
	return Wrap(KindChainCall, op, cause, fmt.Sprintf(format, args...))
}

func AttestationTimeout(op string, cause error, format string, args ...interface{}) *Error {
	return Wrap(KindAttestationTimeout, op, cause, fmt.Sprintf(format, args...))
}
