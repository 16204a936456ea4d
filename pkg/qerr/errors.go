// Package qerr defines the stable error taxonomy shared by every quilldb
// subsystem. Callers distinguish error kinds with Is(err, kind) against the
// exported Kind constants rather than string matching.
package qerr

import (
	"errors"
	"fmt"
)

// Kind is one of the stable error kinds from the error handling design.
type Kind string

const (
	NotReady                Kind = "NotReady"
	UpgradeBlocked          Kind = "UpgradeBlocked"
	IncompatibleSchemaChange Kind = "IncompatibleSchemaChange"
	ValidationFailed        Kind = "ValidationFailed"
	NotFound                Kind = "NotFound"
	DuplicateKey            Kind = "DuplicateKey"
	TransactionAborted      Kind = "TransactionAborted"
	Timeout                 Kind = "Timeout"
	Cancelled               Kind = "Cancelled"
	DecryptFailed           Kind = "DecryptFailed"
	KeyDerivationFailed     Kind = "KeyDerivationFailed"
	RotationInProgress      Kind = "RotationInProgress"
	DimensionMismatch       Kind = "DimensionMismatch"
	EmbedderFailed          Kind = "EmbedderFailed"
	SyncTransportError      Kind = "SyncTransportError"
	InvalidOperator         Kind = "InvalidOperator"
)

// Error wraps a Kind with the operation context and an optional cause.
type Error struct {
	Kind   Kind
	Op     string
	Table  string
	Column string
	Reason string
	Err    error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Op, e.Kind)
	if e.Table != "" {
		msg += fmt.Sprintf(" table=%s", e.Table)
	}
	if e.Column != "" {
		msg += fmt.Sprintf(" column=%s", e.Column)
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// New builds an *Error for the given kind and operation.
func New(kind Kind, op string, reason string) *Error {
	return &Error{Kind: kind, Op: op, Reason: reason}
}

// Wrap builds an *Error that carries an underlying cause.
func Wrap(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// WithTable annotates the error with the table it occurred in.
func (e *Error) WithTable(table string) *Error {
	e.Table = table
	return e
}

// WithColumn annotates the error with the column it occurred in.
func (e *Error) WithColumn(col string) *Error {
	e.Column = col
	return e
}

// Is reports whether err carries the given Kind anywhere in its chain.
func Is(err error, kind Kind) bool {
	for err != nil {
		var e *Error
		if !errors.As(err, &e) {
			return false
		}
		if e.Kind == kind {
			return true
		}
		err = e.Err
	}
	return false
}
