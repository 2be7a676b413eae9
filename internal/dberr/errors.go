// Package dberr defines the error taxonomy of the persistence layer.
//
// Three families exist:
//   - RecordNotFoundError: an update targeted a key that matches no row.
//     Recoverable; Save catches it and falls back to an insert.
//   - ConfigurationError: a programming or schema mismatch, such as a record
//     that does not encode its primary key. Never retried.
//   - engine constraint errors: returned by the SQLite driver unchanged.
//     IsConstraint classifies them for both supported drivers.
package dberr

import (
	"errors"
	"fmt"
	"strings"

	"github.com/mattn/go-sqlite3"
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"

	"github.com/roach88/persist/internal/container"
)

// RecordNotFoundError is returned when an update or a fetch-after-update
// matches no row.
type RecordNotFoundError struct {
	// Table is the table name as the record reported it.
	Table string

	// Key holds the key columns and values that were looked up.
	Key *container.Container
}

// Error implements the error interface.
// Format: Key not found in table player: [id:1]
func (e *RecordNotFoundError) Error() string {
	key := "[]"
	if e.Key != nil {
		key = e.Key.String()
	}
	return fmt.Sprintf("Key not found in table %s: %s", e.Table, key)
}

// NewRecordNotFound creates a RecordNotFoundError.
func NewRecordNotFound(table string, key *container.Container) *RecordNotFoundError {
	return &RecordNotFoundError{Table: table, Key: key}
}

// ConfigurationErrorCode categorizes configuration errors.
type ConfigurationErrorCode string

const (
	// ErrCodeMissingKey indicates the record does not encode a key column.
	ErrCodeMissingKey ConfigurationErrorCode = "MISSING_KEY"

	// ErrCodeNullKey indicates an explicit primary key column is NULL.
	ErrCodeNullKey ConfigurationErrorCode = "NULL_KEY"

	// ErrCodeUnknownTable indicates the table does not exist.
	ErrCodeUnknownTable ConfigurationErrorCode = "UNKNOWN_TABLE"

	// ErrCodeAmbiguousConflictTarget indicates an upsert asked for the
	// table's key as conflict target but the table has several candidates.
	ErrCodeAmbiguousConflictTarget ConfigurationErrorCode = "AMBIGUOUS_CONFLICT_TARGET"

	// ErrCodeUnknownConflictTarget indicates a conflict target that matches
	// neither the primary key nor a unique index.
	ErrCodeUnknownConflictTarget ConfigurationErrorCode = "UNKNOWN_CONFLICT_TARGET"

	// ErrCodeReturningUnsupported indicates the SQLite library cannot
	// execute RETURNING clauses (requires 3.35.0).
	ErrCodeReturningUnsupported ConfigurationErrorCode = "RETURNING_UNSUPPORTED"

	// ErrCodeEncodeFailed indicates a record value could not be converted.
	ErrCodeEncodeFailed ConfigurationErrorCode = "ENCODE_FAILED"

	// ErrCodeEmptyRecord indicates an upsert of a record with no columns.
	ErrCodeEmptyRecord ConfigurationErrorCode = "EMPTY_RECORD"
)

// ConfigurationError reports a mismatch between a record and its table.
type ConfigurationError struct {
	// Code identifies the error category.
	Code ConfigurationErrorCode

	// Message is a human-readable description.
	Message string

	// Table is the affected table, if known.
	Table string

	// Err is the underlying cause, if any.
	Err error
}

// Error implements the error interface.
func (e *ConfigurationError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.Table != "" {
		msg += fmt.Sprintf(" (table=%s)", e.Table)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

// NewConfigurationError creates a ConfigurationError.
func NewConfigurationError(code ConfigurationErrorCode, table, format string, args ...any) *ConfigurationError {
	return &ConfigurationError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Table:   table,
	}
}

// NewMissingKeyError reports key columns the record did not encode.
func NewMissingKeyError(table string, columns []string) *ConfigurationError {
	return NewConfigurationError(ErrCodeMissingKey, table,
		"record does not encode primary key column(s) %s", strings.Join(columns, ", "))
}

// NewNullKeyError reports explicit key columns encoded as NULL.
func NewNullKeyError(table string, columns []string) *ConfigurationError {
	return NewConfigurationError(ErrCodeNullKey, table,
		"primary key column(s) %s must not be NULL", strings.Join(columns, ", "))
}

// NewReturningUnsupportedError reports a missing RETURNING capability.
func NewReturningUnsupportedError(version string) *ConfigurationError {
	return NewConfigurationError(ErrCodeReturningUnsupported, "",
		"SQLite %s does not support RETURNING (3.35.0 or later required)", version)
}

// IsRecordNotFound returns true if the error is a RecordNotFoundError.
// Uses errors.As to handle wrapped errors.
func IsRecordNotFound(err error) bool {
	var nf *RecordNotFoundError
	return errors.As(err, &nf)
}

// IsConfigurationError returns true if the error is a ConfigurationError.
func IsConfigurationError(err error) bool {
	var ce *ConfigurationError
	return errors.As(err, &ce)
}

// HasCode returns true if the error is a ConfigurationError with the given code.
func HasCode(err error, code ConfigurationErrorCode) bool {
	var ce *ConfigurationError
	if errors.As(err, &ce) {
		return ce.Code == code
	}
	return false
}

// IsConstraint reports whether err is an SQLite constraint violation
// from either the cgo driver or the pure-Go driver.
func IsConstraint(err error) bool {
	if err == nil {
		return false
	}
	var cgoErr sqlite3.Error
	if errors.As(err, &cgoErr) {
		return cgoErr.Code == sqlite3.ErrConstraint
	}
	var pureErr *msqlite.Error
	if errors.As(err, &pureErr) {
		return pureErr.Code()&0xff == sqlite3lib.SQLITE_CONSTRAINT
	}
	return false
}

// IsUniqueViolation reports whether err is a UNIQUE or PRIMARY KEY violation.
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var cgoErr sqlite3.Error
	if errors.As(err, &cgoErr) {
		return cgoErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			cgoErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	var pureErr *msqlite.Error
	if errors.As(err, &pureErr) {
		switch pureErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_UNIQUE, sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY:
			return true
		}
	}
	return false
}
