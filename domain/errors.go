package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a task or column does not exist for the owner.
	ErrNotFound = errors.New("not found")

	// ErrInvariant marks requests rejected because they would break a board invariant.
	ErrInvariant = errors.New("invariant violation")
	// ErrLastColumn is returned when deleting the owner's only column.
	ErrLastColumn = fmt.Errorf("%w: at least one column required", ErrInvariant)
	// ErrInvalidMigrationTarget is returned when the migration target is missing or the deleted column itself.
	ErrInvalidMigrationTarget = fmt.Errorf("%w: invalid migration target", ErrInvariant)
	// ErrNoColumns is returned when creating a task on a board without columns.
	ErrNoColumns = fmt.Errorf("%w: board has no columns", ErrInvariant)

	// ErrConflict marks writes rejected by a uniqueness or concurrency check in the store.
	ErrConflict = errors.New("conflict")
	// ErrEmailTaken is returned when registering an email that already has an account.
	ErrEmailTaken = fmt.Errorf("%w: email already registered", ErrConflict)
	// ErrColumnKeyTaken is returned when the store rejects a duplicate (owner, key) pair.
	ErrColumnKeyTaken = fmt.Errorf("%w: column key already exists", ErrConflict)
	// ErrConcurrencyConflict indicates that the underlying storage rejected an
	// update because a newer version of the entity is already persisted.
	ErrConcurrencyConflict = fmt.Errorf("%w: concurrency conflict", ErrConflict)

	// ErrUnauthorized is returned for unknown emails and wrong passwords alike.
	ErrUnauthorized = errors.New("invalid credentials")
)

// ValidationError describes a malformed or missing request field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

func invalid(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// AsValidation reports whether err carries a ValidationError and returns it.
func AsValidation(err error) (*ValidationError, bool) {
	var verr *ValidationError
	if errors.As(err, &verr) {
		return verr, true
	}
	return nil, false
}
