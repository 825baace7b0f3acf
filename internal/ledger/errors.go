package ledger

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation matches every *ValidationError.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound matches every *NotFoundError.
	ErrNotFound = errors.New("not found")
)

// ValidationError rejects input before anything is written.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// NotFoundError signals that the owner, or the owner's destination, has no
// matching record. Nothing was changed.
type NotFoundError struct {
	OwnerID     string
	Destination string
}

func (e *NotFoundError) Error() string {
	if e.Destination != "" {
		return fmt.Sprintf("no funds for destination %q of owner %s", e.Destination, e.OwnerID)
	}
	return fmt.Sprintf("owner %s not found", e.OwnerID)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// Copy names one of the two materializations of a ledger.
type Copy string

const (
	CopyEmbedded Copy = "embedded"
	CopyGlobal   Copy = "global"
)

// PartialWriteError reports that one copy changed and the other did not.
// The write-ahead intent stays pending so the reconciler can heal it.
type PartialWriteError struct {
	Op            string
	OwnerID       string
	TransactionID string
	Applied       Copy
	Failed        Copy
	Err           error
}

func (e *PartialWriteError) Error() string {
	return fmt.Sprintf("%s: owner %s: %s copy applied, %s copy failed: %v", e.Op, e.OwnerID, e.Applied, e.Failed, e.Err)
}

func (e *PartialWriteError) Unwrap() error { return e.Err }

// IsPartialWrite reports whether err carries a *PartialWriteError.
func IsPartialWrite(err error) bool {
	var pw *PartialWriteError
	return errors.As(err, &pw)
}
