package kvgo

import (
	"errors"
	"strings"
)

var (
	// ErrNotFound is returned when an item, store or handle is not found.
	ErrNotFound = errors.New("not found")

	// ErrCommitConflict is returned when commit validation detected an
	// overlapping write by another transaction. Recoverable: roll back and
	// retry the whole transaction with fresh handles.
	ErrCommitConflict = errors.New("commit conflict")

	// ErrTransactionExpired is returned when the transaction outlived its
	// configured max time.
	ErrTransactionExpired = errors.New("transaction expired")

	// ErrReadOnlyTransaction is returned when a mutating call runs on a
	// transaction begun for reading.
	ErrReadOnlyTransaction = errors.New("transaction is read-only")

	// ErrTransactionDone is returned when a transaction handle is used
	// after its terminal commit or rollback.
	ErrTransactionDone = errors.New("transaction already completed")

	// ErrContextClosed is returned when a closed or cancelled Context is
	// used.
	ErrContextClosed = errors.New("context closed")

	// ErrEmptyResult is returned when the engine hands back neither a
	// payload nor an error. Indicates a boundary fault, not a domain
	// condition.
	ErrEmptyResult = errors.New("empty result from engine")
)

// translateError lifts an error message that crossed the boundary as a
// string into the package's sentinel errors where one applies. The raw
// message is always preserved in the chain.
func translateError(msg string) error {
	raw := errors.New(msg)
	switch {
	case strings.Contains(msg, "commit conflict"):
		return errors.Join(ErrCommitConflict, raw)
	case strings.Contains(msg, "transaction expired"):
		return errors.Join(ErrTransactionExpired, raw)
	case strings.Contains(msg, "read-only"):
		return errors.Join(ErrReadOnlyTransaction, raw)
	case strings.Contains(msg, "not found"):
		return errors.Join(ErrNotFound, raw)
	default:
		return raw
	}
}
