package engine

import "errors"

var (
	// ErrSessionNotFound is returned when a session id does not resolve.
	ErrSessionNotFound = errors.New("session not found")

	// ErrDatabaseNotFound is returned when a database handle does not resolve.
	ErrDatabaseNotFound = errors.New("database not found")

	// ErrTransactionNotFound is returned when a transaction handle does not
	// resolve, including after its terminal commit/rollback call.
	ErrTransactionNotFound = errors.New("transaction not found")

	// ErrStoreNotFound is returned when a store handle does not resolve
	// under its transaction.
	ErrStoreNotFound = errors.New("store not found")

	// ErrCommitConflict is returned when commit validation detects that
	// another transaction committed an overlapping write first. Recoverable:
	// roll back and retry the whole transaction with fresh handles.
	ErrCommitConflict = errors.New("commit conflict")

	// ErrTransactionExpired is returned when a transaction outlived its
	// configured max time.
	ErrTransactionExpired = errors.New("transaction expired")

	// ErrReadOnlyTransaction is returned when a mutating action arrives on a
	// transaction begun for reading.
	ErrReadOnlyTransaction = errors.New("transaction is read-only")

	// ErrClusterNotOpen is returned when a clustered database is created
	// before the process-wide cluster connection is opened.
	ErrClusterNotOpen = errors.New("cluster connection not open")

	// ErrCacheNotOpen is returned when a database requests the distributed
	// cache before the process-wide cache connection is opened.
	ErrCacheNotOpen = errors.New("distributed cache connection not open")
)
