package wire

// Dispatcher is the whole engine surface as seen from a client. Every method
// is synchronous: it returns only once the engine has fully processed the
// call.
//
// Result conventions:
//   - Handle-creation calls return the new handle id as a payload string; a
//     string that does not parse as a UUID is the error message, not a
//     handle.
//   - ManageStore and NavigateStore return the sentinel strings "true" or
//     "false", an error message, or nil. A nil result must be disambiguated
//     by querying SessionError: set means failure, unset means legitimate
//     absence.
//   - QueryStore returns a (payload, error) pair; both may be nil. Every
//     non-nil buffer must be released exactly once, on every path.
type Dispatcher interface {
	// CreateSession allocates a session and returns its id. A session
	// scopes cancellation and carries the deferred-error slot.
	CreateSession() int64

	// CloseSession releases session bookkeeping. Using the id afterwards
	// yields "session not found" errors.
	CloseSession(sid int64)

	// CancelSession cancels the session's context and releases it.
	CancelSession(sid int64)

	// SessionError reports the session's deferred error, or nil if none is
	// set. Reading does not clear the slot; the next call on the session
	// overwrites it.
	SessionError(sid int64) *Buffer

	// ManageDatabase is the database-level switchboard: create databases,
	// begin transactions, create/open/remove stores. targetID is the parent
	// handle id, or empty for NewDatabase.
	ManageDatabase(sid int64, action DatabaseAction, targetID string, payload []byte) *Buffer

	// ManageTransaction commits or rolls back the transaction whose id is
	// the payload. Nil means success; a transaction ends in exactly one
	// terminal call either way.
	ManageTransaction(sid int64, action TransactionAction, payload []byte) *Buffer

	// ManageStore runs a mutating store action (add/update/upsert/remove
	// variants). Mutations may invalidate the handle's cursor.
	ManageStore(sid int64, action int32, meta, payload []byte) *Buffer

	// NavigateStore runs a cursor action (find/first/last/next/previous).
	// The sentinel reports position validity after the move.
	NavigateStore(sid int64, action int32, meta, payload []byte) *Buffer

	// QueryStore runs a fetching action (values/keys/items/current/info and
	// the vector, model and search reads).
	QueryStore(sid int64, action int32, meta, payload []byte) (*Buffer, *Buffer)

	// StoreCount reports the number of items in the store.
	StoreCount(sid int64, meta []byte) (int64, *Buffer)

	// SetLogging reconfigures engine logging: level plus optional file
	// path; an empty path logs to stderr.
	SetLogging(level int32, filePath string) *Buffer
}
