package wire

// DatabaseAction selects an operation on the database switchboard.
// Values are stable wire constants.
type DatabaseAction int32

const (
	DatabaseActionUnknown DatabaseAction = iota
	NewDatabase
	BeginTransaction
	NewBtree
	OpenBtree
	OpenModelStore
	OpenVectorStore
	OpenSearchIndex
	RemoveBtree
)

// TransactionAction selects an operation on the transaction switchboard.
// The first two values are reserved: older clients used them for explicit
// construction/begin, both of which now happen through BeginTransaction.
type TransactionAction int32

const (
	TransactionActionUnknown TransactionAction = iota
	transactionActionReservedNew
	transactionActionReservedBegin
	CommitTransaction
	RollbackTransaction
)

// BtreeAction selects an operation on a B-tree store handle. Mutating
// actions go through Dispatcher.ManageStore, cursor actions through
// NavigateStore, and fetches through QueryStore.
type BtreeAction int32

const (
	BtreeActionUnknown BtreeAction = iota
	Add
	AddIfNotExist
	Update
	Upsert
	Remove
	Find
	FindWithID
	GetItems
	GetValues
	GetKeys
	MoveFirst
	MoveLast
	IsUnique
	Count
	GetStoreInfo
	UpdateKey
	UpdateCurrentKey
	GetCurrentKey
	MoveNext
	MovePrevious
	GetCurrentValue
)

// VectorAction selects an operation on a vector store handle.
type VectorAction int32

const (
	VectorActionUnknown VectorAction = iota
	VectorUpsert
	VectorRemove
	VectorSearch
	VectorCount
)

// ModelAction selects an operation on a model store handle.
type ModelAction int32

const (
	ModelActionUnknown ModelAction = iota
	ModelSave
	ModelGet
	ModelList
	ModelDelete
)

// SearchAction selects an operation on a search index handle.
type SearchAction int32

const (
	SearchActionUnknown SearchAction = iota
	SearchAddDocument
	SearchRemoveDocument
	SearchQueryAction
)

// Log levels accepted by Dispatcher.SetLogging.
const (
	LogLevelDebug int32 = 0
	LogLevelInfo  int32 = 1
	LogLevelWarn  int32 = 2
	LogLevelError int32 = 3
)

// Boolean results cross the boundary as these literal sentinel strings.
// Anything else returned where a boolean is expected is an error message.
const (
	SentinelTrue  = "true"
	SentinelFalse = "false"
)
