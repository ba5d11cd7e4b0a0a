package wire

// Item is the unit of storage: a key, an optional value, and an optional
// engine-assigned id. Keys are either primitive scalars or JSON objects
// ordered by an IndexSpecification.
type Item struct {
	Key   any    `json:"key"`
	Value any    `json:"value,omitempty"`
	ID    string `json:"id,omitempty"`
}

// PagingDirection selects the walk direction of a paged fetch.
type PagingDirection int

const (
	Forward PagingDirection = iota
	Backward
)

// PagingInfo bounds a paged fetch relative to the store's cursor.
type PagingInfo struct {
	PageSize   int             `json:"page_size"`
	PageOffset int             `json:"page_offset"`
	Direction  PagingDirection `json:"direction"`
}

// ItemBatch is the generic envelope carried by every item-addressed B-tree
// operation. Single-item helpers are client-side sugar wrapping a one-element
// batch.
type ItemBatch struct {
	Items      []Item      `json:"items"`
	PagingInfo *PagingInfo `json:"paging_info,omitempty"`
}

// StoreMeta identifies the target store handle and its owning transaction.
// It rides in the metadata buffer of every store-level call.
type StoreMeta struct {
	StoreID        string `json:"btree_id"`
	TransactionID  string `json:"transaction_id"`
	IsPrimitiveKey bool   `json:"is_primitive_key"`
}

// IndexFieldSpecification names one structured-key field that participates
// in ordering, with its sort direction.
type IndexFieldSpecification struct {
	FieldName          string `json:"field_name"`
	AscendingSortOrder bool   `json:"ascending_sort_order"`
}

// IndexSpecification declares which fields of a structured key are
// load-bearing for ordering and equality. Fields not listed are ride-along
// metadata: stored with the key, excluded from comparisons.
type IndexSpecification struct {
	IndexFields []IndexFieldSpecification `json:"index_fields"`
}

// BtreeOptions configures creation/open of a B-tree store.
type BtreeOptions struct {
	Name                         string              `json:"name"`
	IsUnique                     bool                `json:"is_unique"`
	IsPrimitiveKey               bool                `json:"is_primitive_key"`
	SlotLength                   int                 `json:"slot_length"`
	Description                  string              `json:"description"`
	IsValueDataInNodeSegment     bool                `json:"is_value_data_in_node_segment"`
	IsValueDataActivelyPersisted bool                `json:"is_value_data_actively_persisted"`
	IsValueDataGloballyCached    bool                `json:"is_value_data_globally_cached"`
	LeafLoadBalancing            bool                `json:"leaf_load_balancing"`
	IndexSpecification           *IndexSpecification `json:"index_specification,omitempty"`
	TransactionID                string              `json:"transaction_id"`
}

// DatabaseType selects the topology of a database.
type DatabaseType int

const (
	Standalone DatabaseType = iota
	Clustered
)

// CacheType selects the L2 value-cache mode of a database.
type CacheType int

const (
	NoCache CacheType = iota
	InProcessCache
	DistributedCache
)

// DatabaseOptions configures database creation.
type DatabaseOptions struct {
	StoresFolders []string     `json:"stores_folders,omitempty"`
	Keyspace      string       `json:"keyspace,omitempty"`
	CacheType     CacheType    `json:"cache_type"`
	Type          DatabaseType `json:"type"`
}

// TransactionMode selects the access mode of a transaction.
type TransactionMode int

const (
	ForReading TransactionMode = iota
	ForWriting
)

// TransactionOptions configures BeginTransaction. MaxTimeMinutes bounds how
// long the engine keeps the transaction alive; zero means engine default.
type TransactionOptions struct {
	Mode           TransactionMode `json:"mode"`
	MaxTimeMinutes int             `json:"max_time"`
}

// StoreParams addresses a named store plus its owning transaction in
// database-level open calls.
type StoreParams struct {
	Name          string `json:"name"`
	TransactionID string `json:"transaction_id"`
}

// StoreInfo describes an existing B-tree store as reported by GetStoreInfo.
type StoreInfo struct {
	Name               string              `json:"name"`
	IsUnique           bool                `json:"is_unique"`
	IsPrimitiveKey     bool                `json:"is_primitive_key"`
	SlotLength         int                 `json:"slot_length"`
	Description        string              `json:"description"`
	IndexSpecification *IndexSpecification `json:"index_specification,omitempty"`
	Count              int64               `json:"count"`
}

// ClusterConfig configures the process-wide cluster store connection.
type ClusterConfig struct {
	ClusterHosts      []string `json:"cluster_hosts"`
	Keyspace          string   `json:"keyspace"`
	Consistency       int      `json:"consistency"`
	ConnectionTimeout int      `json:"connection_timeout"`
	ReplicationClause string   `json:"replication_clause"`
	Authenticator     struct {
		Username string `json:"username"`
		Password string `json:"password"`
	} `json:"authenticator"`
}

// VectorItem is one vector plus payload on the vector-store wire.
type VectorItem struct {
	ID      string    `json:"id,omitempty"`
	Vector  []float32 `json:"vector"`
	Payload any       `json:"payload,omitempty"`
}

// VectorBatch envelopes vector upserts/removes.
type VectorBatch struct {
	Items []VectorItem `json:"items"`
}

// VectorQuery is a nearest-neighbour query on the vector-store wire.
type VectorQuery struct {
	Vector []float32 `json:"vector"`
	K      int       `json:"k"`
}

// VectorMatch is one scored result of a VectorQuery.
type VectorMatch struct {
	ID      string  `json:"id"`
	Score   float32 `json:"score"`
	Payload any     `json:"payload,omitempty"`
}

// ModelPayload addresses a named model document.
type ModelPayload struct {
	Name  string `json:"name"`
	Model any    `json:"model,omitempty"`
}

// SearchDoc is one document on the search-index wire.
type SearchDoc struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// SearchQuery is a ranked keyword query on the search-index wire.
type SearchQuery struct {
	Text string `json:"text"`
	K    int    `json:"k"`
}

// SearchHit is one ranked result of a SearchQuery.
type SearchHit struct {
	ID    string  `json:"id"`
	Score float64 `json:"score"`
}
