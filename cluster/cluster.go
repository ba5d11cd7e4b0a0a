// Package cluster manages the process-wide connection clustered databases
// replicate through. Entries mirror into a DynamoDB table on commit.
//
// Table schema:
//   - Partition key: store (string) - "<keyspace>/<store name>"
//   - Sort key: entry_key (binary) - order-preserving key encoding + item id
//
// Create table with:
//
//	aws dynamodb create-table \
//	  --table-name kvgo-entries \
//	  --attribute-definitions AttributeName=store,AttributeType=S AttributeName=entry_key,AttributeType=B \
//	  --key-schema AttributeName=store,KeyType=HASH AttributeName=entry_key,KeyType=RANGE \
//	  --billing-mode PAY_PER_REQUEST
package cluster

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"golang.org/x/time/rate"

	"github.com/kvgo-db/kvgo/wire"
)

// DefaultTableName is the entries table used unless overridden.
const DefaultTableName = "kvgo-entries"

// Client is the interface for DynamoDB operations, satisfied by
// *dynamodb.Client and by test fakes.
type Client interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
}

// Connection is an open cluster store connection.
type Connection struct {
	client    Client
	tableName string
	keyspace  string
	limiter   *rate.Limiter
}

// ConnectionOption configures a Connection.
type ConnectionOption func(*Connection)

// WithTableName overrides DefaultTableName.
func WithTableName(name string) ConnectionOption {
	return func(c *Connection) {
		if name != "" {
			c.tableName = name
		}
	}
}

// WithWriteRate throttles mirror writes to n per second.
func WithWriteRate(n int) ConnectionOption {
	return func(c *Connection) {
		if n > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(n), n)
		}
	}
}

// NewConnection wraps an existing client. Used directly in tests; services
// go through Open.
func NewConnection(client Client, keyspace string, optFns ...ConnectionOption) *Connection {
	c := &Connection{
		client:    client,
		tableName: DefaultTableName,
		keyspace:  keyspace,
		limiter:   rate.NewLimiter(rate.Inf, 0),
	}
	for _, fn := range optFns {
		fn(c)
	}
	return c
}

func (c *Connection) storeKey(store string) string {
	return c.keyspace + "/" + store
}

func entryKey(key []byte, id string) []byte {
	return append(append([]byte(nil), key...), id...)
}

// PutEntry mirrors one committed entry.
func (c *Connection) PutEntry(ctx context.Context, store string, key []byte, id string, blob []byte) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	_, err := c.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(c.tableName),
		Item: map[string]types.AttributeValue{
			"store":     &types.AttributeValueMemberS{Value: c.storeKey(store)},
			"entry_key": &types.AttributeValueMemberB{Value: entryKey(key, id)},
			"id":        &types.AttributeValueMemberS{Value: id},
			"blob":      &types.AttributeValueMemberB{Value: blob},
		},
	})
	return err
}

// DeleteEntry mirrors one committed removal.
func (c *Connection) DeleteEntry(ctx context.Context, store string, key []byte, id string) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	_, err := c.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(c.tableName),
		Key: map[string]types.AttributeValue{
			"store":     &types.AttributeValueMemberS{Value: c.storeKey(store)},
			"entry_key": &types.AttributeValueMemberB{Value: entryKey(key, id)},
		},
	})
	return err
}

// GetEntry reads one mirrored entry back, primarily for verification.
func (c *Connection) GetEntry(ctx context.Context, store string, key []byte, id string) ([]byte, bool, error) {
	out, err := c.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(c.tableName),
		Key: map[string]types.AttributeValue{
			"store":     &types.AttributeValueMemberS{Value: c.storeKey(store)},
			"entry_key": &types.AttributeValueMemberB{Value: entryKey(key, id)},
		},
	})
	if err != nil {
		return nil, false, err
	}
	if out.Item == nil {
		return nil, false, nil
	}
	blob, ok := out.Item["blob"].(*types.AttributeValueMemberB)
	if !ok {
		return nil, false, errors.New("invalid blob attribute")
	}
	return blob.Value, true, nil
}

// The process-wide cluster connection. Clustered databases resolve through
// it; creating one before Open is an error.
var (
	curMu   sync.Mutex
	curConn *Connection
)

// Open establishes the process-wide cluster connection from the given
// configuration. Calling it while one is open is an error.
func Open(ctx context.Context, cfg wire.ClusterConfig, optFns ...ConnectionOption) error {
	curMu.Lock()
	defer curMu.Unlock()
	if curConn != nil {
		return errors.New("cluster connection already open")
	}

	if cfg.ConnectionTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(cfg.ConnectionTimeout)*time.Second)
		defer cancel()
	}
	awsCfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return err
	}
	curConn = NewConnection(dynamodb.NewFromConfig(awsCfg), cfg.Keyspace, optFns...)
	return nil
}

// OpenWithConnection installs an already constructed connection, used by
// tests to plug in a fake client.
func OpenWithConnection(conn *Connection) error {
	curMu.Lock()
	defer curMu.Unlock()
	if curConn != nil {
		return errors.New("cluster connection already open")
	}
	curConn = conn
	return nil
}

// Current returns the process-wide connection, if open.
func Current() (*Connection, bool) {
	curMu.Lock()
	defer curMu.Unlock()
	return curConn, curConn != nil
}

// Close tears down the process-wide connection.
func Close() {
	curMu.Lock()
	curConn = nil
	curMu.Unlock()
}
