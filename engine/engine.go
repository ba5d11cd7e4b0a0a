package engine

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/kvgo-db/kvgo/cache"
	"github.com/kvgo-db/kvgo/codec"
	"github.com/kvgo-db/kvgo/wire"
)

// Engine implements wire.Dispatcher. One Engine is the whole engine side of
// the boundary: sessions, databases, transactions and store handles all
// resolve through it.
type Engine struct {
	alloc        *wire.BufferAllocator
	sessions     *sessionRegistry
	databases    *registry[*database]
	transactions *registry[*transaction]
	codec        codec.Codec
	logger       *slog.Logger
	processCache cache.Cache
}

// Option configures Engine construction.
type Option func(*Engine)

// WithCodec sets the payload codec. Defaults to codec.Default.
func WithCodec(c codec.Codec) Option {
	return func(e *Engine) {
		if c != nil {
			e.codec = c
		}
	}
}

// WithLogger sets the engine logger. Defaults to slog.Default.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithProcessCacheSize bounds the in-process value cache in bytes.
func WithProcessCacheSize(capacity int64) Option {
	return func(e *Engine) {
		e.processCache = cache.NewLRU(capacity)
	}
}

// New constructs an Engine.
func New(optFns ...Option) *Engine {
	e := &Engine{
		alloc:        wire.NewBufferAllocator(),
		sessions:     newSessionRegistry(),
		databases:    newRegistry[*database](),
		transactions: newRegistry[*transaction](),
		codec:        codec.Default,
		logger:       slog.Default(),
		processCache: cache.NewLRU(64 << 20),
	}
	for _, fn := range optFns {
		fn(e)
	}
	return e
}

// Allocator exposes buffer accounting, used by tests to assert that clients
// release every buffer exactly once.
func (e *Engine) Allocator() *wire.BufferAllocator { return e.alloc }

// Close releases engine resources: every database's disk store and the
// in-process cache. Outstanding handles stop working.
func (e *Engine) Close() error {
	var firstErr error
	for _, db := range e.databases.values() {
		if db.disk != nil {
			if err := db.disk.close(); err != nil && firstErr == nil {
				firstErr = err
			}
			db.disk = nil
		}
	}
	if err := e.processCache.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// encodeEntry flattens one entry to its wire.Item JSON, resolving offloaded
// values through the owning handle.
func (e *Engine) encodeEntry(cs *committedStore, ent *entry, ts *txStore) ([]byte, error) {
	v := ent.value
	if !cs.opts.IsValueDataInNodeSegment && ts != nil {
		resolved, err := ts.resolveValue(ent)
		if err != nil {
			return nil, err
		}
		v = resolved
	}
	return e.codec.Marshal(wire.Item{Key: ent.key, Value: v, ID: ent.id})
}

// SetLogging reconfigures the default logger: level plus optional file path.
func (e *Engine) SetLogging(level int32, filePath string) *wire.Buffer {
	var l slog.Level
	switch level {
	case wire.LogLevelDebug:
		l = slog.LevelDebug
	case wire.LogLevelInfo:
		l = slog.LevelInfo
	case wire.LogLevelWarn:
		l = slog.LevelWarn
	case wire.LogLevelError:
		l = slog.LevelError
	default:
		l = slog.LevelInfo
	}

	var w io.Writer = os.Stderr
	if filePath != "" {
		f, err := os.OpenFile(filePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return e.alloc.String(fmt.Sprintf("failed to open log file: %v", err))
		}
		w = f
	}

	e.logger = slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: l}))
	slog.SetDefault(e.logger)
	return nil
}
