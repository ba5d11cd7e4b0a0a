package kvgo

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kvgo-db/kvgo/codec"
	"github.com/kvgo-db/kvgo/wire"
)

// Client is the typed access layer over a wire.Dispatcher. All handles
// created through it share its codec, logger and metrics configuration.
type Client struct {
	d       wire.Dispatcher
	codec   codec.Codec
	logger  *Logger
	metrics MetricsCollector

	retryAttempts  int
	retryBaseDelay time.Duration
}

// NewClient creates a client over the given dispatcher.
func NewClient(d wire.Dispatcher, optFns ...Option) *Client {
	o := applyOptions(optFns)
	return &Client{
		d:              d,
		codec:          o.codec,
		logger:         o.logger,
		metrics:        o.metrics,
		retryAttempts:  o.retryAttempts,
		retryBaseDelay: o.retryBaseDelay,
	}
}

// SetLogging reconfigures engine-side logging: level plus optional file
// path; an empty path logs to stderr.
func (c *Client) SetLogging(level int32, filePath string) error {
	return errFromBuf(c.d.SetLogging(level, filePath))
}

// Context is a client session: it scopes cancellation and carries the
// engine's deferred-error slot. Contexts are cheap; use one per logical
// unit of work and close it when done.
type Context struct {
	c   *Client
	sid int64

	mu     sync.Mutex
	closed bool
}

// NewContext allocates a session.
func (c *Client) NewContext() *Context {
	return &Context{c: c, sid: c.d.CreateSession()}
}

// Close releases the session. The Context must not be used afterwards.
func (ctx *Context) Close() {
	ctx.mu.Lock()
	defer ctx.mu.Unlock()
	if ctx.closed {
		return
	}
	ctx.closed = true
	ctx.c.d.CloseSession(ctx.sid)
}

// Cancel aborts in-flight work on the session and releases it.
func (ctx *Context) Cancel() {
	ctx.mu.Lock()
	defer ctx.mu.Unlock()
	if ctx.closed {
		return
	}
	ctx.closed = true
	ctx.c.d.CancelSession(ctx.sid)
}

// Err reports the session's deferred error, or nil. The engine overwrites
// the slot on each call, so Err must be read before the next call on this
// session.
func (ctx *Context) Err() error {
	buf := ctx.c.d.SessionError(ctx.sid)
	if buf == nil {
		return nil
	}
	defer buf.Release()
	return translateError(buf.String())
}

// handleID parses a handle-creation result: a UUID string is the new
// handle, anything else is the error message.
func (ctx *Context) handleID(buf *wire.Buffer) (string, error) {
	if buf == nil {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		return "", ErrEmptyResult
	}
	defer buf.Release()
	s := buf.String()
	if _, err := uuid.Parse(s); err != nil {
		return "", translateError(s)
	}
	return s, nil
}

// sentinel parses a boolean result. A nil buffer is disambiguated through
// the session's deferred-error slot: set means failure, unset means a
// well-formed false.
func (ctx *Context) sentinel(buf *wire.Buffer) (bool, error) {
	if buf == nil {
		if err := ctx.Err(); err != nil {
			return false, err
		}
		return false, nil
	}
	defer buf.Release()
	switch buf.String() {
	case wire.SentinelTrue:
		return true, nil
	case wire.SentinelFalse:
		return false, nil
	default:
		return false, translateError(buf.String())
	}
}

// queryResult consumes a QueryStore result pair: payload bytes, a nil for
// legitimate absence, or an error.
func queryResult(payload, errBuf *wire.Buffer) ([]byte, error) {
	if errBuf != nil {
		defer errBuf.Release()
		payload.Release()
		return nil, translateError(errBuf.String())
	}
	if payload == nil {
		return nil, nil
	}
	defer payload.Release()
	return append([]byte(nil), payload.Bytes()...), nil
}

// errFromBuf consumes a result where nil means success and anything else is
// the error message.
func errFromBuf(buf *wire.Buffer) error {
	if buf == nil {
		return nil
	}
	defer buf.Release()
	return translateError(buf.String())
}
