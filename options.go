package kvgo

import (
	"time"

	"github.com/kvgo-db/kvgo/codec"
)

type options struct {
	codec          codec.Codec
	logger         *Logger
	metrics        MetricsCollector
	retryAttempts  int
	retryBaseDelay time.Duration
}

// Option configures Client behavior.
type Option func(*options)

// WithCodec configures the codec used for payloads crossing the boundary.
//
// If nil is passed, codec.Default is used.
func WithCodec(c codec.Codec) Option {
	return func(o *options) {
		if c == nil {
			c = codec.Default
		}
		o.codec = c
	}
}

// WithLogger configures the client logger. Nil falls back to a stderr text
// logger.
func WithLogger(l *Logger) Option {
	return func(o *options) {
		if l == nil {
			l = NewLogger(nil)
		}
		o.logger = l
	}
}

// WithMetricsCollector configures metrics collection. Nil disables it.
func WithMetricsCollector(m MetricsCollector) Option {
	return func(o *options) {
		if m == nil {
			m = NoopMetricsCollector{}
		}
		o.metrics = m
	}
}

// WithRetry configures how RunTransaction retries commit conflicts:
// attempts bounds the total tries, baseDelay seeds the jittered exponential
// backoff between them.
func WithRetry(attempts int, baseDelay time.Duration) Option {
	return func(o *options) {
		if attempts > 0 {
			o.retryAttempts = attempts
		}
		if baseDelay > 0 {
			o.retryBaseDelay = baseDelay
		}
	}
}

func applyOptions(optFns []Option) options {
	o := options{
		codec:          codec.Default,
		logger:         NewLogger(nil),
		metrics:        NoopMetricsCollector{},
		retryAttempts:  10,
		retryBaseDelay: 10 * time.Millisecond,
	}
	for _, fn := range optFns {
		fn(&o)
	}
	return o
}
