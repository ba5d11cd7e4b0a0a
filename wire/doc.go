// Package wire defines the boundary contract between typed clients and the
// storage engine: the opcode space, the JSON payload schemas, the buffer
// release discipline, and the Dispatcher interface itself.
//
// The boundary is deliberately untyped. Every call carries at most a session
// id (int64), an opcode (int32), and one or two JSON byte buffers; every
// result is a buffer-or-nil, optionally paired with a second error buffer.
// The JSON field names declared here are the real compatibility contract and
// must never change, independent of any client-side type names.
package wire
