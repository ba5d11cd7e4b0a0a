// Package engine implements the storage-engine side of the boundary: the
// session and handle registries, the opcode switchboards, transactional
// ordered stores with per-handle cursors, and the hooks into the process-wide
// cluster-store and distributed-cache backends.
//
// Clients never import the concrete types here; they drive the engine
// exclusively through wire.Dispatcher, presenting handles on every call.
package engine
