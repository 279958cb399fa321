// Package storage holds the byte-range storage backends a worker can host.
//
// Every backend exposes the same contract (see [Backend]): a fixed-capacity
// byte array addressed by offset, zero-filled on first open, persisted in a
// per-kind data file that is reopened on every worker start.
//
// Kinds:
//
//   - durable:    journaled byte array; each SetBytes call is all-or-nothing
//   - channel:    positional file I/O with EINTR and short-transfer retries
//   - mmap-pages: one shared mapping per page, mapped on first touch
//   - mmap-raw:   one shared mapping of the whole file, bulk or bytewise stores
//
// The backends rely on golang.org/x/sys/unix and only build on unix systems.
package storage
