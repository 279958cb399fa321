// Package protocol defines the request/response messages exchanged between the
// controller and a worker process, and the length-prefixed frame codec that
// carries them over the worker's stdin and stdout.
//
// Frame layout:
//
//	+----------------+-----+----------------------+
//	| length (4, BE) | tag | fields (big-endian)  |
//	+----------------+-----+----------------------+
//
// The length covers the tag and fields. The format is process-internal and
// never persisted, so it carries no version.
package protocol
