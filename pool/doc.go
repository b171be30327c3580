// Package pool provides the chunk buffers used by stream writers and the pools
// that recycle them.
//
// A Buffer has a fixed usable capacity and a write cursor. Only the bytes below
// the cursor are ever exposed, so a recycled buffer never leaks stale content
// from a previous use. A Pool hands out empty buffers of an exact size and takes
// them back once an upload part has been sent.
package pool
