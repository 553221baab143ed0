package duracache

import "errors"

// Error classes surfaced to callers; other failures are swallowed internally
// and reported as an ordinary miss instead. Two errors pass through
// unwrapped: Get returns the Serializer's error when a stored value cannot
// be decoded, and any operation can return the disk tier's error from
// creating its directories on first use.
var (
	// ErrClosed is returned by any operation performed after Close.
	ErrClosed = errors.New("duracache: cache is closed")

	// ErrInvalidValue wraps a Serializer failure: the value cannot be
	// represented on disk.
	ErrInvalidValue = errors.New("duracache: value is not serializable")

	// ErrIO wraps an unrecoverable filesystem error from an atomic write.
	ErrIO = errors.New("duracache: disk I/O error")
)
