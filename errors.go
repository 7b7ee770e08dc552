package flatstore

import "github.com/nomasters/flatstore/errors"

const (
	// ErrZeroLengthRecord is returned by Append when called with an empty
	// record. The store never writes zero-length index entries, since a
	// zero-length entry is indistinguishable from the zero-padded tail left
	// behind by a crash mid-append.
	ErrZeroLengthRecord = errors.Error("flatstore: record must not be empty")

	// ErrCorrupted is returned when a file header's magic or checksum does
	// not match, or when the recovered index and data files disagree in a
	// way recovery cannot reconcile.
	ErrCorrupted = errors.Error("flatstore: store is corrupted beyond recovery")

	// ErrIncompatibleVersion is returned when a store was written by an
	// incompatible format version.
	ErrIncompatibleVersion = errors.Error("flatstore: incompatible file format version")

	// ErrReadOnly is returned by Append/AppendBatch against a store opened
	// in ReadOnly mode.
	ErrReadOnly = errors.Error("flatstore: store opened read-only")

	// ErrLocked is returned by Open when another process already holds the
	// directory lock.
	ErrLocked = errors.Error("flatstore: directory already locked by another process")

	// ErrClosed is returned by Append, AppendBatch, GetBySeqno (and so by
	// Last and Iterator.Next when they read a record) and Flush after Close.
	ErrClosed = errors.Error("flatstore: store is closed")
)
