package mmap

import "github.com/nomasters/flatstore/errors"

const (
	// ErrMmapLimit is returned when inactive-mmap compaction fails.
	ErrMmapLimit = errors.Error("mmap: compaction of inactive mappings failed")

	// ErrStorageFull is returned when a file cannot be grown further.
	ErrStorageFull = errors.Error("mmap: unable to grow backing store")

	// ErrOutOfRange is returned when a read falls outside the committed size.
	ErrOutOfRange = errors.Error("mmap: read range outside committed size")

	// ErrReadOnly is returned when a mutating call reaches a read-only Appender.
	ErrReadOnly = errors.Error("mmap: append on a read-only store")
)
