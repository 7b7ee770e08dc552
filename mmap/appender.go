package mmap

import "sync/atomic"

// Appender wraps a GrowableMmap with atomic visibility control: a single
// writer may serialize calls to Append (serialization happens above this
// type, at the Database's write lock), while any number of readers call Get
// concurrently without ever blocking on the writer.
type Appender struct {
	mm *GrowableMmap

	// actualSize is the committed byte count. A reader that observes
	// actualSize == S is guaranteed that every successful Append ending at
	// or before S was fully written (atomic store/load gives the needed
	// release/acquire pairing).
	actualSize uint64
}

// NewAppender wraps mm, publishing committedSize as the initial actualSize.
func NewAppender(mm *GrowableMmap, committedSize uint64) *Appender {
	a := &Appender{mm: mm}
	atomic.StoreUint64(&a.actualSize, committedSize)
	return a
}

// Append reserves size bytes, hands them to writer, and on success flushes
// them to disk before publishing the new actualSize (the end offset of the
// reservation). If writer or the flush fails, the reserved bytes are
// abandoned in place and actualSize is not advanced; the next successful
// Append publishes its own end offset, leaving the abandoned bytes as a hole
// whose offset was never returned to any caller.
func (a *Appender) Append(size int64, writer func([]byte) error) (int64, error) {
	offset, buf, err := a.mm.Reserve(size)
	if err != nil {
		return 0, err
	}
	if err := writer(buf); err != nil {
		return 0, err
	}
	if err := a.mm.Flush(); err != nil {
		return 0, err
	}
	atomic.StoreUint64(&a.actualSize, uint64(offset+size))
	return offset, nil
}

// Get hands reader an immutable view of the bytes starting at offset, up to
// the currently committed size. It returns (false, nil) without invoking
// reader if offset is at or beyond the committed size.
func (a *Appender) Get(offset int64, length int64, reader func([]byte) error) (bool, error) {
	size := int64(atomic.LoadUint64(&a.actualSize))
	if offset < 0 || offset >= size {
		return false, nil
	}
	if offset+length > size {
		return false, ErrOutOfRange
	}
	if err := a.mm.Read(offset, length, reader); err != nil {
		return false, err
	}
	return true, nil
}

// MemorySize returns the current committed size.
func (a *Appender) MemorySize() uint64 {
	return atomic.LoadUint64(&a.actualSize)
}

// ShrinkToSize truncates the backing file to the committed size, discarding
// any abandoned tail bytes. Used on recovery and graceful close.
func (a *Appender) ShrinkToSize() error {
	return a.mm.ShrinkTo(int64(a.MemorySize()))
}

// Flush forces durability of all committed data.
func (a *Appender) Flush() error {
	return a.mm.Flush()
}

// Close releases the underlying mappings.
func (a *Appender) Close() error {
	return a.mm.Close()
}

// MappingCount reports the number of live mmap chunks, for diagnostics and
// tests asserting the MaxMmapsCount bound.
func (a *Appender) MappingCount() int {
	return a.mm.MappingCount()
}
