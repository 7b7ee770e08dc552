package flatstore

import (
	"os"

	"github.com/nomasters/flatstore/mmap"
)

// FlatFile is an Appender over raw, variable-length record bytes addressed
// purely by (offset, length), with no in-band framing of its own. Framing
// and addressing by sequence number are SeqnoIndex's job.
type FlatFile struct {
	a *mmap.Appender
}

// openFlatFile opens (creating if necessary) the data file at path, reads
// and validates its header, and wraps it in an Appender whose committed
// size is supplied by the caller, which may be less than the header's
// advisory mirror.
func openFlatFile(path string, committedSize uint64, readOnly bool) (*FlatFile, *os.File, error) {
	flag := os.O_RDWR | os.O_CREATE
	if readOnly {
		flag = os.O_RDONLY
	}
	f, err := os.OpenFile(path, flag, 0600)
	if err != nil {
		return nil, nil, err
	}
	if _, err := openHeader(f, dataMagic); err != nil {
		f.Close()
		return nil, nil, err
	}
	ff, err := newFlatFileFromFile(f, committedSize, readOnly)
	if err != nil {
		f.Close()
		return nil, nil, err
	}
	return ff, f, nil
}

// newFlatFileFromFile wraps an already-open, header-validated data file
// whose recovered committed size is known (the database's recovery pass
// computes it from the index, not from this file).
func newFlatFileFromFile(f *os.File, committedSize uint64, readOnly bool) (*FlatFile, error) {
	gm, err := mmap.New(f, int64(committedSize), readOnly, headerSize)
	if err != nil {
		return nil, err
	}
	return &FlatFile{a: mmap.NewAppender(gm, committedSize)}, nil
}

// newFlatFileInMemory builds an ephemeral, non-persistent FlatFile.
func newFlatFileInMemory() *FlatFile {
	return &FlatFile{a: mmap.NewAppender(mmap.NewInMemory(), 0)}
}

// Append reserves size bytes, hands them to writer to fill, and returns the
// offset they were written at. The new bytes are not visible to Read until
// writer returns successfully and the write is flushed.
func (f *FlatFile) Append(size int, writer func([]byte) error) (int64, error) {
	return f.a.Append(int64(size), writer)
}

// Read invokes fn with the length bytes at offset, returning false if
// offset lies beyond the committed size.
func (f *FlatFile) Read(offset, length int64, fn func([]byte) error) (bool, error) {
	return f.a.Get(offset, length, fn)
}

// Size returns the committed byte count.
func (f *FlatFile) Size() uint64 { return f.a.MemorySize() }

// Flush forces durability of all committed data.
func (f *FlatFile) Flush() error { return f.a.Flush() }

// ShrinkToSize truncates away any reserved-but-uncommitted tail bytes.
func (f *FlatFile) ShrinkToSize() error { return f.a.ShrinkToSize() }

// Close releases the underlying mappings.
func (f *FlatFile) Close() error { return f.a.Close() }

// MappingCount reports the number of live mmap chunks.
func (f *FlatFile) MappingCount() int { return f.a.MappingCount() }
