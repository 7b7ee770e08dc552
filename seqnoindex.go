package flatstore

import (
	"encoding/binary"
	"os"

	"github.com/nomasters/flatstore/mmap"
)

// IndexEntrySize is the on-disk width of one SeqnoIndex entry: two 64-bit
// little-endian fields (offset, length), fixed at 64 bits regardless of
// host word size so index files are portable across architectures.
const IndexEntrySize = 16

// SeqnoIndex is an Appender of fixed-width (offset, length) entries, one
// per committed record, addressed by sequence number (its position in the
// index, counting from 0). It never stores the record bytes themselves.
type SeqnoIndex struct {
	a *mmap.Appender
}

func openSeqnoIndex(path string, committedEntries uint64, readOnly bool) (*SeqnoIndex, *os.File, error) {
	flag := os.O_RDWR | os.O_CREATE
	if readOnly {
		flag = os.O_RDONLY
	}
	f, err := os.OpenFile(path, flag, 0600)
	if err != nil {
		return nil, nil, err
	}
	if _, err := openHeader(f, indexMagic); err != nil {
		f.Close()
		return nil, nil, err
	}
	idx, err := newSeqnoIndexFromFile(f, committedEntries, readOnly)
	if err != nil {
		f.Close()
		return nil, nil, err
	}
	return idx, f, nil
}

// newSeqnoIndexFromFile wraps an already-open, header-validated index file
// whose recovered committed entry count is known.
func newSeqnoIndexFromFile(f *os.File, committedEntries uint64, readOnly bool) (*SeqnoIndex, error) {
	committedBytes := committedEntries * IndexEntrySize
	gm, err := mmap.New(f, int64(committedBytes), readOnly, headerSize)
	if err != nil {
		return nil, err
	}
	return &SeqnoIndex{a: mmap.NewAppender(gm, committedBytes)}, nil
}

func newSeqnoIndexInMemory() *SeqnoIndex {
	return &SeqnoIndex{a: mmap.NewAppender(mmap.NewInMemory(), 0)}
}

// Append records one more (offset, length) entry at the next sequence
// number.
func (s *SeqnoIndex) Append(offset, length uint64) error {
	_, err := s.a.Append(IndexEntrySize, func(buf []byte) error {
		binary.LittleEndian.PutUint64(buf[0:8], offset)
		binary.LittleEndian.PutUint64(buf[8:16], length)
		return nil
	})
	return err
}

// Entry returns the (offset, length) recorded for seqno, or ok=false if
// seqno is at or beyond Len.
func (s *SeqnoIndex) Entry(seqno uint64) (offset, length uint64, ok bool, err error) {
	ok, err = s.a.Get(int64(seqno)*IndexEntrySize, IndexEntrySize, func(buf []byte) error {
		offset = binary.LittleEndian.Uint64(buf[0:8])
		length = binary.LittleEndian.Uint64(buf[8:16])
		return nil
	})
	return offset, length, ok, err
}

// Len returns the number of committed entries.
func (s *SeqnoIndex) Len() uint64 { return s.a.MemorySize() / IndexEntrySize }

// Flush forces durability of all committed entries.
func (s *SeqnoIndex) Flush() error { return s.a.Flush() }

// ShrinkToSize truncates away any reserved-but-uncommitted tail bytes.
func (s *SeqnoIndex) ShrinkToSize() error { return s.a.ShrinkToSize() }

// Close releases the underlying mappings.
func (s *SeqnoIndex) Close() error { return s.a.Close() }

// MappingCount reports the number of live mmap chunks.
func (s *SeqnoIndex) MappingCount() int { return s.a.MappingCount() }
