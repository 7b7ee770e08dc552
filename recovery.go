package flatstore

import (
	"encoding/binary"
	"os"
)

// recoverIndex determines how many entries at the head of the index file
// are genuinely committed, tolerating a zero-padded tail left by a crash
// between Reserve and the actualSize publish.
//
// A committed entry never has length 0 (ErrZeroLengthRecord forbids
// zero-length records), so the zero-padded tail — offset 0, length 0 — is
// unambiguous at any index past 0, and at index 0 a genuine entry always
// has offset 0 too, so length 0 alone distinguishes it. Validity is
// therefore monotonic: entries [0, k] valid, (k, end) all zero, letting a
// binary search locate the boundary in O(log n) reads instead of a full
// linear scan.
func recoverIndex(f *os.File) (committedEntries uint64, flatSize uint64, err error) {
	info, err := f.Stat()
	if err != nil {
		return 0, 0, err
	}
	contentSize := info.Size() - headerSize
	if contentSize < 0 {
		return 0, 0, ErrCorrupted
	}
	total := contentSize / IndexEntrySize

	readEntry := func(i int64) (offset, length uint64, err error) {
		buf := make([]byte, IndexEntrySize)
		if _, err := f.ReadAt(buf, headerSize+i*IndexEntrySize); err != nil {
			return 0, 0, err
		}
		return binary.LittleEndian.Uint64(buf[0:8]), binary.LittleEndian.Uint64(buf[8:16]), nil
	}

	valid := func(i int64) (bool, error) {
		offset, length, err := readEntry(i)
		if err != nil {
			return false, err
		}
		if length == 0 {
			return false, nil
		}
		if i == 0 {
			return offset == 0, nil
		}
		prevOffset, _, err := readEntry(i - 1)
		if err != nil {
			return false, err
		}
		return offset > prevOffset, nil
	}

	lo, hi := int64(0), total
	for lo < hi {
		mid := (lo + hi) / 2
		ok, verr := valid(mid)
		if verr != nil {
			return 0, 0, verr
		}
		if ok {
			lo = mid + 1
		} else {
			hi = mid
		}
	}

	if lo == 0 {
		return 0, 0, nil
	}
	lastOffset, lastLength, err := readEntry(lo - 1)
	if err != nil {
		return 0, 0, err
	}
	return uint64(lo), lastOffset + lastLength, nil
}
