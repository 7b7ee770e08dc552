package flatstore

import (
	"bytes"
	"encoding/binary"
	"os"

	"lukechampine.com/blake3"
)

// Every file-backed data and index file opens with a fixed 64-byte header:
// an 8-byte magic, a 4-byte format version, an 8-byte advisory committed-
// count mirror (entries for the index file, bytes for the data file), zero
// padding, and an 8-byte truncated blake3 digest
// of the preceding bytes. The mirror is advisory only: the Appender's own
// actualSize, not this field, governs what bytes are visible to readers.
// Only a magic mismatch or a bad checksum is treated as corruption; a stale
// mirror (written before the last few commits) is not.
const (
	dataMagic     = "FLATDATA"
	indexMagic    = "FLATIDX0"
	formatVersion = uint32(1)
	headerSize    = 64
	checksumSize  = 8
)

// checksumFor returns the truncated blake3 digest covering a header's
// non-checksum bytes (buf[:headerSize-checksumSize]).
func checksumFor(buf []byte) []byte {
	sum := blake3.Sum256(buf[0 : headerSize-checksumSize])
	return sum[:checksumSize]
}

func encodeHeader(magic string, committedCount uint64) []byte {
	buf := make([]byte, headerSize)
	copy(buf[0:8], magic)
	binary.LittleEndian.PutUint32(buf[8:12], formatVersion)
	binary.LittleEndian.PutUint64(buf[12:20], committedCount)
	copy(buf[headerSize-checksumSize:], checksumFor(buf))
	return buf
}

func decodeHeader(buf []byte, wantMagic string) (committedCount uint64, err error) {
	if len(buf) != headerSize {
		return 0, ErrCorrupted
	}
	if string(buf[0:8]) != wantMagic {
		return 0, ErrCorrupted
	}
	if !bytes.Equal(checksumFor(buf), buf[headerSize-checksumSize:]) {
		return 0, ErrCorrupted
	}
	if version := binary.LittleEndian.Uint32(buf[8:12]); version != formatVersion {
		return 0, ErrIncompatibleVersion
	}
	return binary.LittleEndian.Uint64(buf[12:20]), nil
}

// openHeader reads and validates f's header, initializing one with
// committedCount 0 if f is empty (a brand new file). It never writes to a
// non-empty file: updating the mirror is writeHeaderMirror's job.
func openHeader(f *os.File, magic string) (committedCount uint64, err error) {
	info, err := f.Stat()
	if err != nil {
		return 0, err
	}
	if info.Size() == 0 {
		if _, err := f.WriteAt(encodeHeader(magic, 0), 0); err != nil {
			return 0, err
		}
		return 0, nil
	}
	if info.Size() < headerSize {
		return 0, ErrCorrupted
	}
	buf := make([]byte, headerSize)
	if _, err := f.ReadAt(buf, 0); err != nil {
		return 0, err
	}
	return decodeHeader(buf, magic)
}

// writeHeaderMirror refreshes the advisory committed-count mirror. Called
// at graceful Close; never required for correctness of a subsequent Open.
func writeHeaderMirror(f *os.File, magic string, committedCount uint64) error {
	_, err := f.WriteAt(encodeHeader(magic, committedCount), 0)
	return err
}
