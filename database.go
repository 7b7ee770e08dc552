// Package flatstore is a fast, reindexable, append-only, on-disk record
// store. It persists an ordered sequence of opaque byte records and
// exposes them by monotonically increasing sequence number, with
// lock-free concurrent reads against a single serialized writer.
package flatstore

import (
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/nomasters/flatstore/logger"
)

// On-disk layout: a store directory contains exactly these two files,
// plus a .lock sentinel used only for advisory locking.
const (
	flatFileName  = "flatfile"
	indexFileName = "seqno_index"
)

// Database is the append-only record store façade: one Appender for raw
// record bytes (FlatFile), one Appender for (offset, length) entries
// (SeqnoIndex), a single write mutex serializing Append/AppendBatch, and
// recovery at Open. Reads never take the write mutex.
type Database struct {
	log logger.Logger

	flat  *FlatFile
	index *SeqnoIndex

	flatFile  *os.File // nil in in-memory mode
	indexFile *os.File // nil in in-memory mode
	lockFile  *os.File // nil in read-only or in-memory mode

	mu       sync.Mutex // write lock; held by Append/AppendBatch and by Close
	readOnly bool
	closed   atomic.Bool // set by Close; checked by Append, AppendBatch, GetBySeqno and Flush

	closeOnce sync.Once
	closeErr  error
}

// Open opens (and creates, under ReadWrite, if missing) a file-backed store
// rooted at cfg.Dir, recovering from any zero-padded tail left by a
// previous ungraceful shutdown.
func Open(cfg *Config) (*Database, error) {
	if cfg == nil {
		cfg = DefaultConfig("")
	}
	log := cfg.logger()

	dir, err := validateStoreDirectory(cfg.Dir)
	if err != nil {
		return nil, err
	}

	readOnly := cfg.Mode == ReadOnly

	var lockFile *os.File
	if !readOnly {
		lockFile, err = lockDir(dir)
		if err != nil {
			return nil, err
		}
	}
	release := func() {
		if lockFile != nil {
			unlockDir(lockFile)
		}
	}

	indexPath := filepath.Join(dir, indexFileName)
	flatPath := filepath.Join(dir, flatFileName)

	indexFlag := os.O_RDWR | os.O_CREATE
	if readOnly {
		indexFlag = os.O_RDONLY
	}
	indexFile, err := os.OpenFile(indexPath, indexFlag, 0600)
	if err != nil {
		release()
		return nil, err
	}
	if _, err := openHeader(indexFile, indexMagic); err != nil {
		indexFile.Close()
		release()
		return nil, err
	}

	committedEntries, flatSize, err := recoverIndex(indexFile)
	if err != nil {
		indexFile.Close()
		release()
		return nil, err
	}
	log.Infof("flatstore: recovered %d index entries, flat size %d bytes", committedEntries, flatSize)

	index, err := newSeqnoIndexFromFile(indexFile, committedEntries, readOnly)
	if err != nil {
		indexFile.Close()
		release()
		return nil, err
	}

	flatFlag := os.O_RDWR | os.O_CREATE
	if readOnly {
		flatFlag = os.O_RDONLY
	}
	flatFile, err := os.OpenFile(flatPath, flatFlag, 0600)
	if err != nil {
		index.Close()
		indexFile.Close()
		release()
		return nil, err
	}
	if _, err := openHeader(flatFile, dataMagic); err != nil {
		flatFile.Close()
		index.Close()
		indexFile.Close()
		release()
		return nil, err
	}
	// The index must not reference bytes the data file does not hold.
	if info, err := flatFile.Stat(); err != nil || info.Size()-headerSize < int64(flatSize) {
		if err == nil {
			err = ErrCorrupted
		}
		flatFile.Close()
		index.Close()
		indexFile.Close()
		release()
		return nil, err
	}
	flat, err := newFlatFileFromFile(flatFile, flatSize, readOnly)
	if err != nil {
		flatFile.Close()
		index.Close()
		indexFile.Close()
		release()
		return nil, err
	}

	if !readOnly && (committedEntries > 0 || flatSize > 0) {
		if err := flat.ShrinkToSize(); err != nil {
			flat.Close()
			index.Close()
			flatFile.Close()
			indexFile.Close()
			release()
			return nil, err
		}
		if err := index.ShrinkToSize(); err != nil {
			flat.Close()
			index.Close()
			flatFile.Close()
			indexFile.Close()
			release()
			return nil, err
		}
	}

	return &Database{
		log:       log,
		flat:      flat,
		index:     index,
		flatFile:  flatFile,
		indexFile: indexFile,
		lockFile:  lockFile,
		readOnly:  readOnly,
	}, nil
}

// OpenInMemory opens an ephemeral, non-persistent store.
func OpenInMemory(log logger.Logger) *Database {
	if log == nil {
		log = logger.NewNoOp()
	}
	return &Database{
		log:   log,
		flat:  newFlatFileInMemory(),
		index: newSeqnoIndexInMemory(),
	}
}

// Append appends a single non-empty record and returns its seqno.
func (d *Database) Append(record []byte) (uint64, error) {
	if d.closed.Load() {
		return 0, ErrClosed
	}
	if len(record) == 0 {
		return 0, ErrZeroLengthRecord
	}
	if d.readOnly {
		return 0, ErrReadOnly
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	seqno, err := d.appendLocked(record)
	return seqno, err
}

// AppendBatch appends each record in order under a single hold of the write
// lock, returning the seqno of the first record appended. A failure
// partway through leaves earlier records in the batch committed.
func (d *Database) AppendBatch(records [][]byte) (first uint64, err error) {
	if d.closed.Load() {
		return 0, ErrClosed
	}
	if d.readOnly {
		return 0, ErrReadOnly
	}
	for _, r := range records {
		if len(r) == 0 {
			return 0, ErrZeroLengthRecord
		}
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	first = d.index.Len()
	for i, r := range records {
		if _, err := d.appendLocked(r); err != nil {
			if i == 0 {
				return 0, err
			}
			return first, err
		}
	}
	return first, nil
}

// appendLocked reserves and writes the record bytes, then publishes the
// index entry that makes them visible. Callers must hold d.mu.
func (d *Database) appendLocked(record []byte) (uint64, error) {
	seqno := d.index.Len()

	offset, err := d.flat.Append(len(record), func(buf []byte) error {
		copy(buf, record)
		return nil
	})
	if err != nil {
		return 0, err
	}

	// The flat-file actual_size store above already happened with release
	// ordering inside Appender.Append before this returns; publishing the
	// index entry next guarantees a reader that observes this index entry
	// can always read the referenced flat-file bytes.
	if err := d.index.Append(uint64(offset), uint64(len(record))); err != nil {
		return 0, err
	}
	return seqno, nil
}

// GetBySeqno returns the record at seqno, or ok=false if seqno is at or
// beyond Len.
func (d *Database) GetBySeqno(seqno uint64) (record []byte, ok bool, err error) {
	if d.closed.Load() {
		return nil, false, ErrClosed
	}
	offset, length, ok, err := d.index.Entry(seqno)
	if err != nil || !ok {
		return nil, false, err
	}
	if length == 0 {
		return nil, false, nil
	}
	var out []byte
	found, err := d.flat.Read(int64(offset), int64(length), func(b []byte) error {
		out = append(out, b...)
		return nil
	})
	if err != nil || !found {
		return nil, false, err
	}
	return out, true, nil
}

// Len returns the number of committed records.
func (d *Database) Len() uint64 { return d.index.Len() }

// IsEmpty reports whether Len() == 0.
func (d *Database) IsEmpty() bool { return d.Len() == 0 }

// Stats is a snapshot of diagnostic information about a Database, used by
// the CLI's stat command and by operators inspecting a live store.
type Stats struct {
	Len             uint64
	FlatFileBytes   uint64
	FlatFileMmaps   int
	SeqnoIndexBytes uint64
	SeqnoIndexMmaps int
}

// Stats returns a point-in-time snapshot of record count, committed byte
// sizes, and live mmap chunk counts for both backing files.
func (d *Database) Stats() Stats {
	return Stats{
		Len:             d.Len(),
		FlatFileBytes:   d.flat.Size(),
		FlatFileMmaps:   d.flat.MappingCount(),
		SeqnoIndexBytes: d.index.Len() * IndexEntrySize,
		SeqnoIndexMmaps: d.index.MappingCount(),
	}
}

// Last returns the most recently appended record, or ok=false if the store
// is empty.
func (d *Database) Last() (record []byte, ok bool, err error) {
	n := d.Len()
	if n == 0 {
		return nil, false, nil
	}
	return d.GetBySeqno(n - 1)
}

// Iter returns an iterator over every currently-committed record, starting
// at seqno 0.
func (d *Database) Iter() *Iterator { return d.IterFrom(0) }

// IterFrom returns an iterator starting at seqno start. It snapshots Len()
// at creation time: records appended afterward are not observed.
func (d *Database) IterFrom(start uint64) *Iterator {
	return &Iterator{db: d, next: start, end: d.Len()}
}

// Flush forces durability of all committed data in both files.
func (d *Database) Flush() error {
	if d.closed.Load() {
		return ErrClosed
	}
	if err := d.flat.Flush(); err != nil {
		return err
	}
	return d.index.Flush()
}

// Close flushes, shrinks both files to their exact committed length, and
// releases all mappings and the directory lock. Close is idempotent.
func (d *Database) Close() error {
	d.closeOnce.Do(func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		d.closed.Store(true)

		if !d.readOnly {
			if err := d.flat.ShrinkToSize(); err != nil {
				d.closeErr = err
			}
			if err := d.index.ShrinkToSize(); err != nil && d.closeErr == nil {
				d.closeErr = err
			}
			if d.flatFile != nil {
				if err := writeHeaderMirror(d.flatFile, dataMagic, d.flat.Size()); err != nil && d.closeErr == nil {
					d.closeErr = err
				}
			}
			if d.indexFile != nil {
				if err := writeHeaderMirror(d.indexFile, indexMagic, d.index.Len()); err != nil && d.closeErr == nil {
					d.closeErr = err
				}
			}
		}
		if err := d.flat.Close(); err != nil && d.closeErr == nil {
			d.closeErr = err
		}
		if err := d.index.Close(); err != nil && d.closeErr == nil {
			d.closeErr = err
		}
		if d.flatFile != nil {
			if err := d.flatFile.Close(); err != nil && d.closeErr == nil {
				d.closeErr = err
			}
		}
		if d.indexFile != nil {
			if err := d.indexFile.Close(); err != nil && d.closeErr == nil {
				d.closeErr = err
			}
		}
		if d.lockFile != nil {
			if err := unlockDir(d.lockFile); err != nil && d.closeErr == nil {
				d.closeErr = err
			}
		}
	})
	return d.closeErr
}
