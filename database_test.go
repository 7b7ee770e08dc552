package flatstore

import (
	"bytes"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/nomasters/flatstore/mmap"
)

// S1 Basic: open empty DB, append two records, check every accessor.
func TestDatabaseBasic(t *testing.T) {
	t.Parallel()

	db := OpenInMemory(nil)
	defer db.Close()

	if !db.IsEmpty() {
		t.Fatalf("IsEmpty() = false on fresh database")
	}

	seqno0, err := db.Append([]byte("hello"))
	if err != nil {
		t.Fatalf("Append(hello): %v", err)
	}
	seqno1, err := db.Append([]byte("world"))
	if err != nil {
		t.Fatalf("Append(world): %v", err)
	}
	if seqno0 != 0 || seqno1 != 1 {
		t.Fatalf("seqnos = %d, %d, want 0, 1", seqno0, seqno1)
	}

	if got := db.Len(); got != 2 {
		t.Fatalf("Len() = %d, want 2", got)
	}

	rec0, ok, err := db.GetBySeqno(0)
	if err != nil || !ok || !bytes.Equal(rec0, []byte("hello")) {
		t.Fatalf("GetBySeqno(0) = %q, %v, %v, want hello, true, nil", rec0, ok, err)
	}
	rec1, ok, err := db.GetBySeqno(1)
	if err != nil || !ok || !bytes.Equal(rec1, []byte("world")) {
		t.Fatalf("GetBySeqno(1) = %q, %v, %v, want world, true, nil", rec1, ok, err)
	}

	last, ok, err := db.Last()
	if err != nil || !ok || !bytes.Equal(last, []byte("world")) {
		t.Fatalf("Last() = %q, %v, %v, want world, true, nil", last, ok, err)
	}

	var got [][]byte
	it := db.Iter()
	for {
		rec, ok, err := it.Next()
		if err != nil {
			t.Fatalf("iterator.Next: %v", err)
		}
		if !ok {
			break
		}
		got = append(got, rec)
	}
	want := [][]byte{[]byte("hello"), []byte("world")}
	if len(got) != len(want) {
		t.Fatalf("Iter() len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if !bytes.Equal(got[i], want[i]) {
			t.Errorf("Iter()[%d] = %q, want %q", i, got[i], want[i])
		}
	}

	if _, ok, err := db.GetBySeqno(2); err != nil || ok {
		t.Fatalf("GetBySeqno(2) = ok %v, err %v, want false, nil", ok, err)
	}
}

// S2 Persistence: close then reopen, expect identical results.
func TestDatabasePersistence(t *testing.T) {
	dir := t.TempDir()

	db, err := Open(DefaultConfig(dir))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := db.Append([]byte("hello")); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if _, err := db.Append([]byte("world")); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := db.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	db2, err := Open(DefaultConfig(dir))
	if err != nil {
		t.Fatalf("reopen Open: %v", err)
	}
	defer db2.Close()

	if got := db2.Len(); got != 2 {
		t.Fatalf("Len() after reopen = %d, want 2", got)
	}
	rec0, ok, err := db2.GetBySeqno(0)
	if err != nil || !ok || !bytes.Equal(rec0, []byte("hello")) {
		t.Fatalf("GetBySeqno(0) after reopen = %q, %v, %v", rec0, ok, err)
	}
	rec1, ok, err := db2.GetBySeqno(1)
	if err != nil || !ok || !bytes.Equal(rec1, []byte("world")) {
		t.Fatalf("GetBySeqno(1) after reopen = %q, %v, %v", rec1, ok, err)
	}

	// No further writes: reopening again must still show exactly the same
	// two records, with no extra data left behind by the first Close.
	if err := db2.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	db3, err := Open(DefaultConfig(dir))
	if err != nil {
		t.Fatalf("second reopen Open: %v", err)
	}
	defer db3.Close()
	if got := db3.Len(); got != 2 {
		t.Fatalf("Len() after second reopen = %d, want 2", got)
	}
}

// Large record crosses mapping: verify records keep exact offsets even
// when a later record forces a fresh underlying mmap chunk. Record sizes
// are scaled relative to mmap.MinMmapBytes so the largest one genuinely
// exceeds it and forces a new mapping with the package's real
// (un-overridable from outside the package) chunk size.
func TestDatabaseLargeRecordCrossesMapping(t *testing.T) {
	db := OpenInMemory(nil)
	defer db.Close()

	const minChunk = mmap.MinMmapBytes
	sizes := []int{3 * minChunk / 4, minChunk / 2, minChunk + minChunk/4}
	var records [][]byte
	var seqnos []uint64
	for _, size := range sizes {
		rec := make([]byte, size)
		for i := range rec {
			rec[i] = byte(size % 251)
		}
		records = append(records, rec)
		seqno, err := db.Append(rec)
		if err != nil {
			t.Fatalf("Append(%d bytes): %v", size, err)
		}
		seqnos = append(seqnos, seqno)
	}

	for i, want := range records {
		got, ok, err := db.GetBySeqno(seqnos[i])
		if err != nil || !ok {
			t.Fatalf("GetBySeqno(%d): ok=%v err=%v", seqnos[i], ok, err)
		}
		if !bytes.Equal(got, want) {
			t.Errorf("record %d mismatch", i)
		}
	}

	off2, _, _, err := db.index.Entry(2)
	if err != nil {
		t.Fatalf("Entry(2): %v", err)
	}
	if off2 != uint64(sizes[0]+sizes[1]) {
		t.Fatalf("offset_2 = %d, want %d", off2, sizes[0]+sizes[1])
	}
}

// S4 Zero-length rejection.
func TestDatabaseZeroLengthRejected(t *testing.T) {
	t.Parallel()

	db := OpenInMemory(nil)
	defer db.Close()

	if _, err := db.Append(nil); err != ErrZeroLengthRecord {
		t.Fatalf("Append(nil) = %v, want ErrZeroLengthRecord", err)
	}
	if _, err := db.Append([]byte{}); err != ErrZeroLengthRecord {
		t.Fatalf("Append([]byte{}) = %v, want ErrZeroLengthRecord", err)
	}
	if got := db.Len(); got != 0 {
		t.Fatalf("Len() = %d, want 0", got)
	}
}

// S5 Crash recovery: simulate an ungraceful shutdown by appending a
// zero-padded tail entry directly to the index file, then reopen.
func TestDatabaseCrashRecovery(t *testing.T) {
	dir := t.TempDir()

	db, err := Open(DefaultConfig(dir))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	records := [][]byte{[]byte("alpha"), []byte("beta"), []byte("gamma")}
	for _, r := range records {
		if _, err := db.Append(r); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
	if err := db.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	indexPath := filepath.Join(dir, indexFileName)
	if err := db.index.Close(); err != nil {
		t.Fatalf("index Close: %v", err)
	}
	if err := db.flat.Close(); err != nil {
		t.Fatalf("flat Close: %v", err)
	}
	db.flatFile.Close()
	db.indexFile.Close()
	unlockDir(db.lockFile)

	// Simulate the zero-padded tail a crash mid-append can leave: append
	// one more all-zero entry-worth of bytes after the last genuine entry.
	f, err := os.OpenFile(indexPath, os.O_RDWR|os.O_APPEND, 0600)
	if err != nil {
		t.Fatalf("reopen index file: %v", err)
	}
	if _, err := f.Write(make([]byte, IndexEntrySize)); err != nil {
		t.Fatalf("append zero tail: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	db2, err := Open(DefaultConfig(dir))
	if err != nil {
		t.Fatalf("reopen after simulated crash: %v", err)
	}
	defer db2.Close()

	if got := db2.Len(); got != uint64(len(records)) {
		t.Fatalf("Len() after recovery = %d, want %d", got, len(records))
	}
	for i, want := range records {
		got, ok, err := db2.GetBySeqno(uint64(i))
		if err != nil || !ok {
			t.Fatalf("GetBySeqno(%d): ok=%v err=%v", i, ok, err)
		}
		if !bytes.Equal(got, want) {
			t.Errorf("record %d = %q, want %q", i, got, want)
		}
	}
}

// S6 Concurrent readers: one writer appends while several readers poll
// random seqnos; every non-nil result must equal the true record.
func TestDatabaseConcurrentReaders(t *testing.T) {
	db := OpenInMemory(nil)
	defer db.Close()

	const n = 2000
	expected := make([][]byte, n)
	for i := range expected {
		expected[i] = []byte(fmt.Sprintf("record-number-%05d-padding", i))
	}

	var wg sync.WaitGroup
	stop := make(chan struct{})

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < n; i++ {
			if _, err := db.Append(expected[i]); err != nil {
				t.Errorf("Append(%d): %v", i, err)
				return
			}
		}
		close(stop)
	}()

	readerErr := make(chan error, 8)
	for r := 0; r < 8; r++ {
		wg.Add(1)
		go func(seed int64) {
			defer wg.Done()
			rnd := rand.New(rand.NewSource(seed))
			for {
				select {
				case <-stop:
					return
				default:
				}
				length := db.Len()
				if length == 0 {
					continue
				}
				i := rnd.Int63n(int64(length))
				rec, ok, err := db.GetBySeqno(uint64(i))
				if err != nil {
					readerErr <- fmt.Errorf("GetBySeqno(%d): %v", i, err)
					return
				}
				if ok && !bytes.Equal(rec, expected[i]) {
					readerErr <- fmt.Errorf("GetBySeqno(%d) = %q, want %q", i, rec, expected[i])
					return
				}
			}
		}(int64(r) + 1)
	}

	wg.Wait()
	close(readerErr)
	for err := range readerErr {
		t.Error(err)
	}

	if got := db.Len(); got != n {
		t.Fatalf("Len() = %d, want %d", got, n)
	}
}

// AppendBatch commits every record under a single hold of the write lock
// and returns the seqno of the first record in the batch.
func TestDatabaseAppendBatch(t *testing.T) {
	t.Parallel()

	db := OpenInMemory(nil)
	defer db.Close()

	records := [][]byte{[]byte("a"), []byte("bb"), []byte("ccc")}
	first, err := db.AppendBatch(records)
	if err != nil {
		t.Fatalf("AppendBatch: %v", err)
	}
	if first != 0 {
		t.Fatalf("first = %d, want 0", first)
	}
	if got := db.Len(); got != 3 {
		t.Fatalf("Len() = %d, want 3", got)
	}
	for i, want := range records {
		got, ok, err := db.GetBySeqno(uint64(i))
		if err != nil || !ok || !bytes.Equal(got, want) {
			t.Fatalf("GetBySeqno(%d) = %q, %v, %v, want %q", i, got, ok, err, want)
		}
	}

	if _, err := db.AppendBatch([][]byte{[]byte("ok"), {}}); err != ErrZeroLengthRecord {
		t.Fatalf("AppendBatch with a zero-length record = %v, want ErrZeroLengthRecord", err)
	}
	if got := db.Len(); got != 3 {
		t.Fatalf("Len() after rejected batch = %d, want 3 (unchanged)", got)
	}
}

// IterFrom snapshots Len() at creation: records appended afterward are not
// observed by an iterator already in flight.
func TestDatabaseIterFromSnapshotsLen(t *testing.T) {
	t.Parallel()

	db := OpenInMemory(nil)
	defer db.Close()

	for _, r := range [][]byte{[]byte("one"), []byte("two")} {
		if _, err := db.Append(r); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	it := db.IterFrom(0)
	if _, err := db.Append([]byte("three")); err != nil {
		t.Fatalf("Append: %v", err)
	}

	var seen int
	for {
		_, ok, err := it.Next()
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		if !ok {
			break
		}
		seen++
	}
	if seen != 2 {
		t.Fatalf("iterator observed %d records, want 2 (snapshotted before the third Append)", seen)
	}
	if got := db.Len(); got != 3 {
		t.Fatalf("Len() = %d, want 3", got)
	}
}

// ReadOnly mode rejects mutation and requires an existing store.
func TestDatabaseReadOnlyMode(t *testing.T) {
	dir := t.TempDir()

	db, err := Open(DefaultConfig(dir))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := db.Append([]byte("seed")); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := db.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	cfg := DefaultConfig(dir)
	cfg.Mode = ReadOnly
	ro, err := Open(cfg)
	if err != nil {
		t.Fatalf("Open read-only: %v", err)
	}
	defer ro.Close()

	if _, err := ro.Append([]byte("nope")); err != ErrReadOnly {
		t.Fatalf("Append on read-only store = %v, want ErrReadOnly", err)
	}
	rec, ok, err := ro.GetBySeqno(0)
	if err != nil || !ok || !bytes.Equal(rec, []byte("seed")) {
		t.Fatalf("GetBySeqno(0) on read-only store = %q, %v, %v", rec, ok, err)
	}
}

// A second ReadWrite Open against a directory already held by another
// ReadWrite Database fails fast instead of risking two unsynchronized
// writers.
func TestDatabaseDirectoryLockRejectsSecondWriter(t *testing.T) {
	dir := t.TempDir()

	db, err := Open(DefaultConfig(dir))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer db.Close()

	if _, err := Open(DefaultConfig(dir)); err != ErrLocked {
		t.Fatalf("second Open = %v, want ErrLocked", err)
	}
}
