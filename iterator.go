package flatstore

// Iterator yields records in seqno order starting from the seqno it was
// created with, up to a fixed end snapshotted at creation time: records
// appended to the Database afterward are not observed.
type Iterator struct {
	db   *Database
	next uint64
	end  uint64
}

// Next returns the next record, or ok=false once the iterator is exhausted.
func (it *Iterator) Next() (record []byte, ok bool, err error) {
	if it.next >= it.end {
		return nil, false, nil
	}
	record, ok, err = it.db.GetBySeqno(it.next)
	if err != nil {
		return nil, false, err
	}
	it.next++
	return record, ok, nil
}
