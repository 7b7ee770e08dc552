// Package mmap implements the growable, memory-mapped backing store and the
// single-writer/many-reader Appender built on top of it. Mapping is done with
// github.com/edsrzf/mmap-go, the same library go-ethereum's freezer tables use
// to remap chained data/index file pairs as they grow.
package mmap

import (
	"os"
	"sort"
	"sync"

	mm "github.com/edsrzf/mmap-go"
)

// MinMmapBytes is the minimum capacity given to a newly created active
// mapping, whether growing a file-backed store or the in-memory buffer.
const MinMmapBytes = 4 * 1024 * 1024

// MaxMmapsCount is the number of simultaneously held inactive mappings
// allowed before GrowableMmap compacts them into one, keeping the live
// mapping count comfortably under common OS per-process mmap limits.
const MaxMmapsCount = 1024

// pageSize is cached once at process start. mmap (and mm.MapRegion) requires
// its file-offset argument to be a multiple of this, so every MapRegion call
// below goes through alignForMmap rather than mapping at an arbitrary byte
// offset directly.
var pageSize = int64(os.Getpagesize())

// alignForMmap rounds off down to the nearest page boundary at or before it,
// returning that aligned offset along with how many leading bytes of the
// resulting mapping must be skipped to reach off itself. Mapping from
// aligned instead of off keeps every mm.MapRegion call legal regardless of
// where a region's logical data happens to start in the file.
func alignForMmap(off int64) (aligned, skip int64) {
	skip = off % pageSize
	return off - skip, skip
}

// region is one mapped chunk of the backing store, file-backed or not. base
// is the logical byte-stream offset where the region begins; skip is the
// number of leading bytes of the underlying mapping discarded to land on
// that offset (see alignForMmap), always 0 in in-memory mode.
type region struct {
	base   int64 // file/byte offset where this region begins
	length int64 // bytes currently used within the region
	cap    int64 // total capacity of the region
	skip   int64
	file   mm.MMap
	mem    []byte
}

func (r *region) bytes() []byte {
	if r.file != nil {
		return []byte(r.file)[r.skip:]
	}
	return r.mem
}

// GrowableMmap manages an append-growable region of bytes backed by at most
// one file (or, in ephemeral mode, a single growable in-memory buffer).
type GrowableMmap struct {
	mu sync.RWMutex

	file      *os.File // nil in in-memory mode
	fileSize  int64    // physical size of the region governed by this GrowableMmap (excludes headerOff)
	headerOff int64    // fixed byte offset within file where this region's logical offset 0 begins

	inactive []*region // sealed, read-only prefix regions, ordered by base
	active   *region   // current mutable tail region, may be nil before first reserve

	minChunk int64
	maxMmaps int
	readOnly bool
}

// New creates a GrowableMmap backed by file, whose logical byte 0 sits at
// file offset headerOff (used to reserve a fixed-size header ahead of the
// growable region). headerOff need not be page-aligned: New maps from the
// nearest page boundary at or before it and skips the leading bytes (see
// alignForMmap). If the region is non-empty, committedSize bytes of its
// existing content (which may be less than the physical region size, see
// recovery) are treated as already reserved; bytes beyond committedSize
// within the region are free capacity to be overwritten.
// When readOnly is set, the mapping is PROT_READ and Reserve always fails.
func New(file *os.File, committedSize int64, readOnly bool, headerOff int64) (*GrowableMmap, error) {
	g := &GrowableMmap{
		file:      file,
		headerOff: headerOff,
		minChunk:  MinMmapBytes,
		maxMmaps:  MaxMmapsCount,
		readOnly:  readOnly,
	}

	info, err := file.Stat()
	if err != nil {
		return nil, err
	}
	g.fileSize = info.Size() - headerOff
	if g.fileSize < 0 {
		g.fileSize = 0
	}

	if g.fileSize == 0 {
		return g, nil
	}

	prot := mm.RDWR
	if readOnly {
		prot = mm.RDONLY
	}
	aligned, skip := alignForMmap(headerOff)
	mapped, err := mm.MapRegion(file, int(skip+g.fileSize), prot, 0, aligned)
	if err != nil {
		return nil, err
	}
	g.active = &region{base: 0, length: committedSize, cap: g.fileSize, skip: skip, file: mapped}
	return g, nil
}

// NewInMemory creates an ephemeral GrowableMmap with no backing file.
func NewInMemory() *GrowableMmap {
	return &GrowableMmap{
		minChunk: MinMmapBytes,
		maxMmaps: MaxMmapsCount,
	}
}

// Reserve returns a mutable slice of exactly size bytes at the current
// logical end of the store, along with the absolute offset it was placed
// at. The caller (the Appender) is the sole writer and serializes calls to
// Reserve externally; Reserve itself still takes the mapping-table lock
// because it may install a new mapping.
func (g *GrowableMmap) Reserve(size int64) (int64, []byte, error) {
	if g.readOnly {
		return 0, nil, ErrReadOnly
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if g.active != nil && g.active.cap-g.active.length >= size {
		off := g.active.base + g.active.length
		buf := g.active.bytes()[g.active.length : g.active.length+size]
		g.active.length += size
		return off, buf, nil
	}

	if g.active != nil {
		sealed := g.active
		sealed.cap = sealed.length
		g.inactive = append(g.inactive, sealed)
		g.active = nil
	}

	if len(g.inactive) >= g.maxMmaps {
		if err := g.compactLocked(); err != nil {
			return 0, nil, err
		}
	}

	grow := size
	if grow < g.minChunk {
		grow = g.minChunk
	}

	base := int64(0)
	if len(g.inactive) > 0 {
		last := g.inactive[len(g.inactive)-1]
		base = last.base + last.cap
	}

	if g.file != nil {
		newSize := base + grow
		if err := g.file.Truncate(g.headerOff + newSize); err != nil {
			return 0, nil, ErrStorageFull
		}
		aligned, skip := alignForMmap(g.headerOff + base)
		mapped, err := mm.MapRegion(g.file, int(skip+grow), mm.RDWR, 0, aligned)
		if err != nil {
			return 0, nil, ErrStorageFull
		}
		g.fileSize = newSize
		g.active = &region{base: base, cap: grow, skip: skip, file: mapped}
	} else {
		g.active = &region{base: base, cap: grow, mem: make([]byte, grow)}
	}

	buf := g.active.bytes()[0:size]
	g.active.length = size
	return base, buf, nil
}

// Read invokes fn with an immutable view of the size bytes starting at
// offset. The range must lie entirely within committed data; callers
// (Appender.Get) are responsible for bounding offset+size by actualSize.
// Because reservations never straddle a region boundary, the view handed
// to fn is always a single contiguous slice.
func (g *GrowableMmap) Read(offset, size int64, fn func([]byte) error) error {
	g.mu.RLock()
	defer g.mu.RUnlock()

	r := g.findRegionLocked(offset)
	if r == nil || offset+size > r.base+r.length {
		return ErrOutOfRange
	}
	start := offset - r.base
	return fn(r.bytes()[start : start+size])
}

func (g *GrowableMmap) findRegionLocked(offset int64) *region {
	if g.active != nil && offset >= g.active.base && offset < g.active.base+g.active.length {
		return g.active
	}
	i := sort.Search(len(g.inactive), func(i int) bool {
		return g.inactive[i].base+g.inactive[i].length > offset
	})
	if i < len(g.inactive) && offset >= g.inactive[i].base {
		return g.inactive[i]
	}
	return nil
}

// Flush synchronizes every mapped region touching committed data to disk.
// It is a no-op in in-memory mode.
func (g *GrowableMmap) Flush() error {
	if g.file == nil {
		return nil
	}
	g.mu.RLock()
	defer g.mu.RUnlock()

	if g.active != nil && g.active.file != nil {
		if err := g.active.file.Flush(); err != nil {
			return err
		}
	}
	for _, r := range g.inactive {
		if r.file != nil {
			if err := r.file.Flush(); err != nil {
				return err
			}
		}
	}
	return nil
}

// compactLocked unmaps all inactive regions and remaps the committed
// prefix they cover as a single inactive region. Callers must hold g.mu.
func (g *GrowableMmap) compactLocked() error {
	if len(g.inactive) == 0 {
		return nil
	}

	prefixLen := g.inactive[len(g.inactive)-1].base + g.inactive[len(g.inactive)-1].cap

	if g.file == nil {
		buf := make([]byte, 0, prefixLen)
		for _, r := range g.inactive {
			buf = append(buf, r.mem[:r.length]...)
		}
		g.inactive = []*region{{base: 0, length: int64(len(buf)), cap: int64(len(buf)), mem: buf}}
		return nil
	}

	for _, r := range g.inactive {
		if err := r.file.Unmap(); err != nil {
			return ErrMmapLimit
		}
	}

	aligned, skip := alignForMmap(g.headerOff)
	mapped, err := mm.MapRegion(g.file, int(skip+prefixLen), mm.RDONLY, 0, aligned)
	if err != nil {
		return ErrMmapLimit
	}
	g.inactive = []*region{{base: 0, length: prefixLen, cap: prefixLen, skip: skip, file: mapped}}
	return nil
}

// ShrinkTo trims the backing file (and the active mapping) to exactly size
// bytes, discarding any reserved-but-never-committed tail. It is called at
// graceful close and during recovery.
func (g *GrowableMmap) ShrinkTo(size int64) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.file == nil {
		if g.active != nil {
			g.active.length = size - g.active.base
			g.active.cap = g.active.length
		}
		return nil
	}

	for _, r := range g.inactive {
		if err := r.file.Unmap(); err != nil {
			return err
		}
	}
	g.inactive = nil
	if g.active != nil {
		if err := g.active.file.Unmap(); err != nil {
			return err
		}
		g.active = nil
	}

	if err := g.file.Truncate(g.headerOff + size); err != nil {
		return err
	}
	g.fileSize = size

	if size == 0 {
		return nil
	}

	aligned, skip := alignForMmap(g.headerOff)
	mapped, err := mm.MapRegion(g.file, int(skip+size), mm.RDWR, 0, aligned)
	if err != nil {
		return err
	}
	g.active = &region{base: 0, length: size, cap: size, skip: skip, file: mapped}
	return nil
}

// Close unmaps every live region. It does not close the backing file.
func (g *GrowableMmap) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	var firstErr error
	for _, r := range g.inactive {
		if r.file != nil {
			if err := r.file.Unmap(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}
	if g.active != nil && g.active.file != nil {
		if err := g.active.file.Unmap(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	g.inactive = nil
	g.active = nil
	return firstErr
}

// MappingCount reports the number of live mappings (inactive + active),
// used to assert the MaxMmapsCount bound in tests.
func (g *GrowableMmap) MappingCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	n := len(g.inactive)
	if g.active != nil {
		n++
	}
	return n
}
