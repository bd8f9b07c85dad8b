package memtable

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/stdgeodesic/chronokv"
	"github.com/stdgeodesic/chronokv/internal/arena"
	"github.com/stdgeodesic/chronokv/internal/encoding"
	"github.com/stdgeodesic/chronokv/internal/logging"
	"github.com/stdgeodesic/chronokv/internal/mempool"
	"github.com/stdgeodesic/chronokv/internal/mvformat"
)

// Default skip-list parameters, grounded on a conventional memtable options idiom.
const (
	DefaultMaxHeight       = 12
	DefaultBranchingFactor = 4
	defaultArenaBlockSize  = 4096
)

// ErrWrongMode is returned when a single-version method is called on an MV
// memtable, or vice versa. A memtable's mode — whether it holds
// single-version or multi-version records — is fixed at construction.
var ErrWrongMode = errors.New("memtable: method not valid for this memtable's mode")

// ErrNotFound is the sentinel for a key with no visible version. Get and
// GetMV do not return it: they report that case as found=false with a nil
// error.
var ErrNotFound = errors.New("memtable: key not found")

// errCorruptEntry signals a record that failed to decode: a truncated
// length prefix or trailer, never produced by this package's own Add/AddMV.
var errCorruptEntry = errors.New("memtable: corrupt entry")

// Config carries the tunable parameters for a new Memtable.
type Config struct {
	// MaxHeight bounds the skip list's level count.
	MaxHeight int
	// BranchingFactor controls how quickly level probability decays; a
	// larger value produces shorter towers on average.
	BranchingFactor int
	// ArenaBlockSize is the block size requested from Pool by the
	// memtable's Arena.
	ArenaBlockSize int
	// Pool supplies the memtable's Arena with backing blocks. If nil,
	// mempool.GlobalPool is used.
	Pool *mempool.Pool
	// Comparator orders user keys. If nil, a plain byte comparator is
	// used (this layer never imputes domain meaning onto user keys).
	Comparator mvformat.UserComparator
	// Logger receives construction/destruction/corruption diagnostics.
	// If nil, logging.Discard is used.
	Logger logging.Logger
}

func (c Config) withDefaults() Config {
	if c.MaxHeight <= 0 {
		c.MaxHeight = DefaultMaxHeight
	}
	if c.BranchingFactor <= 0 {
		c.BranchingFactor = DefaultBranchingFactor
	}
	if c.ArenaBlockSize <= 0 {
		c.ArenaBlockSize = defaultArenaBlockSize
	}
	if c.Comparator == nil {
		// chronokv.BytewiseComparator satisfies mvformat.UserComparator
		// structurally (Compare/FindShortestSeparator/FindShortSuccessor);
		// reused here rather than re-implemented so there is exactly one
		// bytewise comparator in the module.
		c.Comparator = chronokv.BytewiseComparator{}
	}
	if logging.IsNil(c.Logger) {
		c.Logger = logging.Discard
	}
	return c
}

// Memtable is the in-memory write buffer: an ordered map of arena-owned
// encoded records, reference-counted across concurrent readers, written by
// exactly one goroutine at a time.
//
// A Memtable operates in exactly one of two modes, fixed at construction:
//   - single-version mode, via Add/Get, using an 8-byte-trailer internal
//     key ordered by InternalKeyComparator
//   - MV (multi-version) mode, via AddMV/GetMV/GetMVRange, using a
//     16-byte-trailer internal key ordered by MVInternalKeyComparator
//
// A design exposing both Add/Get and AddMV/GetMV/GetMVRange against one
// shared skiplist, with one comparator that compares raw length-prefixed
// slices regardless of trailer width, was considered and rejected: that
// only produces the ordering this package actually needs — user key, then
// valid_time, then sequence — when the comparator knows it is looking at MV
// entries. Fed an 8-byte-trailer entry, the same byte-oblivious comparator
// would mistake the trailer's first bytes for user-key bytes. Mixing both
// entry shapes in one skiplist is therefore only sound when every entry
// present shares the same trailer width, i.e. when the table is entirely
// one mode or the other. This implementation makes that requirement
// explicit instead of implicit: mode is selected once, at construction, and
// the wrong-mode methods return ErrWrongMode rather than silently
// miscomparing keys.
type Memtable struct {
	mv  bool
	cfg Config

	arena    *arena.Arena
	skiplist *SkipList

	icmp  *mvformat.InternalKeyComparator
	micmp *mvformat.MVInternalKeyComparator

	mu sync.Mutex

	refs atomic.Int32

	firstSeqno    atomic.Uint64
	earliestSeqno atomic.Uint64
	entryCount    atomic.Int64

	// validTimeHi is the ceiling this memtable closes an open-ended
	// validity period at. It starts at
	// MaxValidTime — this memtable alone has no information bounding how
	// long its newest version stays valid — and SetValidTimeHi can tighten
	// it once a caller learns of one (e.g. a newer memtable superseding
	// this one).
	validTimeHi atomic.Uint64
}

// New constructs a single-version memtable.
func New(cfg Config) *Memtable {
	return newMemtable(cfg, false)
}

// NewMV constructs a multi-version (temporal) memtable.
func NewMV(cfg Config) *Memtable {
	return newMemtable(cfg, true)
}

func newMemtable(cfg Config, mv bool) *Memtable {
	cfg = cfg.withDefaults()
	m := &Memtable{
		mv:    mv,
		cfg:   cfg,
		arena: arena.New(cfg.ArenaBlockSize, cfg.Pool),
	}
	m.refs.Store(1)
	m.firstSeqno.Store(uint64(mvformat.MaxSequenceNumber))
	m.earliestSeqno.Store(uint64(mvformat.MaxSequenceNumber))
	m.validTimeHi.Store(mvformat.MaxValidTime)

	if mv {
		m.micmp = mvformat.NewMVInternalKeyComparator(cfg.Comparator)
		m.skiplist = NewSkipListWithParams(entryComparator(m.micmp.Compare), cfg.MaxHeight, cfg.BranchingFactor)
		cfg.Logger.Debugf(logging.NSMemtable+"created MV memtable (maxHeight=%d branching=%d)", cfg.MaxHeight, cfg.BranchingFactor)
	} else {
		m.icmp = mvformat.NewInternalKeyComparator(cfg.Comparator)
		m.skiplist = NewSkipListWithParams(entryComparator(m.icmp.Compare), cfg.MaxHeight, cfg.BranchingFactor)
		cfg.Logger.Debugf(logging.NSMemtable+"created single-version memtable (maxHeight=%d branching=%d)", cfg.MaxHeight, cfg.BranchingFactor)
	}
	return m
}

// entryComparator orders skiplist keys — records from buildEntry and seek
// keys, both starting with a varint32-length-prefixed internal key — by
// that internal key alone.
func entryComparator(cmp func(a, b []byte) int) Comparator {
	return func(a, b []byte) int {
		ka, _, _ := encoding.DecodeLengthPrefixedSlice(a)
		kb, _, _ := encoding.DecodeLengthPrefixedSlice(b)
		return cmp(ka, kb)
	}
}

// IsMV reports whether this memtable was constructed in MV mode.
func (m *Memtable) IsMV() bool { return m.mv }

// Ref increments the reference count.
func (m *Memtable) Ref() {
	m.refs.Add(1)
}

// Unref decrements the reference count, releasing the arena back to its
// pool when it drops to zero.
func (m *Memtable) Unref() {
	if m.refs.Add(-1) <= 0 {
		m.cfg.Logger.Debugf(logging.NSMemtable + "refs reached zero, releasing arena")
		m.arena.Release()
	}
}

// Count returns the number of entries inserted so far.
func (m *Memtable) Count() int64 {
	return m.entryCount.Load()
}

// Empty reports whether no entries have been inserted.
func (m *Memtable) Empty() bool {
	return m.Count() == 0
}

// ApproximateMemoryUsage returns the Arena's reservation total, used by a
// caller to decide when to switch to a new memtable.
func (m *Memtable) ApproximateMemoryUsage() int64 {
	return m.arena.ApproximateMemoryUsage()
}

func (m *Memtable) updateSeqnoTracking(seq mvformat.SequenceNumber) {
	for {
		cur := m.firstSeqno.Load()
		if cur != uint64(mvformat.MaxSequenceNumber) {
			break
		}
		if m.firstSeqno.CompareAndSwap(cur, uint64(seq)) {
			break
		}
	}
	for {
		cur := m.earliestSeqno.Load()
		if uint64(seq) >= cur {
			break
		}
		if m.earliestSeqno.CompareAndSwap(cur, uint64(seq)) {
			break
		}
	}
}

// buildEntry encodes a memtable record: varint32(len(internalKey)) ||
// internalKey || varint32(len(value)) || value, allocated out of the
// memtable's Arena.
func (m *Memtable) buildEntry(internalKey, value []byte) []byte {
	ikLen := len(internalKey)
	vLen := len(value)
	total := encoding.VarintLength(uint64(ikLen)) + ikLen + encoding.VarintLength(uint64(vLen)) + vLen

	buf := m.arena.Allocate(total)
	dst := buf[:0]
	dst = encoding.AppendVarint32(dst, uint32(ikLen))
	dst = append(dst, internalKey...)
	dst = encoding.AppendVarint32(dst, uint32(vLen))
	dst = append(dst, value...)
	return buf
}

func parseEntry(entry []byte) (internalKey, value []byte, ok bool) {
	s := encoding.NewSlice(entry)
	ik, valid := s.GetLengthPrefixedSlice()
	if !valid {
		return nil, nil, false
	}
	v, valid := s.GetLengthPrefixedSlice()
	if !valid {
		return nil, nil, false
	}
	return ik, v, true
}

// ---------------------------------------------------------------------------
// Single-version operations
// ---------------------------------------------------------------------------

// Add inserts a single-version record. REQUIRES: single-writer discipline
// from the caller; the memtable was constructed via New, not NewMV.
func (m *Memtable) Add(seq mvformat.SequenceNumber, typ mvformat.ValueType, key, value []byte) error {
	if m.mv {
		return ErrWrongMode
	}
	ik := mvformat.AppendInternalKey(nil, &mvformat.ParsedInternalKey{UserKey: key, Sequence: seq, Type: typ})
	entry := m.buildEntry(ik, value)
	m.mu.Lock()
	m.skiplist.Insert(entry)
	m.mu.Unlock()
	m.entryCount.Add(1)
	m.updateSeqnoTracking(seq)
	return nil
}

// Get looks up the newest version of key visible at or before snapshot.
// found is false when no live record for key exists at or below snapshot,
// or the newest such record is a deletion tombstone.
func (m *Memtable) Get(key []byte, snapshot mvformat.SequenceNumber) (value []byte, found bool, err error) {
	if m.mv {
		return nil, false, ErrWrongMode
	}
	lookup := mvformat.AppendInternalKey(nil, &mvformat.ParsedInternalKey{
		UserKey: key, Sequence: snapshot, Type: mvformat.ValueTypeForSeek,
	})

	it := m.skiplist.NewIterator()
	it.Seek(encoding.AppendLengthPrefixedSlice(nil, lookup))
	if !it.Valid() {
		return nil, false, nil
	}
	ik, val, ok := parseEntry(it.Key())
	if !ok {
		return nil, false, errCorruptEntry
	}
	if m.icmp.CompareUserKey(ik, lookup) != 0 {
		return nil, false, nil
	}
	parsed, ok := mvformat.ParseInternalKey(ik)
	if !ok {
		return nil, false, errCorruptEntry
	}
	switch parsed.Type {
	case mvformat.TypeValue:
		return val, true, nil
	case mvformat.TypeDeletion:
		return nil, false, nil
	default:
		return nil, false, errCorruptEntry
	}
}

// ---------------------------------------------------------------------------
// Multi-version operations
// ---------------------------------------------------------------------------

// AddMV inserts a temporal record. REQUIRES: the memtable was constructed
// via NewMV, not New.
func (m *Memtable) AddMV(seq mvformat.SequenceNumber, typ mvformat.ValueType, key []byte, validTime uint64, value []byte) error {
	if !m.mv {
		return ErrWrongMode
	}
	ik := mvformat.AppendMVInternalKey(nil, &mvformat.ParsedMVInternalKey{
		UserKey: key, Sequence: seq, Type: typ, ValidTime: validTime,
	})
	entry := m.buildEntry(ik, value)
	m.mu.Lock()
	m.skiplist.Insert(entry)
	m.mu.Unlock()
	m.entryCount.Add(1)
	m.updateSeqnoTracking(seq)
	return nil
}

// SetValidTimeHi tightens the ceiling GetMV/GetMVRange use to close the
// open-ended period of this memtable's newest version of a key. It only
// ever lowers the bound, mirroring the monotonic tightening in
// original_source's valid_time_hi_ field; REQUIRES: the memtable was
// constructed via NewMV.
func (m *Memtable) SetValidTimeHi(t uint64) {
	for {
		cur := m.validTimeHi.Load()
		if t >= cur {
			return
		}
		if m.validTimeHi.CompareAndSwap(cur, t) {
			return
		}
	}
}

// Period is the half-open valid-time interval [Lo, Hi) a GetMV/GetMVRange
// result was valid for.
type Period struct {
	Lo uint64
	Hi uint64
}

// GetMV returns the version of key that was valid at validTime, as of
// snapshot — a point-in-time lookup. It walks consecutive records sharing
// key's user key, tracking the half-open period each one covers and
// skipping records whose sequence number is above snapshot.
func (m *Memtable) GetMV(key []byte, validTime uint64, snapshot mvformat.SequenceNumber) (value []byte, period Period, found bool, err error) {
	if !m.mv {
		return nil, Period{}, false, ErrWrongMode
	}
	// The seek key always carries MaxValidTime, not validTime: entries for
	// a user key sort by valid_time descending, so this lands on the
	// newest version first regardless of which valid_time the caller
	// asked about. The walk below then steps to older versions until it
	// finds the one whose period covers validTime.
	lookup := mvformat.AppendMVInternalKey(nil, &mvformat.ParsedMVInternalKey{
		UserKey: key, Sequence: snapshot, Type: mvformat.ValueTypeForSeek, ValidTime: mvformat.MaxValidTime,
	})

	it := m.skiplist.NewIterator()
	it.Seek(encoding.AppendLengthPrefixedSlice(nil, lookup))
	if !it.Valid() {
		return nil, Period{}, false, nil
	}
	ik, val, ok := parseEntry(it.Key())
	if !ok {
		return nil, Period{}, false, errCorruptEntry
	}
	if m.micmp.CompareUserKey(ik, lookup) != 0 {
		return nil, Period{}, false, nil
	}

	hi := min(mvformat.MaxValidTime, m.validTimeHi.Load())
	lo := mvformat.ExtractMVValidTime(ik)

	for {
		if seq, _ := mvformat.ExtractMVSequenceAndType(ik); seq <= snapshot {
			if lo <= validTime {
				break
			}
			hi = lo
		}
		it.Next()
		if !it.Valid() {
			return nil, Period{}, false, nil
		}
		ik2, val2, ok2 := parseEntry(it.Key())
		if !ok2 {
			return nil, Period{}, false, errCorruptEntry
		}
		if m.micmp.CompareUserKey(ik2, lookup) != 0 {
			return nil, Period{}, false, nil
		}
		ik, val = ik2, val2
		lo = mvformat.ExtractMVValidTime(ik)
	}

	_, typ := mvformat.ExtractMVSequenceAndType(ik)
	period = Period{Lo: lo, Hi: hi}
	switch typ {
	case mvformat.TypeValue:
		return val, period, true, nil
	case mvformat.TypeDeletion:
		return nil, period, false, nil
	default:
		return nil, Period{}, false, errCorruptEntry
	}
}

// ResultVersion is one element of GetMVRange's result: a value plus the
// period of valid-time it held that value. Type distinguishes a real
// record (TypeValue, Value holds the stored bytes) from a tombstone
// (TypeDeletion, Value is empty) — callers must check Type rather than
// infer a deletion from an empty Value, since an empty string is itself a
// legitimate value for a Put.
type ResultVersion struct {
	Value  []byte
	Period Period
	Type   mvformat.ValueType
}

// GetMVRange returns every version of key whose validity period overlaps
// [timeLo, timeHi), as of snapshot — a range-over-time lookup, newest-period
// first.
func (m *Memtable) GetMVRange(key []byte, timeLo, timeHi uint64, snapshot mvformat.SequenceNumber) (versions []ResultVersion, err error) {
	if !m.mv {
		return nil, ErrWrongMode
	}
	lookup := mvformat.AppendMVInternalKey(nil, &mvformat.ParsedMVInternalKey{
		UserKey: key, Sequence: snapshot, Type: mvformat.ValueTypeForSeek, ValidTime: timeHi,
	})

	it := m.skiplist.NewIterator()
	it.Seek(encoding.AppendLengthPrefixedSlice(nil, lookup))
	if !it.Valid() {
		return nil, nil
	}
	ik, val, ok := parseEntry(it.Key())
	if !ok {
		return nil, errCorruptEntry
	}
	if m.micmp.CompareUserKey(ik, lookup) != 0 {
		return nil, nil
	}

	hi := min(mvformat.MaxValidTime, m.validTimeHi.Load())
	lo := mvformat.ExtractMVValidTime(ik)

	for hi > timeLo {
		if seq, typ := mvformat.ExtractMVSequenceAndType(ik); seq <= snapshot {
			resultVal := val
			if typ == mvformat.TypeDeletion {
				resultVal = nil
			}
			versions = append(versions, ResultVersion{Value: resultVal, Period: Period{Lo: lo, Hi: hi}, Type: typ})
			hi = lo
		}
		it.Next()
		if !it.Valid() {
			break
		}
		ik2, val2, ok2 := parseEntry(it.Key())
		if !ok2 {
			return versions, errCorruptEntry
		}
		if m.micmp.CompareUserKey(ik2, lookup) != 0 {
			break
		}
		ik, val = ik2, val2
		lo = mvformat.ExtractMVValidTime(ik)
	}
	return versions, nil
}

// ---------------------------------------------------------------------------
// Iteration
// ---------------------------------------------------------------------------

// MemtableIterator walks every record in key order.
type MemtableIterator struct {
	it *Iterator
}

// NewIterator returns an iterator over every record. Valid starts false;
// call a Seek method first.
func (m *Memtable) NewIterator() *MemtableIterator {
	return &MemtableIterator{it: m.skiplist.NewIterator()}
}

func (mi *MemtableIterator) Valid() bool    { return mi.it.Valid() }
func (mi *MemtableIterator) Next()          { mi.it.Next() }
func (mi *MemtableIterator) Prev()          { mi.it.Prev() }
func (mi *MemtableIterator) SeekToFirst()   { mi.it.SeekToFirst() }
func (mi *MemtableIterator) SeekToLast()    { mi.it.SeekToLast() }
func (mi *MemtableIterator) Seek(ik []byte) { mi.it.Seek(encoding.AppendLengthPrefixedSlice(nil, ik)) }

// InternalKey returns the raw internal key at the current position.
// REQUIRES: Valid().
func (mi *MemtableIterator) InternalKey() []byte {
	ik, _, _ := parseEntry(mi.it.Key())
	return ik
}

// Value returns the raw value at the current position. REQUIRES: Valid().
func (mi *MemtableIterator) Value() []byte {
	_, v, _ := parseEntry(mi.it.Key())
	return v
}
