package batch

import (
	"github.com/stdgeodesic/chronokv/internal/logging"
	"github.com/stdgeodesic/chronokv/internal/memtable"
	"github.com/stdgeodesic/chronokv/internal/mvformat"
)

// memtableInserter adapts a Memtable to Handler, assigning sequence
// numbers contiguously starting at base as records are decoded —
// record i receives base+i (original_source/db/write_batch_mv_test.cc's
// Append test pins this exact numbering).
type memtableInserter struct {
	mt   *memtable.Memtable
	next mvformat.SequenceNumber
}

func (h *memtableInserter) Put(key []byte, validTime uint64, value []byte) error {
	err := h.mt.AddMV(h.next, mvformat.TypeValue, key, validTime, value)
	h.next++
	return err
}

func (h *memtableInserter) Delete(key []byte, validTime uint64) error {
	err := h.mt.AddMV(h.next, mvformat.TypeDeletion, key, validTime, nil)
	h.next++
	return err
}

// InsertInto replays every record of wb into mt, assigning sequence
// numbers base_sequence, base_sequence+1, ... in record order. mt must
// have been constructed with NewMV. On a decode error partway through,
// the records successfully decoded before the error have already been
// inserted — callers get the successfully-parsed prefix, not an
// all-or-nothing failure; the returned error is ErrCorrupted.
func InsertInto(wb *WriteBatchMV, mt *memtable.Memtable, logger logging.Logger) error {
	h := &memtableInserter{mt: mt, next: wb.Sequence()}
	err := wb.Iterate(h)
	if err != nil && !logging.IsNil(logger) {
		logger.Warnf(logging.NSMemtable+"WriteBatchMV replay stopped at record %d: %v", h.next-wb.Sequence(), err)
	}
	return err
}
