package batch

import (
	"testing"

	"github.com/stdgeodesic/chronokv/internal/logging"
	"github.com/stdgeodesic/chronokv/internal/memtable"
	"github.com/stdgeodesic/chronokv/internal/mvformat"
)

// TestInsertIntoAssignsSequenceByPosition mirrors
// original_source/db/write_batch_mv_test.cc's Multiple case: records are
// replayed with sequence numbers base_sequence, base_sequence+1, ...,
// assigned by position in the batch rather than read off the wire.
func TestInsertIntoAssignsSequenceByPosition(t *testing.T) {
	wb := New()
	wb.SetSequence(100)
	wb.Put([]byte("a"), 10, []byte("va"))
	wb.Put([]byte("b"), 20, []byte("vb"))

	mt := memtable.NewMV(memtable.Config{})
	if err := InsertInto(wb, mt, logging.Discard); err != nil {
		t.Fatal(err)
	}

	val, _, found, err := mt.GetMV([]byte("a"), 10, mvformat.MaxSequenceNumber)
	if err != nil || !found || string(val) != "va" {
		t.Errorf("a: val=%q found=%v err=%v", val, found, err)
	}
	val, _, found, err = mt.GetMV([]byte("b"), 20, mvformat.MaxSequenceNumber)
	if err != nil || !found || string(val) != "vb" {
		t.Errorf("b: val=%q found=%v err=%v", val, found, err)
	}

	// Sequence 100 (a's) must not be visible to a snapshot taken before it.
	_, _, found, err = mt.GetMV([]byte("a"), 10, 99)
	if err != nil || found {
		t.Errorf("a should not be visible at snapshot 99: found=%v err=%v", found, err)
	}
}

// TestInsertIntoAppendedBatchRenumbers mirrors the Append case end to end:
// after appending, every record — regardless of which batch originated it —
// gets a sequence number from the final assembled position.
func TestInsertIntoAppendedBatchRenumbers(t *testing.T) {
	b1 := New()
	b1.SetSequence(500)
	b1.Put([]byte("a"), 1, []byte("va"))

	b2 := New()
	b2.SetSequence(999) // ignored
	b2.Put([]byte("b"), 2, []byte("vb"))
	b2.Delete([]byte("c"), 3)

	b1.Append(b2)

	mt := memtable.NewMV(memtable.Config{})
	if err := InsertInto(b1, mt, logging.Discard); err != nil {
		t.Fatal(err)
	}

	// a got seq 500, b got 501, c's delete got 502.
	_, _, found, err := mt.GetMV([]byte("a"), 1, 500)
	if err != nil || !found {
		t.Errorf("a visible at snapshot 500: found=%v err=%v", found, err)
	}
	_, _, found, err = mt.GetMV([]byte("b"), 2, 500)
	if err != nil || found {
		t.Errorf("b should not be visible at snapshot 500 (seq 501): found=%v err=%v", found, err)
	}
	_, _, found, err = mt.GetMV([]byte("b"), 2, 501)
	if err != nil || !found {
		t.Errorf("b visible at snapshot 501: found=%v err=%v", found, err)
	}
}

func TestInsertIntoStopsAtCorruption(t *testing.T) {
	wb := New()
	wb.Put([]byte("a"), 1, []byte("va"))
	wb.Put([]byte("b"), 2, []byte("vb"))
	raw := wb.Contents()
	wb.SetContents(raw[:len(raw)-1])

	mt := memtable.NewMV(memtable.Config{})
	err := InsertInto(wb, mt, logging.Discard)
	if err != ErrCorrupted {
		t.Fatalf("err = %v, want ErrCorrupted", err)
	}

	// The prefix that decoded cleanly was still inserted.
	_, _, found, gErr := mt.GetMV([]byte("a"), 1, mvformat.MaxSequenceNumber)
	if gErr != nil || !found {
		t.Errorf("a should have been inserted before the corruption: found=%v err=%v", found, gErr)
	}
}
