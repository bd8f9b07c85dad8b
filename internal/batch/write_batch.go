// Package batch implements WriteBatchMV, the atomic multi-write container:
// an ordered sequence of Put/Delete operations, each carrying the
// application-supplied valid_time its record is tagged with, replayed into
// a Memtable with contiguous sequence numbers assigned at replay time.
//
// WriteBatchMV wire format:
//
//	Header (12 bytes):
//	  - 8 bytes: base sequence number (little-endian uint64)
//	  - 4 bytes: count (little-endian uint32)
//	Records (repeated):
//	  - 1 byte: tag (0x00 Deletion, 0x01 Value)
//	  - length-prefixed key
//	  - 8 bytes: valid_time (little-endian uint64)
//	  - (Value only) length-prefixed value
//
// The header layout, the Put/Delete record split, and the Append/Iterate
// shape follow a conventional write-batch package, but the record tag
// space is cut down to the two opcodes this format uses (no column
// families, merge, range-delete, or 2PC markers — this subsystem has no
// collaborator for any of those), and every record carries valid_time.
//
// Reference: original_source/db/write_batch_mv_test.cc.
package batch

import (
	"encoding/binary"
	"errors"

	"github.com/stdgeodesic/chronokv/internal/encoding"
	"github.com/stdgeodesic/chronokv/internal/mvformat"
)

// HeaderSize is the size in bytes of the WriteBatchMV header (8 bytes base
// sequence + 4 bytes count).
const HeaderSize = 12

// Record tags. Only these two exist: there is no merge, range-delete,
// column-family, or 2PC concept in this format.
const (
	TagDeletion byte = 0x00
	TagValue    byte = 0x01
)

var (
	// ErrCorrupted indicates a malformed WriteBatchMV — a truncated tag,
	// length prefix, or valid_time field.
	ErrCorrupted = errors.New("batch: corrupted write batch")

	// ErrTooSmall indicates the batch is smaller than the header.
	ErrTooSmall = errors.New("batch: too small")
)

// WriteBatchMV is a sequence of Put/Delete operations sharing one base
// sequence number, assigned contiguously at InsertInto time (record i gets
// base_sequence + i).
type WriteBatchMV struct {
	data []byte
}

// New creates an empty WriteBatchMV.
func New() *WriteBatchMV {
	return &WriteBatchMV{data: make([]byte, HeaderSize)}
}

// NewFromData wraps existing encoded batch bytes. The data is not copied.
func NewFromData(data []byte) (*WriteBatchMV, error) {
	if len(data) < HeaderSize {
		return nil, ErrTooSmall
	}
	return &WriteBatchMV{data: data}, nil
}

// Clear resets the batch to empty, preserving its current base sequence.
func (wb *WriteBatchMV) Clear() {
	wb.data = wb.data[:HeaderSize]
	binary.LittleEndian.PutUint32(wb.data[8:12], 0)
}

// Contents returns the raw encoded batch, header included.
func (wb *WriteBatchMV) Contents() []byte {
	return wb.data
}

// SetContents replaces the raw encoded batch wholesale. Used by callers
// simulating truncation/corruption in tests.
func (wb *WriteBatchMV) SetContents(data []byte) {
	wb.data = data
}

// Clone returns a deep copy of wb.
func (wb *WriteBatchMV) Clone() *WriteBatchMV {
	clone := &WriteBatchMV{data: make([]byte, len(wb.data))}
	copy(clone.data, wb.data)
	return clone
}

// Size returns the encoded size of the batch in bytes.
func (wb *WriteBatchMV) Size() int {
	return len(wb.data)
}

// Count returns the number of Put/Delete records in the batch.
func (wb *WriteBatchMV) Count() uint32 {
	return binary.LittleEndian.Uint32(wb.data[8:12])
}

// SetCount sets the record count field directly.
func (wb *WriteBatchMV) SetCount(count uint32) {
	binary.LittleEndian.PutUint32(wb.data[8:12], count)
}

// Sequence returns the batch's base sequence number.
func (wb *WriteBatchMV) Sequence() mvformat.SequenceNumber {
	return mvformat.SequenceNumber(binary.LittleEndian.Uint64(wb.data[0:8]))
}

// SetSequence sets the batch's base sequence number.
func (wb *WriteBatchMV) SetSequence(seq mvformat.SequenceNumber) {
	binary.LittleEndian.PutUint64(wb.data[0:8], uint64(seq))
}

// Put appends a Put record.
func (wb *WriteBatchMV) Put(key []byte, validTime uint64, value []byte) {
	wb.data = append(wb.data, TagValue)
	wb.data = encoding.AppendLengthPrefixedSlice(wb.data, key)
	wb.data = encoding.AppendFixed64(wb.data, validTime)
	wb.data = encoding.AppendLengthPrefixedSlice(wb.data, value)
	wb.SetCount(wb.Count() + 1)
}

// Delete appends a Delete (tombstone) record.
func (wb *WriteBatchMV) Delete(key []byte, validTime uint64) {
	wb.data = append(wb.data, TagDeletion)
	wb.data = encoding.AppendLengthPrefixedSlice(wb.data, key)
	wb.data = encoding.AppendFixed64(wb.data, validTime)
	wb.SetCount(wb.Count() + 1)
}

// Append concatenates src's records onto wb. Per
// original_source/db/write_batch_mv_test.cc's Append test, wb's existing
// base sequence and count are authoritative: src's own sequence number is
// ignored, and src's records are renumbered as if they had been written
// directly to wb starting at wb's current count.
func (wb *WriteBatchMV) Append(src *WriteBatchMV) {
	if src.Count() == 0 {
		return
	}
	wb.data = append(wb.data, src.data[HeaderSize:]...)
	wb.SetCount(wb.Count() + src.Count())
}

// Record is one decoded Put or Delete entry.
type Record struct {
	Tag       byte
	Key       []byte
	ValidTime uint64
	Value     []byte // nil for Delete
}

// Handler receives each decoded record during Iterate.
type Handler interface {
	Put(key []byte, validTime uint64, value []byte) error
	Delete(key []byte, validTime uint64) error
}

// Iterate decodes each record in turn and calls handler, stopping at the
// first decode error (which is ErrCorrupted, possibly wrapped by the
// caller). Records successfully decoded before the error have already been
// delivered to handler.
func (wb *WriteBatchMV) Iterate(handler Handler) error {
	if len(wb.data) < HeaderSize {
		return ErrTooSmall
	}
	data := wb.data[HeaderSize:]
	for len(data) > 0 {
		tag := data[0]
		data = data[1:]

		key, rest, err := decodeLengthPrefixed(data)
		if err != nil {
			return err
		}
		data = rest

		validTime, rest2, err := decodeFixed64(data)
		if err != nil {
			return err
		}
		data = rest2

		switch tag {
		case TagValue:
			var value []byte
			value, data, err = decodeLengthPrefixed(data)
			if err != nil {
				return err
			}
			if err := handler.Put(key, validTime, value); err != nil {
				return err
			}
		case TagDeletion:
			if err := handler.Delete(key, validTime); err != nil {
				return err
			}
		default:
			return ErrCorrupted
		}
	}
	return nil
}

func decodeLengthPrefixed(data []byte) ([]byte, []byte, error) {
	if len(data) == 0 {
		return nil, nil, ErrCorrupted
	}
	length, n, err := encoding.DecodeVarint32(data)
	if err != nil {
		return nil, nil, ErrCorrupted
	}
	data = data[n:]
	if len(data) < int(length) {
		return nil, nil, ErrCorrupted
	}
	return data[:length], data[length:], nil
}

func decodeFixed64(data []byte) (uint64, []byte, error) {
	if len(data) < 8 {
		return 0, nil, ErrCorrupted
	}
	return encoding.DecodeFixed64(data), data[8:], nil
}
