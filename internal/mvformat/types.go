// Package mvformat provides the internal key format for a temporal-MVCC
// memtable: user_key plus an 8-byte (sequence, type) trailer, optionally
// followed by an 8-byte little-endian valid_time for multi-version keys.
//
// Single-version form:       user_key || fixed64_le(sequence<<8 | type)
// Multi-version (MV) form:   user_key || fixed64_le(sequence<<8 | type) || fixed64_le(valid_time)
//
// The packed-trailer idea, the InternalKeyComparator shape, and the
// separator/successor helpers follow a conventional LSM dbformat package,
// but the value-type enum is cut down to the two tags this store actually
// needs (Value, Deletion) and every MV-specific type, constant, and
// comparator is new.
package mvformat

import (
	"fmt"

	"github.com/stdgeodesic/chronokv/internal/encoding"
)

// SequenceNumber is a 56-bit sequence number, stored in the upper 56 bits
// of the 64-bit trailer.
type SequenceNumber uint64

// MaxSequenceNumber is the largest representable sequence number (2^56 - 1).
const MaxSequenceNumber SequenceNumber = (1 << 56) - 1

// NumInternalBytes is the trailer size for a single-version internal key.
const NumInternalBytes = 8

// NumMVInternalBytes is the trailer size for a multi-version internal key:
// the 8-byte (sequence, type) tag plus an 8-byte valid_time.
const NumMVInternalBytes = 16

// MaxValidTime is the largest representable valid_time (2^64 - 1). It is a
// legitimate value a caller may insert, not a reserved sentinel; it is only
// ever *computed* as the open-ended upper bound of the newest version for a
// key.
const MaxValidTime uint64 = ^uint64(0)

// ValueType tags what a record represents. Only two tags exist in this
// subsystem: the WAL/SST-only tags RocksDB needs (merge, blob index, 2PC
// markers, ...) have no collaborator here to interpret them, so they are
// not carried forward.
type ValueType uint8

const (
	// TypeDeletion marks a tombstone: the key has no value from this
	// version's validity period onward until a newer version appears.
	TypeDeletion ValueType = 0x00
	// TypeValue marks a record carrying real data.
	TypeValue ValueType = 0x01
)

// ValueTypeForSeek is the sentinel type used when building a lookup key, so
// that seeking lands on the newest visible version of a user key. It is
// pinned to Value (0x01) rather than a high-numbered RocksDB-style
// kTypeValuePreferredSeqno sentinel — there is no "preferred seqno" concept
// in this format, and any value higher than TypeValue would work equally
// well since sequence dominates the trailer comparison, but 0x01 is the
// convention used here.
const ValueTypeForSeek = TypeValue

// PackSequenceAndType packs a sequence number and type into a 64-bit tag:
// sequence in the upper 56 bits, type in the lower 8.
func PackSequenceAndType(seq SequenceNumber, t ValueType) uint64 {
	return (uint64(seq) << 8) | uint64(t)
}

// UnpackSequenceAndType splits a packed 64-bit tag back into its sequence
// number and type.
func UnpackSequenceAndType(packed uint64) (SequenceNumber, ValueType) {
	return SequenceNumber(packed >> 8), ValueType(packed & 0xFF)
}

// ---------------------------------------------------------------------------
// Single-version internal key
// ---------------------------------------------------------------------------

// ParsedInternalKey is a decoded single-version internal key.
type ParsedInternalKey struct {
	UserKey  []byte
	Sequence SequenceNumber
	Type     ValueType
}

func (p *ParsedInternalKey) String() string {
	return fmt.Sprintf("%q@%d/%d", p.UserKey, p.Sequence, p.Type)
}

// EncodedLength returns the encoded size of p.
func (p *ParsedInternalKey) EncodedLength() int {
	return len(p.UserKey) + NumInternalBytes
}

// AppendInternalKey appends the encoding of key to dst and returns the
// extended slice.
func AppendInternalKey(dst []byte, key *ParsedInternalKey) []byte {
	dst = append(dst, key.UserKey...)
	return encoding.AppendFixed64(dst, PackSequenceAndType(key.Sequence, key.Type))
}

// ParseInternalKey decodes a single-version internal key. ok is false if
// data is shorter than the trailer.
func ParseInternalKey(data []byte) (key ParsedInternalKey, ok bool) {
	n := len(data)
	if n < NumInternalBytes {
		return ParsedInternalKey{}, false
	}
	packed := encoding.DecodeFixed64(data[n-NumInternalBytes:])
	seq, t := UnpackSequenceAndType(packed)
	return ParsedInternalKey{UserKey: data[:n-NumInternalBytes], Sequence: seq, Type: t}, true
}

// ExtractUserKey returns the user-key prefix of an internal key, or nil if
// internalKey is too short to hold a trailer.
func ExtractUserKey(internalKey []byte) []byte {
	if len(internalKey) < NumInternalBytes {
		return nil
	}
	return internalKey[:len(internalKey)-NumInternalBytes]
}

// ---------------------------------------------------------------------------
// Multi-version (MV) internal key
// ---------------------------------------------------------------------------

// ParsedMVInternalKey is a decoded multi-version internal key. Field order
// in constructors mirrors original_source/db/dbformat_mv_test.cc's
// ParsedMVInternalKey(user_key, seq, type, valid_time) convention.
type ParsedMVInternalKey struct {
	UserKey   []byte
	Sequence  SequenceNumber
	Type      ValueType
	ValidTime uint64
}

func (p *ParsedMVInternalKey) String() string {
	return fmt.Sprintf("%q@%d/%d vt=%d", p.UserKey, p.Sequence, p.Type, p.ValidTime)
}

// EncodedLength returns the encoded size of p.
func (p *ParsedMVInternalKey) EncodedLength() int {
	return len(p.UserKey) + NumMVInternalBytes
}

// AppendMVInternalKey appends the encoding of key to dst and returns the
// extended slice: user_key || fixed64_le(tag) || fixed64_le(valid_time).
func AppendMVInternalKey(dst []byte, key *ParsedMVInternalKey) []byte {
	dst = append(dst, key.UserKey...)
	dst = encoding.AppendFixed64(dst, PackSequenceAndType(key.Sequence, key.Type))
	return encoding.AppendFixed64(dst, key.ValidTime)
}

// ParseMVInternalKey decodes a multi-version internal key. ok is false if
// data is shorter than 16 bytes; a truncated encoding is always rejected
// rather than silently parsed.
func ParseMVInternalKey(data []byte) (key ParsedMVInternalKey, ok bool) {
	n := len(data)
	if n < NumMVInternalBytes {
		return ParsedMVInternalKey{}, false
	}
	tagOffset := n - NumMVInternalBytes
	packed := encoding.DecodeFixed64(data[tagOffset : tagOffset+8])
	seq, t := UnpackSequenceAndType(packed)
	vt := encoding.DecodeFixed64(data[tagOffset+8:])
	return ParsedMVInternalKey{
		UserKey:   data[:tagOffset],
		Sequence:  seq,
		Type:      t,
		ValidTime: vt,
	}, true
}

// ExtractMVUserKey returns the user-key prefix of an MV internal key, or
// nil if internalKey is too short to hold an MV trailer.
func ExtractMVUserKey(internalKey []byte) []byte {
	if len(internalKey) < NumMVInternalBytes {
		return nil
	}
	return internalKey[:len(internalKey)-NumMVInternalBytes]
}

// ExtractMVValidTime returns the valid_time field of an MV internal key.
// REQUIRES: len(internalKey) >= NumMVInternalBytes.
func ExtractMVValidTime(internalKey []byte) uint64 {
	n := len(internalKey)
	return encoding.DecodeFixed64(internalKey[n-8:])
}

// ExtractMVSequenceAndType returns the sequence number and type of an MV
// internal key. REQUIRES: len(internalKey) >= NumMVInternalBytes.
func ExtractMVSequenceAndType(internalKey []byte) (SequenceNumber, ValueType) {
	n := len(internalKey)
	packed := encoding.DecodeFixed64(internalKey[n-16 : n-8])
	return UnpackSequenceAndType(packed)
}
