package mvformat

import "github.com/stdgeodesic/chronokv/internal/encoding"

// UserComparator is the capability set a caller-supplied key order must
// provide: a total order over user keys, plus the two index-shortening
// helpers used by FindShortestSeparator/FindShortSuccessor below. This
// mirrors the root package's Comparator interface (comparator.go), kept
// narrow here so this package doesn't import the root package.
type UserComparator interface {
	Compare(a, b []byte) int
	FindShortestSeparator(a, b []byte) []byte
	FindShortSuccessor(a []byte) []byte
}

// InternalKeyComparator orders single-version internal keys: user key
// ascending, then the packed (sequence, type) tag descending so the newest
// version of a user key sorts first.
type InternalKeyComparator struct {
	User UserComparator
}

// NewInternalKeyComparator wraps a user comparator.
func NewInternalKeyComparator(user UserComparator) *InternalKeyComparator {
	return &InternalKeyComparator{User: user}
}

// Compare orders by user key ascending, then by sequence descending so the
// newest write for a key comes first.
func (c *InternalKeyComparator) Compare(a, b []byte) int {
	ua, ub := ExtractUserKey(a), ExtractUserKey(b)
	if ua == nil {
		ua = a
	}
	if ub == nil {
		ub = b
	}
	if cmp := c.User.Compare(ua, ub); cmp != 0 {
		return cmp
	}
	if len(a) < NumInternalBytes || len(b) < NumInternalBytes {
		return 0
	}
	tagA := encoding.DecodeFixed64(a[len(a)-NumInternalBytes:])
	tagB := encoding.DecodeFixed64(b[len(b)-NumInternalBytes:])
	switch {
	case tagA > tagB:
		return -1
	case tagA < tagB:
		return 1
	default:
		return 0
	}
}

// CompareUserKey compares just the user-key portion of two internal keys.
func (c *InternalKeyComparator) CompareUserKey(a, b []byte) int {
	ua, ub := ExtractUserKey(a), ExtractUserKey(b)
	if ua == nil {
		ua = a
	}
	if ub == nil {
		ub = b
	}
	return c.User.Compare(ua, ub)
}

// MVInternalKeyComparator orders multi-version internal keys: user key
// ascending, then valid_time descending, then the packed tag descending.
type MVInternalKeyComparator struct {
	User UserComparator
}

// NewMVInternalKeyComparator wraps a user comparator.
func NewMVInternalKeyComparator(user UserComparator) *MVInternalKeyComparator {
	return &MVInternalKeyComparator{User: user}
}

// Compare implements the MV ordering.
func (c *MVInternalKeyComparator) Compare(a, b []byte) int {
	ua, ub := ExtractMVUserKey(a), ExtractMVUserKey(b)
	if ua == nil {
		ua = a
	}
	if ub == nil {
		ub = b
	}
	if cmp := c.User.Compare(ua, ub); cmp != 0 {
		return cmp
	}
	if len(a) < NumMVInternalBytes || len(b) < NumMVInternalBytes {
		return 0
	}
	vtA := ExtractMVValidTime(a)
	vtB := ExtractMVValidTime(b)
	switch {
	case vtA > vtB:
		return -1
	case vtA < vtB:
		return 1
	}
	tagA := encoding.DecodeFixed64(a[len(a)-NumMVInternalBytes : len(a)-8])
	tagB := encoding.DecodeFixed64(b[len(b)-NumMVInternalBytes : len(b)-8])
	switch {
	case tagA > tagB:
		return -1
	case tagA < tagB:
		return 1
	default:
		return 0
	}
}

// CompareUserKey compares just the user-key portion of two MV internal keys.
func (c *MVInternalKeyComparator) CompareUserKey(a, b []byte) int {
	ua, ub := ExtractMVUserKey(a), ExtractMVUserKey(b)
	if ua == nil {
		ua = a
	}
	if ub == nil {
		ub = b
	}
	return c.User.Compare(ua, ub)
}

// ---------------------------------------------------------------------------
// Shortest separator / successor
// ---------------------------------------------------------------------------

// FindShortestSeparator implements the single-version separator policy:
// given start < limit in internal-key order, produce r with
// start <= r < limit and |r| minimized where possible; falls back to start
// unchanged whenever no shorter key can be proven correct.
func (c *InternalKeyComparator) FindShortestSeparator(start, limit []byte) []byte {
	startUser := ExtractUserKey(start)
	limitUser := ExtractUserKey(limit)
	if startUser == nil || limitUser == nil {
		return start
	}
	if c.User.Compare(startUser, limitUser) == 0 {
		return start
	}
	sep := c.User.FindShortestSeparator(startUser, limitUser)
	if len(sep) >= len(startUser) {
		return start
	}
	if c.User.Compare(startUser, sep) > 0 || c.User.Compare(sep, limitUser) >= 0 {
		return start
	}
	dst := append([]byte{}, sep...)
	return encoding.AppendFixed64(dst, PackSequenceAndType(MaxSequenceNumber, ValueTypeForSeek))
}

// FindShortSuccessor implements the single-version successor policy:
// produce a short key >= start.
func (c *InternalKeyComparator) FindShortSuccessor(start []byte) []byte {
	startUser := ExtractUserKey(start)
	if startUser == nil {
		return start
	}
	succ := c.User.FindShortSuccessor(startUser)
	if len(succ) >= len(startUser) || c.User.Compare(startUser, succ) >= 0 {
		return start
	}
	dst := append([]byte{}, succ...)
	return encoding.AppendFixed64(dst, PackSequenceAndType(MaxSequenceNumber, ValueTypeForSeek))
}

// FindShortestSeparator is the MV analogue. The separator gap left open by
// a single-version-only reference implementation is resolved here rather
// than left unimplemented: the same policy applies, with the synthetic
// key's valid_time set to MaxValidTime so the record it stands in for sorts
// first within its user_key group — newest-valid-time-first, exactly as a
// real record with the same user_key would under the MV comparator.
func (c *MVInternalKeyComparator) FindShortestSeparator(start, limit []byte) []byte {
	startUser := ExtractMVUserKey(start)
	limitUser := ExtractMVUserKey(limit)
	if startUser == nil || limitUser == nil {
		return start
	}
	if c.User.Compare(startUser, limitUser) == 0 {
		return start
	}
	sep := c.User.FindShortestSeparator(startUser, limitUser)
	if len(sep) >= len(startUser) {
		return start
	}
	if c.User.Compare(startUser, sep) > 0 || c.User.Compare(sep, limitUser) >= 0 {
		return start
	}
	dst := append([]byte{}, sep...)
	dst = encoding.AppendFixed64(dst, PackSequenceAndType(MaxSequenceNumber, ValueTypeForSeek))
	return encoding.AppendFixed64(dst, MaxValidTime)
}

// FindShortSuccessor is the MV analogue of InternalKeyComparator's method.
func (c *MVInternalKeyComparator) FindShortSuccessor(start []byte) []byte {
	startUser := ExtractMVUserKey(start)
	if startUser == nil {
		return start
	}
	succ := c.User.FindShortSuccessor(startUser)
	if len(succ) >= len(startUser) || c.User.Compare(startUser, succ) >= 0 {
		return start
	}
	dst := append([]byte{}, succ...)
	dst = encoding.AppendFixed64(dst, PackSequenceAndType(MaxSequenceNumber, ValueTypeForSeek))
	return encoding.AppendFixed64(dst, MaxValidTime)
}
