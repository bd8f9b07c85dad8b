// Package memtable implements the in-memory write buffer: an arena-backed
// ordered map of encoded records plus the Add/AddMV/Get/GetMV/GetMVRange
// algorithms layered on top of it.
//
// This file provides SkipList, the ordered map backing the memtable:
// lock-free reads, single-writer inserts, randomized levels. The shape is
// carried over from a conventional memtable skiplist almost unchanged —
// only the key type is generalized from "memtable entry bytes" to "any
// arena-owned byte slice", since Memtable is now the one responsible for
// deciding single-version vs MV entry layout.
package memtable

import (
	"math/rand"
	"sync/atomic"
)

// Comparator compares two keys and returns negative/zero/positive for
// less-than/equal/greater-than.
type Comparator func(a, b []byte) int

// skipNode is a node in the skip list. Its key slice points into
// arena-owned memory; the node header itself is ordinary Go-managed
// memory, matching a raw-pointers-into-the-arena model.
type skipNode struct {
	key  []byte
	next []atomic.Pointer[skipNode]
}

func newSkipNode(key []byte, height int) *skipNode {
	return &skipNode{key: key, next: make([]atomic.Pointer[skipNode], height)}
}

func (n *skipNode) getNext(level int) *skipNode {
	return n.next[level].Load()
}

func (n *skipNode) setNext(level int, node *skipNode) {
	n.next[level].Store(node)
}

// SkipList is a lock-free-read skip list. Insert requires external
// single-writer synchronization; Seek/Next/Prev/Valid never block and never
// observe a torn node.
type SkipList struct {
	head      *skipNode
	maxHeight atomic.Int32
	compare   Comparator
	rng       *rand.Rand

	kMaxHeight  int
	kScaledInvB uint32

	count atomic.Int64
}

// NewSkipList creates a skip list with the default height/branching
// parameters (see Config in memtable.go).
func NewSkipList(cmp Comparator) *SkipList {
	return NewSkipListWithParams(cmp, DefaultMaxHeight, DefaultBranchingFactor)
}

// NewSkipListWithParams creates a skip list with explicit height/branching
// parameters.
func NewSkipListWithParams(cmp Comparator, maxHeight, branchingFactor int) *SkipList {
	if maxHeight <= 0 {
		maxHeight = DefaultMaxHeight
	}
	if branchingFactor <= 0 {
		branchingFactor = DefaultBranchingFactor
	}
	sl := &SkipList{
		head:        newSkipNode(nil, maxHeight),
		compare:     cmp,
		rng:         rand.New(rand.NewSource(0xDEADBEEF)),
		kMaxHeight:  maxHeight,
		kScaledInvB: uint32(0xFFFFFFFF) / uint32(branchingFactor),
	}
	sl.maxHeight.Store(1)
	return sl
}

// Insert adds key to the skip list.
// REQUIRES: external single-writer synchronization.
// REQUIRES: no equal key already present.
func (sl *SkipList) Insert(key []byte) {
	prev := make([]*skipNode, sl.kMaxHeight)
	x := sl.findGreaterOrEqual(key, prev)
	if x != nil && sl.compare(key, x.key) == 0 {
		return
	}

	height := sl.randomHeight()
	maxH := int(sl.maxHeight.Load())
	if height > maxH {
		for i := maxH; i < height; i++ {
			prev[i] = sl.head
		}
		sl.maxHeight.Store(int32(height))
	}

	node := newSkipNode(key, height)
	for i := range height {
		node.setNext(i, prev[i].getNext(i))
		prev[i].setNext(i, node)
	}
	sl.count.Add(1)
}

// Count returns the number of entries in the skip list.
func (sl *SkipList) Count() int64 {
	return sl.count.Load()
}

func (sl *SkipList) findGreaterOrEqual(key []byte, prev []*skipNode) *skipNode {
	x := sl.head
	level := int(sl.maxHeight.Load()) - 1
	for {
		next := x.getNext(level)
		if next != nil && sl.compare(key, next.key) > 0 {
			x = next
		} else {
			if prev != nil {
				prev[level] = x
			}
			if level == 0 {
				return next
			}
			level--
		}
	}
}

func (sl *SkipList) findLessThan(key []byte) *skipNode {
	x := sl.head
	level := int(sl.maxHeight.Load()) - 1
	for {
		next := x.getNext(level)
		if next != nil && sl.compare(next.key, key) < 0 {
			x = next
		} else {
			if level == 0 {
				if x == sl.head {
					return nil
				}
				return x
			}
			level--
		}
	}
}

func (sl *SkipList) findLast() *skipNode {
	x := sl.head
	level := int(sl.maxHeight.Load()) - 1
	for {
		next := x.getNext(level)
		if next != nil {
			x = next
		} else {
			if level == 0 {
				if x == sl.head {
					return nil
				}
				return x
			}
			level--
		}
	}
}

func (sl *SkipList) randomHeight() int {
	height := 1
	for height < sl.kMaxHeight && sl.rng.Uint32() < sl.kScaledInvB {
		height++
	}
	return height
}

// Iterator provides forward/backward traversal over a SkipList.
type Iterator struct {
	list *SkipList
	node *skipNode
}

// NewIterator returns an iterator positioned before the first entry; call
// a Seek method before reading.
func (sl *SkipList) NewIterator() *Iterator {
	return &Iterator{list: sl}
}

// Valid reports whether the iterator is positioned at an entry.
func (it *Iterator) Valid() bool {
	return it.node != nil
}

// Key returns the key at the current position. REQUIRES: Valid().
func (it *Iterator) Key() []byte {
	if it.node == nil {
		return nil
	}
	return it.node.key
}

// Next advances to the next entry. REQUIRES: Valid().
func (it *Iterator) Next() {
	if it.node != nil {
		it.node = it.node.getNext(0)
	}
}

// Prev moves to the previous entry. REQUIRES: Valid().
func (it *Iterator) Prev() {
	if it.node != nil {
		it.node = it.list.findLessThan(it.node.key)
	}
}

// Seek positions the iterator at the first entry with key >= target.
func (it *Iterator) Seek(target []byte) {
	it.node = it.list.findGreaterOrEqual(target, nil)
}

// SeekToFirst positions the iterator at the first entry.
func (it *Iterator) SeekToFirst() {
	it.node = it.list.head.getNext(0)
}

// SeekToLast positions the iterator at the last entry.
func (it *Iterator) SeekToLast() {
	it.node = it.list.findLast()
}
