// Package arena implements a bump allocator for memtable record storage.
//
// All record bytes for a memtable are carved out of an Arena. Allocation
// is monotonic: memory handed out by Allocate is never reclaimed until the
// whole Arena is dropped with the owning memtable. This mirrors RocksDB's
// memory/arena.h; the sibling internal/mempool package gestures at this in
// its doc comment without actually implementing a bump allocator — mempool
// only pools fixed-size scratch buffers for encode/decode. Arena instead
// backs long-lived skiplist node storage.
//
// Reference: RocksDB v10.7.5 memory/arena.h, memory/arena.cc.
package arena

import (
	"sync/atomic"

	"github.com/stdgeodesic/chronokv/internal/mempool"
)

// defaultBlockSize is the size of each block requested from the pool once
// the current block is exhausted.
const defaultBlockSize = 4096

// align is the alignment guaranteed for every allocation, sufficient for
// 64-bit loads/stores into allocated regions.
const align = 8

// fallbackThresholdDivisor sets the fraction of a block (1/divisor) above
// which a request is served from its own dedicated block instead of fragmenting the current
// block (RocksDB uses block_size/4; kept the same here).
const fallbackThresholdDivisor = 4

// Arena is a monotonic bump allocator. It is not safe for concurrent
// Allocate calls; the owning memtable's single-writer discipline is what
// makes this safe in practice. Concurrent readers only ever read already
// allocated regions, which Allocate never mutates after returning them.
type Arena struct {
	blockSize int
	pool      *mempool.Pool

	cur    []byte // current block, pos..cap is unused space
	pos    int
	blocks [][]byte // kept alive so the pool's buffers aren't GC'd mid-use

	memoryUsage atomic.Int64
}

// New creates an Arena that requests blocks of blockSize bytes from pool.
// If pool is nil, mempool.GlobalPool is used. If blockSize <= 0,
// defaultBlockSize is used.
func New(blockSize int, pool *mempool.Pool) *Arena {
	if blockSize <= 0 {
		blockSize = defaultBlockSize
	}
	if pool == nil {
		pool = mempool.GlobalPool
	}
	return &Arena{blockSize: blockSize, pool: pool}
}

// Allocate returns a size-byte region with 8-byte alignment, valid for the
// lifetime of the Arena. The returned slice has len == cap == size.
func (a *Arena) Allocate(size int) []byte {
	if size <= 0 {
		return nil
	}
	if size > a.blockSize/fallbackThresholdDivisor {
		// Large allocation: give it a dedicated block so it doesn't waste
		// the remainder of the current one.
		return a.allocateFallback(size)
	}

	if a.pos+size > len(a.cur) {
		a.installBlock(a.blockSize)
	}
	b := a.cur[a.pos : a.pos+size : a.pos+size]
	a.pos += size
	a.pos = alignUp(a.pos)
	return b
}

// allocateFallback serves an oversized request from the pool directly,
// without disturbing the bump pointer of the current block.
func (a *Arena) allocateFallback(size int) []byte {
	buf := a.pool.Get(size)
	buf = buf[:size]
	a.blocks = append(a.blocks, buf)
	a.memoryUsage.Add(int64(size))
	return buf
}

func (a *Arena) installBlock(size int) {
	buf := a.pool.Get(size)
	buf = buf[:size]
	a.blocks = append(a.blocks, buf)
	a.cur = buf
	a.pos = 0
	a.memoryUsage.Add(int64(size))
}

func alignUp(pos int) int {
	return (pos + align - 1) &^ (align - 1)
}

// ApproximateMemoryUsage returns the total number of bytes reserved from
// the pool so far, including any unused tail of the current block.
func (a *Arena) ApproximateMemoryUsage() int64 {
	return a.memoryUsage.Load()
}

// Release returns every block owned by the Arena to its pool. The Arena
// must not be used afterward. Called once by the owning memtable's Unref
// when the reference count drops to zero.
func (a *Arena) Release() {
	for _, b := range a.blocks {
		a.pool.Put(b)
	}
	a.blocks = nil
	a.cur = nil
	a.pos = 0
}
