// This file implements WriteBatchMV pooling for reduced allocation churn,
// following a conventional sync.Pool-backed write-batch pool idiom,
// retargeted from a generic WriteBatch to this package's WriteBatchMV.
package batch

import "sync"

// WriteBatchMVPool manages a pool of WriteBatchMV objects for reuse.
type WriteBatchMVPool struct {
	pool sync.Pool

	stats PoolStats
	mu    sync.Mutex
}

// PoolStats tracks pool usage statistics.
type PoolStats struct {
	Gets       uint64
	Hits       uint64
	Misses     uint64
	Puts       uint64
	Discarded  uint64
	TotalBytes uint64
}

// DefaultMaxBatchSize is the largest batch size still worth pooling;
// larger batches are left for the GC to reclaim.
const DefaultMaxBatchSize = 4 * 1024 * 1024

// NewWriteBatchMVPool creates an empty pool.
func NewWriteBatchMVPool() *WriteBatchMVPool {
	return &WriteBatchMVPool{
		pool: sync.Pool{New: func() any { return New() }},
	}
}

// Get retrieves a cleared WriteBatchMV from the pool.
func (p *WriteBatchMVPool) Get() *WriteBatchMV {
	p.mu.Lock()
	p.stats.Gets++
	p.mu.Unlock()

	wb, ok := p.pool.Get().(*WriteBatchMV)
	if !ok {
		wb = New()
	}
	wb.Clear()

	p.mu.Lock()
	if cap(wb.data) > HeaderSize {
		p.stats.Hits++
	} else {
		p.stats.Misses++
	}
	p.mu.Unlock()

	return wb
}

// Put returns a WriteBatchMV to the pool. Batches larger than
// DefaultMaxBatchSize are discarded instead of pooled.
func (p *WriteBatchMVPool) Put(wb *WriteBatchMV) {
	if wb == nil {
		return
	}
	p.mu.Lock()
	p.stats.Puts++
	p.stats.TotalBytes += uint64(len(wb.data))
	p.mu.Unlock()

	if cap(wb.data) > DefaultMaxBatchSize {
		p.mu.Lock()
		p.stats.Discarded++
		p.mu.Unlock()
		return
	}
	wb.Clear()
	p.pool.Put(wb)
}

// Stats returns a copy of the pool's usage statistics.
func (p *WriteBatchMVPool) Stats() PoolStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats
}

// HitRate returns the fraction of Gets served from the pool (0.0-1.0).
func (s *PoolStats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

var defaultPool = NewWriteBatchMVPool()

// GlobalPool returns the package-wide default pool.
func GlobalPool() *WriteBatchMVPool { return defaultPool }

// GetFromPool retrieves a WriteBatchMV from the global pool.
func GetFromPool() *WriteBatchMV { return defaultPool.Get() }

// ReturnToPool returns a WriteBatchMV to the global pool.
func ReturnToPool(wb *WriteBatchMV) { defaultPool.Put(wb) }
