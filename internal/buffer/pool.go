// Package buffer pools the byte slices used for bounded native reads.
package buffer

import (
	"sync"
	"sync/atomic"
)

const (
	minBucket = 1 << 10

	// DefaultMaxSize matches the native read ceiling.
	DefaultMaxSize = 128 << 10
)

// BytePool provides object pooling for byte slices to reduce GC pressure.
// Buckets double from 1KB up to the configured maximum.
type BytePool struct {
	pools []*sync.Pool
	sizes []int

	gets      atomic.Int64
	puts      atomic.Int64
	oversized atomic.Int64
}

// NewBytePool creates a pool whose largest bucket holds maxSize bytes.
func NewBytePool(maxSize int) *BytePool {
	if maxSize < minBucket {
		maxSize = minBucket
	}

	var sizes []int
	for size := minBucket; size < maxSize; size *= 2 {
		sizes = append(sizes, size)
	}
	sizes = append(sizes, maxSize)

	pools := make([]*sync.Pool, len(sizes))
	for i, size := range sizes {
		size := size
		pools[i] = &sync.Pool{
			New: func() interface{} {
				buf := make([]byte, size)
				return &buf
			},
		}
	}

	return &BytePool{pools: pools, sizes: sizes}
}

// Get retrieves a byte slice of length size. Requests above the largest
// bucket are allocated directly.
func (p *BytePool) Get(size int) []byte {
	p.gets.Add(1)
	for i, bucketSize := range p.sizes {
		if bucketSize >= size {
			buf := *p.pools[i].Get().(*[]byte)
			return buf[:size]
		}
	}
	p.oversized.Add(1)
	return make([]byte, size)
}

// Put returns a byte slice to the pool for reuse. Slices that did not come
// from a bucket are left to the GC.
func (p *BytePool) Put(buf []byte) {
	if buf == nil {
		return
	}
	capacity := cap(buf)
	for i, bucketSize := range p.sizes {
		if bucketSize == capacity {
			buf = buf[:capacity]
			clear(buf)
			p.pools[i].Put(&buf)
			p.puts.Add(1)
			return
		}
	}
}

// PoolStats describes the pool layout and usage.
type PoolStats struct {
	PoolSizes     []int `json:"pool_sizes"`
	MaxBufferSize int   `json:"max_buffer_size"`
	Gets          int64 `json:"gets"`
	Puts          int64 `json:"puts"`
	Oversized     int64 `json:"oversized"`
}

// GetStats returns current pool statistics
func (p *BytePool) GetStats() PoolStats {
	stats := PoolStats{
		PoolSizes: append([]int(nil), p.sizes...),
		Gets:      p.gets.Load(),
		Puts:      p.puts.Load(),
		Oversized: p.oversized.Load(),
	}
	if len(p.sizes) > 0 {
		stats.MaxBufferSize = p.sizes[len(p.sizes)-1]
	}
	return stats
}

var defaultBytePool = NewBytePool(DefaultMaxSize)

// GetBuffer gets a buffer from the default pool
func GetBuffer(size int) []byte {
	return defaultBytePool.Get(size)
}

// Stats returns the statistics of the default pool.
func Stats() PoolStats {
	return defaultBytePool.GetStats()
}

// PutBuffer returns a buffer to the default pool
func PutBuffer(buf []byte) {
	defaultBytePool.Put(buf)
}
