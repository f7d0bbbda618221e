package buffer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBytePoolBuckets(t *testing.T) {
	p := NewBytePool(DefaultMaxSize)
	stats := p.GetStats()

	assert.Equal(t, []int{1 << 10, 2 << 10, 4 << 10, 8 << 10, 16 << 10, 32 << 10, 64 << 10, 128 << 10}, stats.PoolSizes)
	assert.Equal(t, DefaultMaxSize, stats.MaxBufferSize)

	odd := NewBytePool(3000)
	assert.Equal(t, []int{1024, 2048, 3000}, odd.GetStats().PoolSizes)

	tiny := NewBytePool(10)
	assert.Equal(t, []int{1024}, tiny.GetStats().PoolSizes)
}

func TestBytePoolGetPut(t *testing.T) {
	p := NewBytePool(DefaultMaxSize)

	tests := []struct {
		size    int
		wantCap int
	}{
		{1, 1024},
		{1024, 1024},
		{1025, 2048},
		{100000, 128 << 10},
		{DefaultMaxSize, DefaultMaxSize},
	}
	for _, tt := range tests {
		buf := p.Get(tt.size)
		assert.Len(t, buf, tt.size)
		assert.Equal(t, tt.wantCap, cap(buf))
		buf[0] = 0xff
		p.Put(buf)
	}

	// recycled buffers come back zeroed
	buf := p.Get(1)
	assert.Equal(t, byte(0), buf[0])

	big := p.Get(DefaultMaxSize + 1)
	assert.Len(t, big, DefaultMaxSize+1)
	p.Put(big)
	p.Put(nil)

	stats := p.GetStats()
	assert.Equal(t, int64(7), stats.Gets)
	assert.Equal(t, int64(5), stats.Puts)
	assert.Equal(t, int64(1), stats.Oversized)
}

func TestDefaultPool(t *testing.T) {
	buf := GetBuffer(4096)
	assert.Len(t, buf, 4096)
	PutBuffer(buf)
}
