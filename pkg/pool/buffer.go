// Package pool provides reusable byte buffers for streaming copies.
//
// Asset downloads run concurrently under a bounded budget; giving each
// transfer a pooled copy buffer avoids re-allocating buffer space for every
// file while keeping peak memory proportional to the download concurrency.
package pool

import "sync"

// FixedBufferPool hands out equally sized byte slices backed by a sync.Pool.
// Buffers are reclaimed by the garbage collector when idle, so the pool never
// pins memory beyond what concurrent users currently hold.
type FixedBufferPool struct {
	size int64
	pool sync.Pool
}

// NewFixedBuffer creates a pool of buffers of exactly 'size' bytes.
func NewFixedBuffer(size int64) *FixedBufferPool {
	return &FixedBufferPool{
		size: size,
		pool: sync.Pool{
			New: func() any {
				b := make([]byte, int(size))
				return &b
			},
		},
	}
}

// Get retrieves a pointer to a buffer from the pool.
func (fp *FixedBufferPool) Get() *[]byte {
	return fp.pool.Get().(*[]byte)
}

// Put returns a buffer to the pool. Foreign buffers of a different capacity
// are dropped rather than pooled.
func (fp *FixedBufferPool) Put(b *[]byte) {
	if b == nil || int64(cap(*b)) != fp.size {
		return
	}
	*b = (*b)[:fp.size]
	fp.pool.Put(b)
}

// Size returns the size in bytes of the buffers this pool hands out.
func (fp *FixedBufferPool) Size() int64 {
	return fp.size
}
