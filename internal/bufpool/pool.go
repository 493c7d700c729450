package bufpool

import "sync"

// Pool hands out chunk-sized read buffers to the producer so serving a
// chunk does not allocate. Buffers are stored by pointer to keep Put
// allocation free.
type Pool struct {
	pool      sync.Pool
	chunkSize int
}

// New returns a pool of chunkSize-byte buffers. It panics on a non-positive size.
func New(chunkSize int) *Pool {
	if chunkSize <= 0 {
		panic("bufpool: chunk size must be positive")
	}
	p := &Pool{chunkSize: chunkSize}
	p.pool.New = func() any {
		b := make([]byte, chunkSize)
		return &b
	}
	return p
}

// Get returns a buffer of exactly ChunkSize bytes.
func (p *Pool) Get() *[]byte {
	b := p.pool.Get().(*[]byte)
	*b = (*b)[:p.chunkSize]
	return b
}

// Put recycles b. Buffers of the wrong capacity are dropped.
func (p *Pool) Put(b *[]byte) {
	if b == nil || cap(*b) != p.chunkSize {
		return
	}
	p.pool.Put(b)
}

// ChunkSize returns the buffer length handed out by Get.
func (p *Pool) ChunkSize() int {
	return p.chunkSize
}
