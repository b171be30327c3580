package pool

import (
	"io"
	"sync"
	"sync/atomic"
)

// Buffer is a fixed-capacity chunk buffer with a write cursor.
// A Buffer must have exactly one owner at a time.
type Buffer struct {
	data []byte
	n    int
}

// NewBuffer allocates an empty buffer with the given usable capacity.
func NewBuffer(size int) *Buffer {
	return &Buffer{data: make([]byte, size)}
}

// Write copies as much of p as fits and returns the number of bytes copied.
// It never returns an error; a short count means the buffer is full.
func (b *Buffer) Write(p []byte) (int, error) {
	k := copy(b.data[b.n:], p)
	b.n += k
	return k, nil
}

// Fill performs a single Read from r into the free region of the buffer.
func (b *Buffer) Fill(r io.Reader) (int, error) {
	if b.Full() {
		return 0, nil
	}
	k, err := r.Read(b.data[b.n:])
	b.n += k
	return k, err
}

// Bytes returns the written region. The slice aliases the buffer and is only
// valid until the buffer is reset or released.
func (b *Buffer) Bytes() []byte {
	return b.data[:b.n]
}

// Len returns the number of bytes written.
func (b *Buffer) Len() int { return b.n }

// Cap returns the usable capacity.
func (b *Buffer) Cap() int { return len(b.data) }

// Available returns the number of bytes that can still be written.
func (b *Buffer) Available() int { return len(b.data) - b.n }

// Full reports whether no more bytes fit.
func (b *Buffer) Full() bool { return b.n == len(b.data) }

// Reset moves the cursor back to zero. The old content stays in memory but is
// no longer reachable through Bytes.
func (b *Buffer) Reset() { b.n = 0 }

// Pool recycles buffers. Implementations must be safe for concurrent use:
// writers acquire on their own goroutine while upload workers release.
type Pool interface {
	// Acquire returns an empty buffer whose capacity is exactly size.
	Acquire(size int) *Buffer

	// Release hands a buffer back. The caller must not touch it afterwards.
	Release(b *Buffer)
}

// Stats tracks pool usage statistics.
type Stats struct {
	Created  int64
	Reused   int64
	Released int64
}

// Outstanding returns the number of buffers acquired and not yet released.
func (s Stats) Outstanding() int64 {
	return s.Created + s.Reused - s.Released
}

// SyncPool keeps one sync.Pool per buffer size.
type SyncPool struct {
	mu    sync.Mutex
	sizes map[int]*sync.Pool

	created  atomic.Int64
	reused   atomic.Int64
	released atomic.Int64
}

// NewSyncPool creates an empty pool.
func NewSyncPool() *SyncPool {
	return &SyncPool{sizes: make(map[int]*sync.Pool)}
}

func (p *SyncPool) bucket(size int) *sync.Pool {
	p.mu.Lock()
	defer p.mu.Unlock()

	sp, ok := p.sizes[size]
	if !ok {
		sp = &sync.Pool{}
		p.sizes[size] = sp
	}
	return sp
}

// Acquire returns a recycled buffer of the given size, or a new one.
func (p *SyncPool) Acquire(size int) *Buffer {
	if b, ok := p.bucket(size).Get().(*Buffer); ok {
		p.reused.Add(1)
		b.Reset()
		return b
	}
	p.created.Add(1)
	return NewBuffer(size)
}

// Release returns b to the pool for its size.
func (p *SyncPool) Release(b *Buffer) {
	if b == nil {
		return
	}
	p.released.Add(1)
	b.Reset()
	p.bucket(b.Cap()).Put(b)
}

// Stats returns pool statistics.
func (p *SyncPool) Stats() Stats {
	return Stats{
		Created:  p.created.Load(),
		Reused:   p.reused.Load(),
		Released: p.released.Load(),
	}
}

// Unpooled allocates a fresh buffer for every Acquire and drops released ones.
type Unpooled struct{}

// Acquire allocates a new buffer.
func (Unpooled) Acquire(size int) *Buffer { return NewBuffer(size) }

// Release does nothing.
func (Unpooled) Release(*Buffer) {}

// Global buffer pool instance for use throughout the module.
var shared = NewSyncPool()

// Shared returns the process-wide pool used when no pool is configured.
func Shared() *SyncPool {
	return shared
}
