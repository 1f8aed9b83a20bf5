package worker

import "sync"

// sizedPool is a sync.Pool bucketed allocator, adapted from the teacher's
// buffer pool for small scratch buffers rather than multi-megabyte I/O
// buffers. The worker's event path does not call GetBuffer or PutBuffer.
type sizedPool struct {
	pool *sync.Pool
	size int
}

func newSizedPool(size int) *sizedPool {
	return &sizedPool{
		size: size,
		pool: &sync.Pool{
			New: func() interface{} {
				b := make([]byte, size)
				return &b
			},
		},
	}
}

var pools = []*sizedPool{
	newSizedPool(256),
	newSizedPool(1024),
	newSizedPool(4096),
	newSizedPool(16384),
}

// GetBuffer returns a []byte of at least size bytes from the smallest
// bucket that fits, or a freshly allocated one if size exceeds every
// bucket.
func GetBuffer(size int) []byte {
	for _, p := range pools {
		if size <= p.size {
			buf := p.pool.Get().(*[]byte)
			return (*buf)[:size]
		}
	}
	return make([]byte, size)
}

// PutBuffer returns buf to its bucket pool, if it matches one exactly.
func PutBuffer(buf []byte) {
	c := cap(buf)
	for _, p := range pools {
		if c == p.size {
			b := buf[:c]
			p.pool.Put(&b)
			return
		}
	}
}
