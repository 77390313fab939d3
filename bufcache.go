package basp

import "sync"

// headerBufPool recycles fixed HeaderSize byte arrays so EncodeMessage
// does not allocate a fresh buffer per message just to encode the
// preamble.
var headerBufPool = sync.Pool{
	New: func() any {
		b := make([]byte, HeaderSize)
		return &b
	},
}

func getHeaderBuf() *[]byte {
	return headerBufPool.Get().(*[]byte)
}

func putHeaderBuf(b *[]byte) {
	headerBufPool.Put(b)
}

// payloadBucket is the smallest power-of-two >= n, and never less than
// 64. It is not clamped to MaxPayloadLen.
func payloadBucket(n int) int {
	if n <= 64 {
		return 64
	}
	size := 64
	for size < n {
		size <<= 1
	}
	return size
}

// payloadCache buckets pooled payload buffers by power-of-two size
// class, grounded in transport.go's use of sync.Pool to avoid a fresh
// allocation for every inbound frame body.
type payloadCache struct {
	pools sync.Map // int -> *sync.Pool
}

var sharedPayloadCache payloadCache

func (c *payloadCache) poolFor(bucket int) *sync.Pool {
	if p, ok := c.pools.Load(bucket); ok {
		return p.(*sync.Pool)
	}
	p := &sync.Pool{
		New: func() any {
			b := make([]byte, bucket)
			return &b
		},
	}
	actual, _ := c.pools.LoadOrStore(bucket, p)
	return actual.(*sync.Pool)
}

// Get returns a buffer of at least n bytes, sliced to exactly n.
// Returned buffers are owned by the caller until Put is called with
// the same bucket-sized backing array (see PutPayloadBuf).
func (c *payloadCache) Get(n int) []byte {
	bucket := payloadBucket(n)
	bufPtr := c.poolFor(bucket).Get().(*[]byte)
	return (*bufPtr)[:n]
}

// Put returns a buffer previously obtained from Get back to its pool.
// The buffer's original capacity (its bucket) is recovered by growing
// the slice back to full length before returning it — passing a
// pass-by-value copy here instead of the original backing array would
// silently drop the buffer on the floor instead of recycling it, so
// callers must pass the exact slice Get returned (not a re-sliced
// derivative).
func (c *payloadCache) Put(buf []byte) {
	bucket := cap(buf)
	full := buf[:bucket]
	c.poolFor(bucket).Put(&full)
}
