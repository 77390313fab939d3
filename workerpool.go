package basp

import (
	"sync"
	"sync/atomic"
)

// decodedMessage is one fully-decoded BASP message, still tagged with
// the sequence number it was received in so the pool can release
// completions in receipt order.
type decodedMessage struct {
	seq     uint64
	payload Payload
	err     error
}

// WorkerPool is a bounded deserialization worker pool that preserves
// inbound order: each Submit call is assigned a monotonically
// increasing sequence number at the moment it is received, and —
// however the workers finish relative to each other — completions are
// always delivered to the release callback strictly in that sequence
// order. Grounded in transport.go's dispatchWorkers sharding,
// generalized from per-peer shard routing to a single ordered release
// queue (BASP delivery order is per-connection, not per-shard).
type WorkerPool struct {
	jobs chan Framed
	wg   sync.WaitGroup

	submitSeq atomic.Uint64

	mu          sync.Mutex
	nextRelease uint64
	pending     map[uint64]decodedMessage

	onDecoded func(seq uint64, payload Payload, err error)

	reorderedCounter *atomic.Int64 // optional, wired to Metrics.WorkerPoolReordered
}

// NewWorkerPool starts workerCount goroutines pulling from a queue of
// depth queueDepth. onDecoded is invoked exactly once per Submit, in
// submission order, never concurrently with itself.
func NewWorkerPool(workerCount, queueDepth int, onDecoded func(seq uint64, payload Payload, err error)) *WorkerPool {
	p := &WorkerPool{
		jobs:      make(chan Framed, queueDepth),
		pending:   make(map[uint64]decodedMessage),
		onDecoded: onDecoded,
	}
	for i := 0; i < workerCount; i++ {
		p.wg.Add(1)
		go p.worker()
	}
	return p
}

func (p *WorkerPool) worker() {
	defer p.wg.Done()
	for framed := range p.jobs {
		seq := framed.seq
		payload, err := DecodePayload(framed.Header, framed.Body)
		p.complete(decodedMessage{seq: seq, payload: payload, err: err})
	}
}

// Submit assigns the next sequence number to framed and enqueues it for
// decoding. It blocks if the queue is full (backpressure onto the
// socket manager's read dispatch, consistent with the bounded-resource
// invariant).
func (p *WorkerPool) Submit(framed Framed) {
	framed.seq = p.submitSeq.Add(1) - 1
	p.jobs <- framed
}

func (p *WorkerPool) complete(msg decodedMessage) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if msg.seq != p.nextRelease {
		p.pending[msg.seq] = msg
		if p.reorderedCounter != nil {
			p.reorderedCounter.Add(1)
		}
		return
	}

	p.onDecoded(msg.seq, msg.payload, msg.err)
	p.nextRelease++

	for {
		next, ok := p.pending[p.nextRelease]
		if !ok {
			break
		}
		delete(p.pending, p.nextRelease)
		p.onDecoded(next.seq, next.payload, next.err)
		p.nextRelease++
	}
}

// Close stops accepting new work and waits for in-flight decodes to
// drain.
func (p *WorkerPool) Close() {
	close(p.jobs)
	p.wg.Wait()
}
