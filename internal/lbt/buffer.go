package lbt

import "sync"

// DefaultBufferCapacity holds ~4.3 ms of samples at 15.36 MSPS, which
// comfortably covers the accurate estimation window.
const DefaultBufferCapacity = 65536

// sampleBuffer is the bounded FIFO absorbing I/Q batches from the front
// end. The producer (radio feed) and consumer (energy estimation) share
// it through an advisory lock: neither side ever waits for the other.
// A contended feed drops its whole batch; a contended read falls back
// to the cached energy value.
type sampleBuffer struct {
	mu       sync.Mutex
	capacity int
	samples  []complex128
}

func newSampleBuffer(capacity int) *sampleBuffer {
	if capacity <= 0 {
		capacity = DefaultBufferCapacity
	}
	return &sampleBuffer{
		capacity: capacity,
		samples:  make([]complex128, 0, capacity),
	}
}

// feed appends a batch, evicting the oldest samples when the result
// would exceed capacity. It returns accepted=false without touching the
// buffer when the lock is contended, and evicted=true when the append
// displaced old samples (once per call, not per sample).
func (b *sampleBuffer) feed(batch []complex128) (accepted, evicted bool) {
	if len(batch) == 0 {
		return true, false
	}
	if !b.mu.TryLock() {
		return false, false
	}
	defer b.mu.Unlock()

	b.samples = append(b.samples, batch...)
	if over := len(b.samples) - b.capacity; over > 0 {
		copy(b.samples, b.samples[over:])
		b.samples = b.samples[:b.capacity]
		evicted = true
	}
	return true, evicted
}

// tryTail copies out the most recent n samples (fewer if the buffer is
// shorter). ok is false when the lock is contended.
func (b *sampleBuffer) tryTail(n int, dst []complex128) (out []complex128, ok bool) {
	if !b.mu.TryLock() {
		return nil, false
	}
	defer b.mu.Unlock()
	return b.tailLocked(n, dst), true
}

// tail is the blocking variant used by calibration, which runs outside
// the per-slot decision path.
func (b *sampleBuffer) tail(n int, dst []complex128) []complex128 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.tailLocked(n, dst)
}

func (b *sampleBuffer) tailLocked(n int, dst []complex128) []complex128 {
	if n > len(b.samples) {
		n = len(b.samples)
	}
	dst = append(dst[:0], b.samples[len(b.samples)-n:]...)
	return dst
}

func (b *sampleBuffer) len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.samples)
}

func (b *sampleBuffer) clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.samples = b.samples[:0]
}
