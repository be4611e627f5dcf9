// Package ringbuffer holds decoded audio between the decode goroutine and the
// audio callback.
//
// A Buffer is single-producer/single-consumer. The producer only moves the
// write cursor and the consumer only moves the read cursor. Both cursors are
// monotonically increasing frame counters, so the number of ready frames is
// always write - read and can be sampled from either side without a lock.
package ringbuffer

import "sync/atomic"

type Buffer struct {
	data     [][]float32
	capacity int64

	write atomic.Int64
	read  atomic.Int64

	// discard is the write position at the last producer-side invalidation.
	// The consumer treats everything below it as already read.
	discard atomic.Int64
}

func New(channels, capacity int) *Buffer {
	b := &Buffer{}
	b.SetSize(channels, capacity)
	return b
}

// SetSize reallocates storage and resets both cursors. It must not run while
// either side is reading or writing.
func (b *Buffer) SetSize(channels, capacity int) {
	if channels < 0 {
		channels = 0
	}
	if capacity < 0 {
		capacity = 0
	}

	b.data = make([][]float32, channels)
	for ch := range b.data {
		b.data[ch] = make([]float32, capacity)
	}
	b.capacity = int64(capacity)
	b.Reset()
}

func (b *Buffer) Channels() int {
	return len(b.data)
}

func (b *Buffer) Capacity() int {
	return int(b.capacity)
}

func (b *Buffer) readPos() int64 {
	r := b.read.Load()
	if d := b.discard.Load(); d > r {
		return d
	}
	return r
}

// CountReady returns the number of frames the consumer can read. Called from
// the producer side it may under-report by an in-flight read.
func (b *Buffer) CountReady() int {
	return int(b.write.Load() - b.readPos())
}

// Free returns the space available to the producer. Discarded frames keep
// occupying space until the consumer has moved past them.
func (b *Buffer) Free() int {
	return int(b.capacity - (b.write.Load() - b.read.Load()))
}

// Write copies up to n frames from src and returns how many were accepted.
// Frames that do not fit are dropped; the producer is expected to retry.
// Channels missing from src are written as silence.
func (b *Buffer) Write(src [][]float32, n int) int {
	if b.capacity == 0 || n <= 0 {
		return 0
	}
	if free := b.Free(); n > free {
		n = free
	}
	if n <= 0 {
		return 0
	}

	w := b.write.Load()
	start := int(w % b.capacity)
	first := min(n, int(b.capacity)-start)

	for ch, dst := range b.data {
		if ch >= len(src) {
			clear(dst[start : start+first])
			clear(dst[:n-first])
			continue
		}
		copy(dst[start:start+first], src[ch][:first])
		copy(dst[:n-first], src[ch][first:n])
	}

	b.write.Store(w + int64(n))
	return n
}

// Read copies up to n ready frames into dst[ch][start:] and returns how many
// were copied. Destination channels the buffer does not carry are zeroed over
// the copied range.
func (b *Buffer) Read(dst [][]float32, start, n int) int {
	if b.capacity == 0 || n <= 0 {
		return 0
	}

	r := b.readPos()
	if ready := int(b.write.Load() - r); n > ready {
		n = ready
	}
	if n <= 0 {
		if r != b.read.Load() {
			b.read.Store(r)
		}
		return 0
	}

	from := int(r % b.capacity)
	first := min(n, int(b.capacity)-from)

	for ch, out := range dst {
		out = out[start : start+n]
		if ch >= len(b.data) {
			clear(out)
			continue
		}
		copy(out[:first], b.data[ch][from:from+first])
		copy(out[first:], b.data[ch][:n-first])
	}

	b.read.Store(r + int64(n))
	return n
}

// Discard marks everything written so far as stale. Only the producer calls
// it, typically right after a seek and before writing data of the new
// timeline.
func (b *Buffer) Discard() {
	b.discard.Store(b.write.Load())
}

// Reset zeroes the cursors. Both sides must be idle.
func (b *Buffer) Reset() {
	b.write.Store(0)
	b.read.Store(0)
	b.discard.Store(0)
}

// Clear zeroes the cursors and the stored samples, keeping the allocation.
func (b *Buffer) Clear() {
	for _, ch := range b.data {
		clear(ch)
	}
	b.Reset()
}
