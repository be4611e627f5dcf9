// Package framequeue holds decoded video frames between the decode goroutine
// and the display loop.
package framequeue

import (
	"image"
	"sync/atomic"
)

// VideoFrame is a decoded picture and the time, in seconds, it should be shown.
type VideoFrame struct {
	Image image.Image
	PTS   float64

	Width, Height int
	PixelFormat   string
}

// Queue is a bounded single-producer/single-consumer frame queue. The
// producer appends at the tail, the consumer peeks and advances the head.
type Queue struct {
	frames []VideoFrame
	max    int64

	head    atomic.Int64
	tail    atomic.Int64
	discard atomic.Int64

	// Consumer owned.
	peeked  bool
	peekPos int64
}

func New(max int) *Queue {
	if max < 1 {
		max = 1
	}
	return &Queue{
		frames: make([]VideoFrame, max),
		max:    int64(max),
	}
}

func (q *Queue) Capacity() int {
	return int(q.max)
}

func (q *Queue) headPos() int64 {
	h := q.head.Load()
	if d := q.discard.Load(); d > h {
		return d
	}
	return h
}

// Push appends f and reports whether there was room for it. A full queue is
// left untouched; whether to stall or drop is up to the producer.
func (q *Queue) Push(f VideoFrame) bool {
	t := q.tail.Load()
	if t-q.head.Load() >= q.max {
		return false
	}

	q.frames[t%q.max] = f
	q.tail.Store(t + 1)
	return true
}

// CountUnread returns how many frames were appended but not yet taken.
func (q *Queue) CountUnread() int {
	return int(q.tail.Load() - q.headPos())
}

// catchUp moves head past discarded frames, handing their slots back to the
// producer, and returns the read position. Consumer side only.
func (q *Queue) catchUp() int64 {
	h := q.headPos()
	if h != q.head.Load() {
		q.head.Store(h)
	}
	return h
}

// Peek returns the frame at the read cursor without consuming it. Consumer
// side only. A following Advance consumes exactly this frame even when a
// Discard lands in between.
func (q *Queue) Peek() (VideoFrame, bool) {
	h := q.catchUp()
	if q.tail.Load() <= h {
		q.peeked = false
		return VideoFrame{}, false
	}
	q.peeked, q.peekPos = true, h
	return q.frames[h%q.max], true
}

// Advance moves the read cursor past the frame returned by the last Peek, or
// past the frame at the cursor when nothing was peeked. It is a no-op on an
// empty queue.
func (q *Queue) Advance() {
	h := q.peekPos
	if !q.peeked {
		h = q.catchUp()
	}
	q.peeked = false
	if q.tail.Load() <= h {
		return
	}
	q.take(h)
}

// Take pops the frame at the read cursor. Consumer side only.
func (q *Queue) Take() (VideoFrame, bool) {
	q.peeked = false
	h := q.catchUp()
	if q.tail.Load() <= h {
		return VideoFrame{}, false
	}
	return q.take(h), true
}

// take releases slot h. The producer cannot reuse it before head passes h,
// so reading it here is safe even if a Discard raced ahead.
func (q *Queue) take(h int64) VideoFrame {
	i := h % q.max
	f := q.frames[i]
	q.frames[i] = VideoFrame{}
	if h+1 > q.head.Load() {
		q.head.Store(h + 1)
	}
	return f
}

// Discard marks every frame pushed so far as stale. Producer side only.
func (q *Queue) Discard() {
	q.discard.Store(q.tail.Load())
}

// Reset drops everything. Both sides must be idle.
func (q *Queue) Reset() {
	clear(q.frames)
	q.head.Store(0)
	q.tail.Store(0)
	q.discard.Store(0)
	q.peeked, q.peekPos = false, 0
}
