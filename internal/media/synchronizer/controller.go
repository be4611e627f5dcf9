// Package synchronizer keeps the audio clock and the decode goroutine in step.
//
// Controller is the request channel from the playback side to the decoder:
// the audio callback publishes the time it is about to play and, on seeks,
// a seek target. None of its consumer-side methods block.
//
// Position is the sample-accurate playback clock itself.
package synchronizer

import (
	"math"
	"sync/atomic"
)

type Controller struct {
	target   atomic.Uint64 // float64 bits
	seekTo   atomic.Uint64 // float64 bits
	seekSeq  atomic.Uint64
	seekDone atomic.Uint64
	eof      atomic.Bool
	duration atomic.Uint64 // float64 bits

	wake chan struct{}
}

func NewController() *Controller {
	return &Controller{
		wake: make(chan struct{}, 1),
	}
}

// Reset forgets pending requests and the end-of-file latch. Called when a
// new file is opened.
func (c *Controller) Reset(duration float64) {
	c.target.Store(math.Float64bits(0))
	c.seekTo.Store(math.Float64bits(0))
	c.seekDone.Store(c.seekSeq.Load())
	c.eof.Store(false)
	c.duration.Store(math.Float64bits(duration))
}

// SetPositionSeconds tells the decoder where playback is. Without isSeek it
// is a hint the decoder uses to stay ahead of playback. With isSeek the
// decoder drops what it buffered and restarts at t; a later seek replaces
// one the decoder has not picked up yet.
func (c *Controller) SetPositionSeconds(t float64, isSeek bool) {
	c.target.Store(math.Float64bits(t))
	if !isSeek {
		return
	}

	c.seekTo.Store(math.Float64bits(t))
	c.seekSeq.Add(1)
	if d := math.Float64frombits(c.duration.Load()); d <= 0 || t < d {
		// Unknown duration: only the decoder can tell, so assume more input.
		c.eof.Store(false)
	}
	c.notify()
}

func (c *Controller) notify() {
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

// EndOfFile reports whether the decoder ran out of input.
func (c *Controller) EndOfFile() bool {
	return c.eof.Load()
}

// Target returns the last playback time published.
func (c *Controller) Target() float64 {
	return math.Float64frombits(c.target.Load())
}

// TakeSeek returns the pending seek target, if any, and marks it consumed.
// Decoder side only.
func (c *Controller) TakeSeek() (float64, bool) {
	seq := c.seekSeq.Load()
	if seq == c.seekDone.Load() {
		return 0, false
	}
	t := math.Float64frombits(c.seekTo.Load())
	c.seekDone.Store(seq)
	return t, true
}

// SeekPending reports whether a seek was requested and not yet taken.
func (c *Controller) SeekPending() bool {
	return c.seekSeq.Load() != c.seekDone.Load()
}

// SetEndOfFile latches the end-of-file flag. Decoder side only.
func (c *Controller) SetEndOfFile() {
	c.eof.Store(true)
}

// ClearEndOfFile drops the end-of-file latch once the decoder has moved to a
// new position. Decoder side only.
func (c *Controller) ClearEndOfFile() {
	c.eof.Store(false)
}

// Wake is signalled whenever a seek is requested.
func (c *Controller) Wake() <-chan struct{} {
	return c.wake
}
