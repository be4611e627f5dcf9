package synchronizer

import (
	"math"
	"sync/atomic"
)

// Position is the playback clock in samples. The audio callback advances it;
// video and UI goroutines read it.
type Position struct {
	next       atomic.Int64
	sampleRate atomic.Uint64 // float64 bits
	ended      atomic.Bool
}

func (p *Position) SetSampleRate(rate float64) {
	p.sampleRate.Store(math.Float64bits(rate))
}

func (p *Position) SampleRate() float64 {
	return math.Float64frombits(p.sampleRate.Load())
}

// Valid reports whether the sample rate is usable for time conversions.
func (p *Position) Valid() bool {
	return p.SampleRate() > 0
}

func (p *Position) Get() int64 {
	return p.next.Load()
}

func (p *Position) Set(samples int64) {
	p.next.Store(samples)
}

// Advance moves the clock forward by n samples and returns the new position.
func (p *Position) Advance(n int) int64 {
	return p.next.Add(int64(n))
}

// Seconds converts the position to seconds, or -1 with no valid sample rate.
func (p *Position) Seconds() float64 {
	rate := p.SampleRate()
	if rate <= 0 {
		return -1
	}
	return float64(p.Get()) / rate
}

// SecondsAt converts a sample index to seconds, or -1 with no valid rate.
func (p *Position) SecondsAt(samples int64) float64 {
	rate := p.SampleRate()
	if rate <= 0 {
		return -1
	}
	return float64(samples) / rate
}

// TotalLength converts a duration in seconds to samples, 0 with no valid rate.
func (p *Position) TotalLength(duration float64) int64 {
	rate := p.SampleRate()
	if rate <= 0 {
		return 0
	}
	return int64(duration * rate)
}

// CheckEnded reports true the first time the decoder has hit end of file and
// the clock reached total. It stays quiet until Rearm.
func (p *Position) CheckEnded(eof bool, total int64) bool {
	if !eof || p.Get() < total {
		return false
	}
	return p.ended.CompareAndSwap(false, true)
}

// Rearm lets CheckEnded fire again.
func (p *Position) Rearm() {
	p.ended.Store(false)
}

// Reset puts the clock back at zero and rearms the end latch.
func (p *Position) Reset() {
	p.next.Store(0)
	p.ended.Store(false)
}
