package ringbuffer

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ramp(channels, n int, from float32) [][]float32 {
	out := make([][]float32, channels)
	for ch := range out {
		out[ch] = make([]float32, n)
		for i := range out[ch] {
			out[ch][i] = from + float32(i) + float32(ch)*1000
		}
	}
	return out
}

func block(channels, n int) [][]float32 {
	out := make([][]float32, channels)
	for ch := range out {
		out[ch] = make([]float32, n)
	}
	return out
}

func TestWriteRead(t *testing.T) {
	b := New(2, 8)
	require.Equal(t, 2, b.Channels())
	require.Equal(t, 8, b.Capacity())

	assert.Equal(t, 5, b.Write(ramp(2, 5, 0), 5))
	assert.Equal(t, 5, b.CountReady())
	assert.Equal(t, 3, b.Free())

	dst := block(2, 4)
	assert.Equal(t, 4, b.Read(dst, 0, 4))
	assert.Equal(t, []float32{0, 1, 2, 3}, dst[0])
	assert.Equal(t, []float32{1000, 1001, 1002, 1003}, dst[1])
	assert.Equal(t, 1, b.CountReady())
}

func TestWriteDropsWhenFull(t *testing.T) {
	b := New(1, 4)

	assert.Equal(t, 4, b.Write(ramp(1, 6, 0), 6))
	assert.Equal(t, 0, b.Write(ramp(1, 1, 10), 1))
	assert.Equal(t, 4, b.CountReady())
}

func TestWrapAround(t *testing.T) {
	b := New(1, 4)
	dst := block(1, 4)

	b.Write(ramp(1, 3, 0), 3)
	b.Read(dst, 0, 3)

	// Cursor sits at 3, so this write wraps.
	assert.Equal(t, 4, b.Write(ramp(1, 4, 10), 4))
	assert.Equal(t, 4, b.Read(dst, 0, 4))
	assert.Equal(t, []float32{10, 11, 12, 13}, dst[0])
}

func TestReadPartialAndOffset(t *testing.T) {
	b := New(1, 8)
	b.Write(ramp(1, 2, 5), 2)

	dst := [][]float32{{-1, -1, -1, -1}}
	assert.Equal(t, 2, b.Read(dst, 1, 3))
	assert.Equal(t, []float32{-1, 5, 6, -1}, dst[0])
	assert.Equal(t, 0, b.Read(dst, 0, 1))
}

func TestReadZeroesExtraChannels(t *testing.T) {
	b := New(1, 4)
	b.Write(ramp(1, 2, 1), 2)

	dst := [][]float32{{9, 9}, {9, 9}}
	assert.Equal(t, 2, b.Read(dst, 0, 2))
	assert.Equal(t, []float32{1, 2}, dst[0])
	assert.Equal(t, []float32{0, 0}, dst[1])
}

func TestDiscard(t *testing.T) {
	b := New(1, 4)
	b.Write(ramp(1, 3, 0), 3)
	b.Discard()

	assert.Equal(t, 0, b.CountReady())
	// Discarded frames still hold space until the consumer moves past them.
	assert.Equal(t, 1, b.Free())

	dst := block(1, 2)
	assert.Equal(t, 0, b.Read(dst, 0, 2))
	assert.Equal(t, 4, b.Free())

	b.Write(ramp(1, 2, 50), 2)
	assert.Equal(t, 2, b.Read(dst, 0, 2))
	assert.Equal(t, []float32{50, 51}, dst[0])
}

func TestClearAndResize(t *testing.T) {
	b := New(2, 4)
	b.Write(ramp(2, 4, 1), 4)

	b.Clear()
	assert.Equal(t, 0, b.CountReady())
	assert.Equal(t, 4, b.Capacity())

	b.SetSize(6, 16)
	assert.Equal(t, 6, b.Channels())
	assert.Equal(t, 16, b.Free())
}

func TestZeroCapacity(t *testing.T) {
	b := New(0, 0)
	assert.Equal(t, 0, b.Write(ramp(1, 4, 0), 4))
	assert.Equal(t, 0, b.Read(block(1, 4), 0, 4))
}

func TestConcurrentProducerConsumer(t *testing.T) {
	const total = 100000
	b := New(1, 256)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		src := [][]float32{make([]float32, 64)}
		next := 0
		for next < total {
			n := min(len(src[0]), total-next)
			for i := range n {
				src[0][i] = float32(next + i)
			}
			next += b.Write(src, n)
		}
	}()

	dst := [][]float32{make([]float32, 48)}
	expect := 0
	for expect < total {
		n := b.Read(dst, 0, len(dst[0]))
		for i := range n {
			if dst[0][i] != float32(expect) {
				t.Fatalf("sample %d: got %v", expect, dst[0][i])
			}
			expect++
		}
	}
	wg.Wait()
}
