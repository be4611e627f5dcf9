package output

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/GoldenFealla/mediareader/internal/media"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// counter fills channel ch of frame i with next+i+ch*100.
type counter struct {
	next   int
	blocks []int
}

func (c *counter) GetNextAudioBlock(b media.AudioBlock) {
	c.blocks = append(c.blocks, b.NumSamples)
	for ch, plane := range b.Buffer {
		for i := range b.NumSamples {
			plane[b.Start+i] = float32(c.next + i + ch*100)
		}
	}
	c.next += b.NumSamples
}

func sampleAt(b []byte, i int) float32 {
	return math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
}

func TestStreamInterleaves(t *testing.T) {
	src := &counter{}
	s := NewStream(src, 2)

	p := make([]byte, 3*2*4)
	n, err := s.Read(p)
	require.NoError(t, err)
	require.Equal(t, len(p), n)

	assert.Equal(t, []int{3}, src.blocks)
	got := make([]float32, 6)
	for i := range got {
		got[i] = sampleAt(p, i)
	}
	assert.Equal(t, []float32{0, 100, 1, 101, 2, 102}, got)
}

func TestStreamServesPendingBeforePulling(t *testing.T) {
	src := &counter{}
	s := NewStream(src, 1)

	big := make([]byte, 4*4)
	small := make([]byte, 6)

	_, err := s.Read(big[:8])
	require.NoError(t, err)

	// A read shorter than a frame still pulls one frame and serves it in
	// pieces.
	n, _ := s.Read(small[:2])
	assert.Equal(t, 2, n)
	n, _ = s.Read(small[2:])
	assert.Equal(t, 2, n)
	assert.Equal(t, []int{2, 1}, src.blocks)
	assert.Equal(t, float32(2), sampleAt(small, 0))
}
