package output

import (
	"encoding/binary"
	"math"

	"github.com/GoldenFealla/mediareader/internal/media"
)

// Source is the pull side of a media.Reader.
type Source interface {
	GetNextAudioBlock(block media.AudioBlock)
}

const bytesPerSample = 4

// Stream adapts a Source to the io.Reader oto pulls from. Each Read that
// finds nothing pending pulls one block sized to the caller's buffer and
// serves it as interleaved little-endian float32.
type Stream struct {
	src      Source
	channels int

	planes  [][]float32
	buf     []byte
	pending []byte
}

func NewStream(src Source, channels int) *Stream {
	return &Stream{
		src:      src,
		channels: max(1, channels),
	}
}

func (s *Stream) Read(p []byte) (int, error) {
	if len(s.pending) == 0 {
		frameSize := s.channels * bytesPerSample
		s.fill(max(1, len(p)/frameSize))
	}

	n := copy(p, s.pending)
	s.pending = s.pending[n:]
	return n, nil
}

func (s *Stream) fill(frames int) {
	if len(s.planes) != s.channels {
		s.planes = make([][]float32, s.channels)
	}
	for ch := range s.planes {
		if cap(s.planes[ch]) < frames {
			s.planes[ch] = make([]float32, frames)
		}
		s.planes[ch] = s.planes[ch][:frames]
	}

	s.src.GetNextAudioBlock(media.AudioBlock{Buffer: s.planes, NumSamples: frames})

	size := frames * s.channels * bytesPerSample
	if cap(s.buf) < size {
		s.buf = make([]byte, size)
	}
	s.buf = s.buf[:size]

	for i := range frames {
		for ch, plane := range s.planes {
			off := (i*s.channels + ch) * bytesPerSample
			binary.LittleEndian.PutUint32(s.buf[off:], math.Float32bits(plane[i]))
		}
	}
	s.pending = s.buf
}
