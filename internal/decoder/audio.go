package decoder

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/asticode/go-astiav"
	"github.com/asticode/go-astikit"
)

// Interleaved float32 at the stream's own rate and layout. Only the sample
// format changes; the rate is never converted here.
const outputSampleFormat = astiav.SampleFormatFlt

type AudioStream struct {
	st *astiav.Stream
	cc *astiav.CodecContext
	rs *astiav.SoftwareResampleContext

	df *astiav.Frame
	rf *astiav.Frame

	closer *astikit.Closer

	sampleRate int
	channels   int
	layout     astiav.ChannelLayout
	timebase   float64

	// next is the expected PTS of the following frame, used when a frame
	// carries none.
	next   float64
	planes [][]float32

	outputCallback func(ctx context.Context, planes [][]float32, n int, pts float64, rate int)
}

func NewAudioStream() *AudioStream {
	ast := &AudioStream{
		closer: astikit.NewCloser(),
	}

	ast.df = astiav.AllocFrame()
	ast.closer.Add(ast.df.Free)

	ast.rf = astiav.AllocFrame()
	ast.closer.Add(ast.rf.Free)

	ast.rs = astiav.AllocSoftwareResampleContext()
	ast.closer.Add(ast.rs.Free)

	ast.closer.Add(func() {
		if ast.cc != nil {
			ast.cc.Free()
			ast.cc = nil
		}
	})

	return ast
}

func (ast *AudioStream) Close() {
	ast.closer.Close()
}

func (ast *AudioStream) Index() int {
	return ast.st.Index()
}

func (ast *AudioStream) SampleRate() int {
	return ast.sampleRate
}

func (ast *AudioStream) Channels() int {
	return ast.channels
}

func (ast *AudioStream) SetOutputCallback(callback func(ctx context.Context, planes [][]float32, n int, pts float64, rate int)) {
	ast.outputCallback = callback
}

func (ast *AudioStream) LoadInputContext(i *astiav.FormatContext) error {
	if i == nil {
		return ErrInputContextNil
	}

	ast.st = findStream(i, astiav.MediaTypeAudio)
	if ast.st == nil {
		return ErrNoAudio
	}

	cc, err := openCodec(ast.st)
	if err != nil {
		return fmt.Errorf("finding audio codec: %w", err)
	}
	ast.cc = cc

	ast.sampleRate = cc.SampleRate()
	ast.layout = cc.ChannelLayout()
	ast.channels = ast.layout.Channels()
	ast.timebase = ast.st.TimeBase().Float64()
	ast.next = 0

	if ast.sampleRate <= 0 || ast.channels <= 0 {
		return fmt.Errorf("finding audio codec: invalid format %d Hz, %d channels", ast.sampleRate, ast.channels)
	}

	return nil
}

// Flush reopens the codec so nothing decoded before a seek leaks out after it.
func (ast *AudioStream) Flush() error {
	cc, err := openCodec(ast.st)
	if err != nil {
		return fmt.Errorf("audio flush: %w", err)
	}
	ast.cc.Free()
	ast.cc = cc
	// The layout refers into the codec context it came from.
	ast.layout = cc.ChannelLayout()
	ast.next = 0
	return nil
}

// Decode sends pkt to the codec and forwards every frame it yields. A nil pkt
// drains the codec.
func (ast *AudioStream) Decode(ctx context.Context, pkt *astiav.Packet) error {
	if err := ast.cc.SendPacket(pkt); err != nil {
		return fmt.Errorf("audio decode: sending packet to audio decoder failed: %w", err)
	}

	for {
		stop, err := ast.decode(ctx)
		if err != nil {
			return err
		}

		if stop {
			return nil
		}
	}
}

func (ast *AudioStream) decode(ctx context.Context) (bool, error) {
	if err := ast.cc.ReceiveFrame(ast.df); err != nil {
		if errors.Is(err, astiav.ErrEof) || errors.Is(err, astiav.ErrEagain) {
			return true, nil
		}
		return true, fmt.Errorf("audio decoding: receiving frame failed: %w", err)
	}

	defer ast.df.Unref()

	pts := ast.next
	if p := ast.df.Pts(); p != astiav.NoPtsValue {
		pts = float64(p) * ast.timebase
	}

	ast.rf.Unref()
	ast.rf.SetChannelLayout(ast.layout)
	ast.rf.SetSampleFormat(outputSampleFormat)
	ast.rf.SetSampleRate(ast.sampleRate)

	if err := ast.rs.ConvertFrame(ast.df, ast.rf); err != nil {
		return false, fmt.Errorf("audio decoding: converting frame failed: %w", err)
	}

	n := ast.rf.NbSamples()
	if n <= 0 {
		return false, nil
	}

	b, err := ast.rf.Data().Bytes(1)
	if err != nil {
		return false, fmt.Errorf("audio decoding: get data failed: %w", err)
	}

	n = deinterleave(b, ast.channels, n, ast.grow(n))
	ast.next = pts + float64(n)/float64(ast.sampleRate)

	if ast.outputCallback != nil {
		ast.outputCallback(ctx, ast.planes, n, pts, ast.sampleRate)
	}

	return false, nil
}

func (ast *AudioStream) grow(n int) [][]float32 {
	if len(ast.planes) != ast.channels {
		ast.planes = make([][]float32, ast.channels)
	}
	for ch := range ast.planes {
		if cap(ast.planes[ch]) < n {
			ast.planes[ch] = make([]float32, n)
		}
		ast.planes[ch] = ast.planes[ch][:n]
	}
	return ast.planes
}

// deinterleave splits little-endian interleaved float32 samples into planes
// and returns the number of whole frames it found.
func deinterleave(b []byte, channels, n int, planes [][]float32) int {
	if channels <= 0 {
		return 0
	}
	n = min(n, len(b)/(4*channels))

	for i := range n {
		for ch := range channels {
			off := (i*channels + ch) * 4
			planes[ch][i] = math.Float32frombits(binary.LittleEndian.Uint32(b[off:]))
		}
	}
	return n
}
