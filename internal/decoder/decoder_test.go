package decoder

import (
	"context"
	"encoding/binary"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/GoldenFealla/mediareader/internal/media"
	"github.com/GoldenFealla/mediareader/internal/media/framequeue"
	"github.com/GoldenFealla/mediareader/internal/media/ringbuffer"
	"github.com/asticode/go-astiav"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ media.Engine = (*Engine)(nil)

func newTestEngine(channels, capacity, frames int) *Engine {
	return NewEngine(
		ringbuffer.New(channels, capacity),
		framequeue.New(frames),
		WithIdleWait(time.Millisecond),
		WithReadAhead(time.Second),
	)
}

func TestDeinterleave(t *testing.T) {
	samples := []float32{1, -1, 2, -2, 3, -3}
	b := make([]byte, 4*len(samples)+3) // trailing partial frame is ignored
	for i, s := range samples {
		binary.LittleEndian.PutUint32(b[i*4:], math.Float32bits(s))
	}

	planes := [][]float32{make([]float32, 4), make([]float32, 4)}
	n := deinterleave(b, 2, 4, planes)

	require.Equal(t, 3, n)
	assert.Equal(t, []float32{1, 2, 3}, planes[0][:n])
	assert.Equal(t, []float32{-1, -2, -3}, planes[1][:n])
	assert.Equal(t, 0, deinterleave(b, 0, 4, nil))
}

func TestEnqueueAudioTrimsBeforeSeekTarget(t *testing.T) {
	e := newTestEngine(1, 64, 4)
	e.skipUntil = 1.0

	planes := [][]float32{{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}}

	// Entirely before the target.
	e.enqueueAudio(context.Background(), planes, 10, 0.0, 10)
	assert.Equal(t, 0, e.audio.CountReady())

	// Starts 0.5s before the target at 10 Hz: the first five frames go.
	e.enqueueAudio(context.Background(), planes, 10, 0.5, 10)
	require.Equal(t, 5, e.audio.CountReady())

	dst := [][]float32{make([]float32, 5)}
	e.audio.Read(dst, 0, 5)
	assert.Equal(t, []float32{5, 6, 7, 8, 9}, dst[0])
	assert.InDelta(t, 1.5, e.decodedUntil, 1e-9)
}

func TestEnqueueAudioGivesUpOnSeek(t *testing.T) {
	e := newTestEngine(1, 4, 4)
	planes := [][]float32{make([]float32, 16)}

	done := make(chan struct{})
	go func() {
		defer close(done)
		e.enqueueAudio(context.Background(), planes, 16, 0, 48000)
	}()

	time.Sleep(5 * time.Millisecond)
	e.SetPositionSeconds(3, true)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("enqueueAudio kept blocking after a seek request")
	}
	assert.Equal(t, 4, e.audio.CountReady())
}

func TestEnqueueAudioGivesUpOnCancel(t *testing.T) {
	e := newTestEngine(1, 4, 4)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	e.enqueueAudio(ctx, [][]float32{make([]float32, 8)}, 8, 0, 48000)
	assert.Equal(t, 4, e.audio.CountReady())
}

func TestEnqueueVideo(t *testing.T) {
	e := newTestEngine(1, 4, 2)
	e.skipUntil = 1

	ctx := context.Background()
	e.enqueueVideo(ctx, framequeue.VideoFrame{PTS: 0.5})
	e.enqueueVideo(ctx, framequeue.VideoFrame{PTS: 1.0})
	e.enqueueVideo(ctx, framequeue.VideoFrame{PTS: 1.04})

	assert.Equal(t, 2, e.video.CountUnread())
	assert.Equal(t, 1.04, e.decodedUntil, "video paces video-only input")

	cctx, cancel := context.WithCancel(ctx)
	cancel()
	e.enqueueVideo(cctx, framequeue.VideoFrame{PTS: 2})
	assert.Equal(t, 2, e.video.CountUnread())
}

func TestAhead(t *testing.T) {
	e := newTestEngine(1, 4, 2)
	e.decodedUntil = 5
	assert.False(t, e.ahead(), "no audio stream")

	e.audioStream = &AudioStream{}
	e.SetPositionSeconds(4.5, false)
	assert.False(t, e.ahead())
	e.SetPositionSeconds(3.5, false)
	assert.True(t, e.ahead())
}

func TestSeekClearsEndOfFile(t *testing.T) {
	e := newTestEngine(1, 8, 4)
	e.Controller.Reset(10)

	e.audio.Write([][]float32{{1, 2, 3}}, 3)
	e.video.Push(framequeue.VideoFrame{PTS: 9})

	// Past the end: the request alone keeps the latch, the decoder clears it
	// when it moves.
	e.SetEndOfFile()
	e.SetPositionSeconds(12, true)
	require.True(t, e.EndOfFile())

	require.NoError(t, e.step(context.Background()))
	assert.False(t, e.EndOfFile())
	assert.False(t, e.SeekPending())
	assert.Equal(t, 12.0, e.skipUntil)
	assert.Equal(t, 0, e.audio.CountReady())
	assert.Equal(t, 0, e.video.CountUnread())
}

func TestEndOfFileLatchedDuringSeek(t *testing.T) {
	e := newTestEngine(1, 8, 4)
	e.Controller.Reset(0)

	// The seek is requested just before the producer latches end of file.
	e.SetPositionSeconds(1, true)
	e.SetEndOfFile()

	require.NoError(t, e.step(context.Background()))
	assert.False(t, e.EndOfFile(), "producer must not idle on a stale latch")
	assert.Equal(t, 1.0, e.decodedUntil)
}

func TestVideoPresentationTime(t *testing.T) {
	vst := &VideoStream{timebase: 1.0 / 90000, frameDuration: 0.04}

	_, ok := vst.presentationTime(astiav.NoPtsValue)
	assert.False(t, ok, "nothing to follow")

	pts, ok := vst.presentationTime(90000)
	require.True(t, ok)
	assert.InDelta(t, 1.0, pts, 1e-9)

	pts, ok = vst.presentationTime(astiav.NoPtsValue)
	require.True(t, ok)
	assert.InDelta(t, 1.04, pts, 1e-9)

	pts, ok = vst.presentationTime(astiav.NoPtsValue)
	require.True(t, ok)
	assert.InDelta(t, 1.08, pts, 1e-9)
}

func TestStartWithoutInput(t *testing.T) {
	e := newTestEngine(2, 16, 2)
	assert.ErrorIs(t, e.Start(), ErrNotOpen)
	e.Stop()
	assert.NoError(t, e.Close())
}

func TestOpenMissingFile(t *testing.T) {
	e := newTestEngine(2, 16, 2)
	err := e.Open(filepath.Join(t.TempDir(), "missing.mp4"))
	require.Error(t, err)

	assert.Equal(t, 0.0, e.SampleRate())
	assert.Equal(t, 0, e.Channels())
	assert.Equal(t, "", e.PixelFormat())
	assert.ErrorIs(t, e.Start(), ErrNotOpen)
}
