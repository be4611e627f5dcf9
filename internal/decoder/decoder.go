// Package decoder is the FFmpeg-backed producer behind media.Reader. It
// demuxes and decodes on its own goroutine, writing audio into a ring buffer
// and pictures into a frame queue, and follows the target time and seek
// requests it receives through its synchronizer.Controller.
package decoder

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/GoldenFealla/mediareader/internal/media/framequeue"
	"github.com/GoldenFealla/mediareader/internal/media/ringbuffer"
	"github.com/GoldenFealla/mediareader/internal/media/synchronizer"
	"github.com/asticode/go-astiav"
	"github.com/asticode/go-astikit"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

var (
	ErrInputContextNil = errors.New("input context is nil")
	ErrNoVideo         = errors.New("no video stream")
	ErrNoAudio         = errors.New("no audio stream")
	ErrNoStreams       = errors.New("no audio or video stream")
	ErrNotOpen         = errors.New("decoder: no input open")
)

// FFmpeg's AV_TIME_BASE, the unit of format-level timestamps.
const avTimeBase = 1_000_000

const (
	DefaultReadAhead = 2 * time.Second
	DefaultIdleWait  = 5 * time.Millisecond
)

type Option func(*Engine)

// WithReadAhead bounds how far past the playback target the producer decodes.
func WithReadAhead(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.readAhead = d.Seconds()
		}
	}
}

// WithIdleWait sets how long the producer sleeps when it has nothing to do.
func WithIdleWait(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.idle = d
		}
	}
}

type Engine struct {
	*synchronizer.Controller

	audio *ringbuffer.Buffer
	video *framequeue.Queue

	readAhead float64
	idle      time.Duration

	mu     sync.Mutex
	cancel context.CancelFunc
	group  *errgroup.Group

	closer      *astikit.Closer
	iformat     *astiav.FormatContext
	pkt         *astiav.Packet
	audioStream *AudioStream
	videoStream *VideoStream
	duration    float64

	// Producer goroutine state.
	skipUntil    float64
	decodedUntil float64
}

func NewEngine(audio *ringbuffer.Buffer, video *framequeue.Queue, opts ...Option) *Engine {
	e := &Engine{
		Controller: synchronizer.NewController(),
		audio:      audio,
		video:      video,
		readAhead:  DefaultReadAhead.Seconds(),
		idle:       DefaultIdleWait,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) Open(input string) (err error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.closeLocked(); err != nil {
		log.WithError(err).Warn("decoder: closing previous input failed")
	}

	closer := astikit.NewCloser()
	defer func() {
		if err != nil {
			closer.Close()
		}
	}()

	iformat := astiav.AllocFormatContext()
	if iformat == nil {
		return errors.New("format context: allocating failed")
	}
	closer.Add(iformat.Free)

	if err := iformat.OpenInput(input, nil, nil); err != nil {
		return fmt.Errorf("format context: opening input failed: %w", err)
	}
	closer.Add(iformat.CloseInput)

	if err := iformat.FindStreamInfo(nil); err != nil {
		return fmt.Errorf("format context: finding stream info failed: %w", err)
	}

	as := NewAudioStream()
	closer.Add(as.Close)
	if err := as.LoadInputContext(iformat); err != nil {
		if !errors.Is(err, ErrNoAudio) {
			return fmt.Errorf("loaded audio stream failed: %w", err)
		}
		as = nil
	}

	vs := NewVideoStream()
	closer.Add(vs.Close)
	if err := vs.LoadInputContext(iformat); err != nil {
		if !errors.Is(err, ErrNoVideo) {
			return fmt.Errorf("loaded video stream failed: %w", err)
		}
		vs = nil
	}

	if as == nil && vs == nil {
		return ErrNoStreams
	}

	pkt := astiav.AllocPacket()
	closer.Add(pkt.Free)

	e.closer = closer
	e.iformat = iformat
	e.pkt = pkt
	e.audioStream = as
	e.videoStream = vs
	e.duration = max(0, float64(iformat.Duration())/avTimeBase)
	e.skipUntil = 0
	e.decodedUntil = 0

	if as != nil {
		as.SetOutputCallback(e.enqueueAudio)
	}
	if vs != nil {
		vs.SetOutputCallback(e.enqueueVideo)
	}

	e.Controller.Reset(e.duration)
	return nil
}

// Close stops the producer and frees every FFmpeg resource of the input.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closeLocked()
}

func (e *Engine) closeLocked() error {
	e.stopLocked()

	if e.closer == nil {
		return nil
	}
	err := e.closer.Close()

	e.closer = nil
	e.iformat = nil
	e.pkt = nil
	e.audioStream = nil
	e.videoStream = nil
	e.duration = 0

	if err != nil {
		return fmt.Errorf("decoder: closing input failed: %w", err)
	}
	return nil
}

func (e *Engine) Start() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.iformat == nil {
		return ErrNotOpen
	}
	if e.cancel != nil {
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return e.run(ctx)
	})

	e.cancel = cancel
	e.group = g
	return nil
}

// Stop cancels the producer and waits for it to return.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stopLocked()
}

func (e *Engine) stopLocked() {
	if e.cancel == nil {
		return
	}
	e.cancel()
	if err := e.group.Wait(); err != nil {
		log.WithError(err).Error("decoder: producer failed")
	}
	e.cancel = nil
	e.group = nil
}

func (e *Engine) SampleRate() float64 {
	if e.audioStream == nil {
		return 0
	}
	return float64(e.audioStream.SampleRate())
}

func (e *Engine) Channels() int {
	if e.audioStream == nil {
		return 0
	}
	return e.audioStream.Channels()
}

func (e *Engine) Duration() float64 {
	return e.duration
}

func (e *Engine) VideoWidth() int {
	if e.videoStream == nil {
		return 0
	}
	return e.videoStream.Width()
}

func (e *Engine) VideoHeight() int {
	if e.videoStream == nil {
		return 0
	}
	return e.videoStream.Height()
}

func (e *Engine) PixelFormat() string {
	if e.videoStream == nil {
		return ""
	}
	return e.videoStream.PixelFormat()
}

func (e *Engine) run(ctx context.Context) error {
	log.Debug("decoder: producer started")
	defer log.Debug("decoder: producer stopped")

	for ctx.Err() == nil {
		if err := e.step(ctx); err != nil {
			return err
		}
	}
	return nil
}

// step does one unit of producer work: a pending seek, an idle wait or one
// packet.
func (e *Engine) step(ctx context.Context) error {
	if t, ok := e.TakeSeek(); ok {
		e.seek(t)
		return nil
	}

	if e.EndOfFile() || e.ahead() {
		e.wait(ctx)
		return nil
	}

	stop, err := e.readPacket(ctx)
	if err != nil {
		return err
	}
	if stop {
		e.drain(ctx)
		// A seek racing with this is taken on the next step and clears the
		// latch again.
		if !e.SeekPending() {
			e.SetEndOfFile()
			log.WithField("decoded_until", e.decodedUntil).Debug("decoder: end of file")
		}
	}
	return nil
}

// ahead reports whether decoded audio is far enough past the playback target.
// Video-only input is paced by the frame queue alone.
func (e *Engine) ahead() bool {
	if e.audioStream == nil {
		return false
	}
	return e.decodedUntil-e.Target() > e.readAhead
}

// wait parks the producer until a seek arrives, the idle wait passes or ctx
// is done.
func (e *Engine) wait(ctx context.Context) {
	t := time.NewTimer(e.idle)
	defer t.Stop()

	select {
	case <-ctx.Done():
	case <-e.Wake():
	case <-t.C:
	}
}

// interrupted reports whether a blocked write should give up.
func (e *Engine) interrupted(ctx context.Context) bool {
	return ctx.Err() != nil || e.SeekPending()
}

func (e *Engine) readPacket(ctx context.Context) (bool, error) {
	if err := e.iformat.ReadFrame(e.pkt); err != nil {
		if errors.Is(err, astiav.ErrEof) {
			return true, nil
		}
		return false, fmt.Errorf("decoding: reading packet failed: %w", err)
	}

	defer e.pkt.Unref()

	switch {
	case e.audioStream != nil && e.pkt.StreamIndex() == e.audioStream.Index():
		if err := e.audioStream.Decode(ctx, e.pkt); err != nil {
			log.WithError(err).Warn("decoder: skip audio packet")
		}
	case e.videoStream != nil && e.pkt.StreamIndex() == e.videoStream.Index():
		if err := e.videoStream.Decode(ctx, e.pkt); err != nil {
			log.WithError(err).Warn("decoder: skip video packet")
		}
	}

	return false, nil
}

// drain pulls the frames still buffered inside the codecs at end of input.
func (e *Engine) drain(ctx context.Context) {
	if e.audioStream != nil {
		if err := e.audioStream.Decode(ctx, nil); err != nil {
			log.WithError(err).Warn("decoder: draining audio failed")
		}
	}
	if e.videoStream != nil {
		if err := e.videoStream.Decode(ctx, nil); err != nil {
			log.WithError(err).Warn("decoder: draining video failed")
		}
	}
}

// seek repositions the demuxer at t, resets the codecs and marks everything
// already buffered as stale. The consumer skips the stale data itself.
func (e *Engine) seek(t float64) {
	fields := log.Fields{"target": t}

	if e.iformat != nil {
		if err := e.iformat.SeekFrame(-1, int64(t*avTimeBase), astiav.NewSeekFlags(astiav.SeekFlagBackward)); err != nil {
			log.WithFields(fields).WithError(err).Warn("decoder: seeking failed")
		}
	}
	if e.audioStream != nil {
		if err := e.audioStream.Flush(); err != nil {
			log.WithFields(fields).WithError(err).Warn("decoder: resetting audio codec failed")
		}
	}
	if e.videoStream != nil {
		if err := e.videoStream.Flush(); err != nil {
			log.WithFields(fields).WithError(err).Warn("decoder: resetting video codec failed")
		}
	}

	e.audio.Discard()
	e.video.Discard()
	e.skipUntil = t
	e.decodedUntil = t
	e.ClearEndOfFile()

	log.WithFields(fields).Debug("decoder: seeked")
}

// enqueueAudio writes n frames starting at pts seconds, dropping the part
// that lies before the last seek target. It blocks while the ring buffer is
// full unless a seek or stop interrupts it.
func (e *Engine) enqueueAudio(ctx context.Context, planes [][]float32, n int, pts float64, rate int) {
	if rate <= 0 || n <= 0 {
		return
	}

	offset := 0
	if pts < e.skipUntil {
		offset = int((e.skipUntil - pts) * float64(rate))
		if offset >= n {
			return
		}
	}
	e.decodedUntil = max(e.decodedUntil, pts+float64(n)/float64(rate))

	src := make([][]float32, len(planes))
	for written := offset; written < n; {
		if e.interrupted(ctx) {
			return
		}
		for ch := range planes {
			src[ch] = planes[ch][written:n]
		}
		written += e.audio.Write(src, n-written)
		if written < n {
			e.wait(ctx)
		}
	}
}

// enqueueVideo pushes f, waiting for room in the queue unless a seek or stop
// interrupts it.
func (e *Engine) enqueueVideo(ctx context.Context, f framequeue.VideoFrame) {
	if f.PTS < e.skipUntil {
		return
	}
	if e.audioStream == nil {
		e.decodedUntil = max(e.decodedUntil, f.PTS)
	}

	for !e.video.Push(f) {
		if e.interrupted(ctx) {
			return
		}
		e.wait(ctx)
	}
}

// openCodec allocates and opens a decoder for st.
func openCodec(st *astiav.Stream) (*astiav.CodecContext, error) {
	codec := astiav.FindDecoder(st.CodecParameters().CodecID())
	if codec == nil {
		return nil, errors.New("codec is nil")
	}

	cc := astiav.AllocCodecContext(codec)
	if cc == nil {
		return nil, errors.New("codec context is nil")
	}

	if err := st.CodecParameters().ToCodecContext(cc); err != nil {
		cc.Free()
		return nil, fmt.Errorf("updating codec context failed: %w", err)
	}

	if err := cc.Open(codec, nil); err != nil {
		cc.Free()
		return nil, fmt.Errorf("opening codec context failed: %w", err)
	}

	return cc, nil
}

func findStream(i *astiav.FormatContext, t astiav.MediaType) *astiav.Stream {
	for _, is := range i.Streams() {
		if is.CodecParameters().MediaType() == t {
			return is
		}
	}
	return nil
}
