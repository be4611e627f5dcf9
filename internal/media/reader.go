// Package media turns a background decoder into a pull-based audio/video
// source.
//
// The audio callback is the clock: every GetNextAudioBlock advances the
// sample position by the block length and tells the decoder where playback
// is. Video is slaved to that clock only through the shared position and its
// own frame queue.
package media

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/GoldenFealla/mediareader/internal/media/framequeue"
	"github.com/GoldenFealla/mediareader/internal/media/ringbuffer"
	"github.com/GoldenFealla/mediareader/internal/media/synchronizer"
	log "github.com/sirupsen/logrus"
)

var ErrLoadFailed = errors.New("media: load failed")

const defaultPollInterval = 5 * time.Millisecond

// AudioBlock is the region of a host buffer to fill: NumSamples frames from
// Start in every channel of Buffer.
type AudioBlock struct {
	Buffer     [][]float32
	Start      int
	NumSamples int
}

// Clear writes silence over the whole block.
func (b AudioBlock) Clear() {
	b.clearRange(0, b.NumSamples)
}

func (b AudioBlock) clearRange(from, to int) {
	for _, ch := range b.Buffer {
		clear(ch[b.Start+from : b.Start+to])
	}
}

// session is immutable once published.
type session struct {
	path        string
	sampleRate  float64
	channels    int
	duration    float64
	width       int
	height      int
	pixelFormat string
}

type Option func(*Reader)

// WithPollInterval sets how often WaitForNextAudioBlockReady rechecks the
// ring buffer.
func WithPollInterval(d time.Duration) Option {
	return func(r *Reader) {
		if d > 0 {
			r.pollInterval = d
		}
	}
}

// Reader drives an Engine and serves its output on demand.
//
// GetNextAudioBlock, SetNextReadPosition, GetNextReadPosition,
// GetTotalLength, IsEndOfFile and the position getters never block and may
// be called from a real-time audio callback. GetNextVideoFrame and
// NextVideoFrameSeconds belong to a single display goroutine. Loading,
// closing, PrepareToPlay and ReleaseResources must not overlap audio pulls.
type Reader struct {
	engine Engine
	audio  *ringbuffer.Buffer
	video  *framequeue.Queue

	audioFifoSize int
	pollInterval  time.Duration

	mu           sync.Mutex
	session      atomic.Pointer[session]
	position     synchronizer.Position
	presentation atomic.Uint64 // float64 bits
	listeners    listeners
}

// NewReader builds a reader over an engine that produces into audio and
// video. The ring buffer's capacity is kept across resizes.
func NewReader(engine Engine, audio *ringbuffer.Buffer, video *framequeue.Queue, opts ...Option) *Reader {
	r := &Reader{
		engine:        engine,
		audio:         audio,
		video:         video,
		audioFifoSize: audio.Capacity(),
		pollInterval:  defaultPollInterval,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Reader) AddListener(l Listener) {
	r.listeners.add(l)
}

func (r *Reader) RemoveListener(l Listener) {
	r.listeners.remove(l)
}

// LoadMediaFile replaces the current session with path. The previous file is
// closed before the attempt, so a failed load leaves nothing loaded.
func (r *Reader) LoadMediaFile(path string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.closeLocked(); err != nil {
		log.WithError(err).Warn("media: closing previous file failed")
	}

	if err := r.engine.Open(path); err != nil {
		log.WithError(err).WithField("path", path).Error("media: open failed")
		return fmt.Errorf("%w: %s: %w", ErrLoadFailed, path, err)
	}

	s := &session{
		path:        path,
		sampleRate:  r.engine.SampleRate(),
		channels:    r.engine.Channels(),
		duration:    r.engine.Duration(),
		width:       r.engine.VideoWidth(),
		height:      r.engine.VideoHeight(),
		pixelFormat: r.engine.PixelFormat(),
	}

	if s.channels > 0 {
		r.audio.SetSize(s.channels, r.audioFifoSize)
	}
	r.position.SetSampleRate(s.sampleRate)
	r.position.Reset()

	if err := r.engine.Start(); err != nil {
		if cerr := r.engine.Close(); cerr != nil {
			log.WithError(cerr).Warn("media: closing after failed start")
		}
		r.position.SetSampleRate(0)
		return fmt.Errorf("%w: %s: starting decoder failed: %w", ErrLoadFailed, path, err)
	}
	r.session.Store(s)

	log.WithFields(log.Fields{
		"path":        path,
		"sample_rate": s.sampleRate,
		"channels":    s.channels,
		"duration":    s.duration,
		"video":       fmt.Sprintf("%dx%d %s", s.width, s.height, s.pixelFormat),
	}).Info("media: file loaded")

	r.listeners.call(func(l Listener) { l.MediaChanged(path) })
	r.listeners.call(func(l Listener) { l.VideoSizeChanged(s.width, s.height, s.pixelFormat) })
	return nil
}

// CloseMediaFile stops the decoder and drops the session and all buffered
// data.
func (r *Reader) CloseMediaFile() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closeLocked()
}

func (r *Reader) closeLocked() error {
	r.session.Store(nil)
	err := r.engine.Close()

	r.audio.Reset()
	r.video.Reset()
	r.position.SetSampleRate(0)
	r.position.Reset()
	r.presentation.Store(math.Float64bits(0))

	if err != nil {
		return fmt.Errorf("media: closing engine failed: %w", err)
	}
	return nil
}

// PrepareToPlay sizes the ring buffer for the media's own channel count and
// rewinds to the start. The hints are ignored: the media's native sample rate
// is the clock and nothing here resamples.
func (r *Reader) PrepareToPlay(blockSizeHint int, sampleRateHint float64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.position.Reset()

	s := r.session.Load()
	if s == nil {
		return
	}

	log.WithFields(log.Fields{
		"block_size_hint":  blockSizeHint,
		"sample_rate_hint": sampleRateHint,
		"sample_rate":      s.sampleRate,
	}).Debug("media: prepare to play")

	r.engine.Stop()
	if s.channels > 0 {
		r.audio.SetSize(s.channels, r.audioFifoSize)
	}
	r.video.Reset()
	r.presentation.Store(math.Float64bits(0))
	r.engine.SetPositionSeconds(0, true)

	if err := r.engine.Start(); err != nil {
		log.WithError(err).Error("media: restarting decoder failed")
	}
}

// ReleaseResources stops the decoder and empties both buffers, keeping their
// allocations. PrepareToPlay starts decoding again.
func (r *Reader) ReleaseResources() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.engine.Stop()
	r.audio.Clear()
	r.video.Reset()
}

// GetNextAudioBlock fills block from the ring buffer and advances the clock by
// block.NumSamples. Whatever the buffer cannot supply is silence.
func (r *Reader) GetNextAudioBlock(block AudioBlock) {
	s := r.session.Load()
	if s == nil || s.channels <= 0 {
		block.Clear()
		r.position.Advance(block.NumSamples)
		return
	}

	if !r.position.Valid() {
		block.Clear()
		r.position.Advance(block.NumSamples)
		log.Tracef("media: invalid sample rate %v", r.position.SampleRate())
		return
	}

	r.engine.SetPositionSeconds(r.position.Seconds(), false)

	n := block.NumSamples
	if got := r.audio.Read(block.Buffer, block.Start, n); got < n {
		block.clearRange(got, n)
	}

	r.position.Advance(n)

	if r.position.CheckEnded(r.engine.EndOfFile(), r.position.TotalLength(s.duration)) {
		log.WithField("position", r.position.Seconds()).Debug("media: playback ended")
		r.listeners.call(func(l Listener) { l.PlaybackEnded() })
	}
}

// WaitForNextAudioBlockReady polls until numSamples frames are buffered or
// timeout passes, and reports whether they became ready. The answer can be
// stale by the time the caller acts on it. Never call it from the audio
// callback.
func (r *Reader) WaitForNextAudioBlockReady(numSamples int, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for r.audio.CountReady() < numSamples {
		if !time.Now().Before(deadline) {
			return false
		}
		time.Sleep(r.pollInterval)
	}
	return true
}

// SetNextReadPosition jumps the clock to pos and asks the decoder to seek
// there. Without a valid sample rate it does nothing.
func (r *Reader) SetNextReadPosition(pos int64) {
	if !r.position.Valid() {
		log.Debug("media: invalid sample rate, seek ignored")
		return
	}

	r.position.Set(pos)
	if pos < r.GetTotalLength() {
		r.position.Rearm()
	}
	r.engine.SetPositionSeconds(r.position.SecondsAt(pos), true)
}

func (r *Reader) GetNextReadPosition() int64 {
	return r.position.Get()
}

// GetTotalLength is the media duration in samples, 0 when the rate is unknown.
func (r *Reader) GetTotalLength() int64 {
	s := r.session.Load()
	if s == nil {
		return 0
	}
	return r.position.TotalLength(s.duration)
}

// IsLooping is always false; looping is not supported.
func (r *Reader) IsLooping() bool {
	return false
}

func (r *Reader) IsEndOfFile() bool {
	if r.session.Load() == nil {
		return false
	}
	return r.engine.EndOfFile()
}

// PositionSeconds is the clock in seconds, -1 when the rate is unknown.
func (r *Reader) PositionSeconds() float64 {
	return r.position.Seconds()
}

// GetNextVideoFrame takes the oldest unread frame. With nothing decoded yet
// it returns false and the caller keeps showing what it has.
func (r *Reader) GetNextVideoFrame() (framequeue.VideoFrame, bool) {
	f, ok := r.video.Take()
	if !ok {
		return framequeue.VideoFrame{}, false
	}

	r.presentation.Store(math.Float64bits(f.PTS))
	return f, true
}

// NextVideoFrameSeconds returns the presentation time of the frame
// GetNextVideoFrame would return, without taking it.
func (r *Reader) NextVideoFrameSeconds() (float64, bool) {
	f, ok := r.video.Peek()
	if !ok {
		return 0, false
	}
	return f.PTS, true
}

// CurrentPresentationSeconds is the PTS of the last frame handed out.
func (r *Reader) CurrentPresentationSeconds() float64 {
	return math.Float64frombits(r.presentation.Load())
}

func (r *Reader) SampleRate() float64 {
	if s := r.session.Load(); s != nil {
		return s.sampleRate
	}
	return 0
}

func (r *Reader) NumChannels() int {
	if s := r.session.Load(); s != nil {
		return s.channels
	}
	return 0
}

func (r *Reader) Duration() float64 {
	if s := r.session.Load(); s != nil {
		return s.duration
	}
	return 0
}

func (r *Reader) VideoSize() (width, height int, pixelFormat string) {
	if s := r.session.Load(); s != nil {
		return s.width, s.height, s.pixelFormat
	}
	return 0, 0, ""
}

// Path is the file currently loaded, empty when none is.
func (r *Reader) Path() string {
	if s := r.session.Load(); s != nil {
		return s.path
	}
	return ""
}
