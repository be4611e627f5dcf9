package decoder

import (
	"context"
	"errors"
	"fmt"

	"github.com/GoldenFealla/mediareader/internal/media/framequeue"
	"github.com/asticode/go-astiav"
	"github.com/asticode/go-astikit"
	log "github.com/sirupsen/logrus"
)

// Used when the stream does not advertise a frame rate.
const defaultFrameDuration = 1.0 / 25

type VideoStream struct {
	st *astiav.Stream
	cc *astiav.CodecContext

	df *astiav.Frame

	closer *astikit.Closer

	width, height int
	pixelFormat   string
	timebase      float64

	// Frames without a pts are placed one frame interval after the last.
	frameDuration float64
	last          float64
	hasLast       bool

	outputCallback func(context.Context, framequeue.VideoFrame)
}

func NewVideoStream() *VideoStream {
	vst := &VideoStream{
		closer: astikit.NewCloser(),
	}

	vst.df = astiav.AllocFrame()
	vst.closer.Add(vst.df.Free)

	vst.closer.Add(func() {
		if vst.cc != nil {
			vst.cc.Free()
			vst.cc = nil
		}
	})

	return vst
}

func (vst *VideoStream) Close() {
	vst.closer.Close()
}

func (vst *VideoStream) Index() int {
	return vst.st.Index()
}

func (vst *VideoStream) Width() int {
	return vst.width
}

func (vst *VideoStream) Height() int {
	return vst.height
}

func (vst *VideoStream) PixelFormat() string {
	return vst.pixelFormat
}

func (vst *VideoStream) SetOutputCallback(callback func(context.Context, framequeue.VideoFrame)) {
	vst.outputCallback = callback
}

func (vst *VideoStream) LoadInputContext(i *astiav.FormatContext) error {
	if i == nil {
		return ErrInputContextNil
	}

	vst.st = findStream(i, astiav.MediaTypeVideo)
	if vst.st == nil {
		return ErrNoVideo
	}

	cc, err := openCodec(vst.st)
	if err != nil {
		return fmt.Errorf("finding video codec: %w", err)
	}
	vst.cc = cc

	vst.width = cc.Width()
	vst.height = cc.Height()
	vst.pixelFormat = cc.PixelFormat().String()
	vst.timebase = vst.st.TimeBase().Float64()
	vst.frameDuration = defaultFrameDuration
	if r := vst.st.AvgFrameRate().Float64(); r > 0 {
		vst.frameDuration = 1 / r
	}
	vst.hasLast = false

	return nil
}

// Flush reopens the codec so no reference frame survives a seek.
func (vst *VideoStream) Flush() error {
	cc, err := openCodec(vst.st)
	if err != nil {
		return fmt.Errorf("video flush: %w", err)
	}
	vst.cc.Free()
	vst.cc = cc
	vst.hasLast = false
	return nil
}

// Decode sends pkt to the codec and forwards every picture it yields. A nil
// pkt drains the codec.
func (vst *VideoStream) Decode(ctx context.Context, pkt *astiav.Packet) error {
	if err := vst.cc.SendPacket(pkt); err != nil {
		return fmt.Errorf("video decode: sending packet to video decoder failed: %w", err)
	}

	for {
		stop, err := vst.decode(ctx)
		if err != nil {
			return err
		}

		if stop {
			return nil
		}
	}
}

// presentationTime converts a frame pts to seconds. A missing pts follows the
// previous frame; with nothing to follow since the last flush it is unknown.
func (vst *VideoStream) presentationTime(pts int64) (float64, bool) {
	var t float64
	switch {
	case pts != astiav.NoPtsValue:
		t = float64(pts) * vst.timebase
	case vst.hasLast:
		t = vst.last + vst.frameDuration
	default:
		return 0, false
	}
	vst.last, vst.hasLast = t, true
	return t, true
}

func (vst *VideoStream) decode(ctx context.Context) (bool, error) {
	if err := vst.cc.ReceiveFrame(vst.df); err != nil {
		if errors.Is(err, astiav.ErrEof) || errors.Is(err, astiav.ErrEagain) {
			return true, nil
		}
		return true, fmt.Errorf("video decoding: receiving frame failed: %w", err)
	}

	defer vst.df.Unref()

	pts, ok := vst.presentationTime(vst.df.Pts())
	if !ok {
		log.Trace("skip untimed video frame")
		return false, nil
	}

	i, err := vst.df.Data().GuessImageFormat()
	if err != nil {
		log.WithError(err).Trace("skip video frame")
		return false, nil
	}

	if err := vst.df.Data().ToImage(i); err != nil {
		log.WithError(err).Trace("skip video frame")
		return false, nil
	}

	if vst.outputCallback != nil {
		vst.outputCallback(ctx, framequeue.VideoFrame{
			Image:       i,
			PTS:         pts,
			Width:       vst.df.Width(),
			Height:      vst.df.Height(),
			PixelFormat: vst.df.PixelFormat().String(),
		})
	}

	return false, nil
}
