package widget

import (
	"context"
	"image"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/canvas"
	"github.com/GoldenFealla/mediareader/internal/media/framequeue"
)

// VideoSource is the video pull side of a media.Reader.
type VideoSource interface {
	PositionSeconds() float64
	NextVideoFrameSeconds() (float64, bool)
	GetNextVideoFrame() (framequeue.VideoFrame, bool)
}

// VideoFrame shows the newest frame that is due against the audio clock and
// holds the previous one while nothing new is due.
type VideoFrame struct {
	src VideoSource
	img *canvas.Image

	now func() time.Time

	// Wall clock fallback for input without a usable audio clock.
	started bool
	start   time.Time
	base    float64
}

func NewVideoFrame(src VideoSource) *VideoFrame {
	img := canvas.NewImageFromImage(image.NewRGBA(image.Rect(0, 0, 1, 1)))
	img.FillMode = canvas.ImageFillContain
	img.ScaleMode = canvas.ImageScaleFastest

	return &VideoFrame{
		src: src,
		img: img,
		now: time.Now,
	}
}

func (v *VideoFrame) Object() fyne.CanvasObject {
	return v.img
}

func (v *VideoFrame) clock(next float64) float64 {
	if pos := v.src.PositionSeconds(); pos >= 0 {
		return pos
	}
	if !v.started {
		v.started = true
		v.start = v.now()
		v.base = next
	}
	return v.base + v.now().Sub(v.start).Seconds()
}

// Next drains every frame due by now and returns the last one. Frames are
// never shown early.
func (v *VideoFrame) Next() (framequeue.VideoFrame, bool) {
	var (
		out framequeue.VideoFrame
		got bool
	)

	for {
		t, ok := v.src.NextVideoFrameSeconds()
		if !ok || t > v.clock(t) {
			return out, got
		}
		f, ok := v.src.GetNextVideoFrame()
		if !ok {
			return out, got
		}
		out, got = f, true
	}
}

// Run refreshes the surface every interval until ctx is done.
func (v *VideoFrame) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		f, ok := v.Next()
		if !ok || f.Image == nil {
			continue
		}

		fyne.Do(func() {
			v.img.Image = f.Image
			v.img.Refresh()
		})
	}
}
