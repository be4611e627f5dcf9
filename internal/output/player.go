// Package output plays a media.Reader through the system audio device. The
// device callback is the playback clock: every buffer oto asks for becomes one
// GetNextAudioBlock.
package output

import (
	"fmt"
	"time"

	"github.com/ebitengine/oto/v3"
)

type Player struct {
	ctx    *oto.Context
	player *oto.Player
}

// NewPlayer opens the audio device at the media's own rate and channel count.
// oto allows a single context per process.
func NewPlayer(src Source, sampleRate, channels int, bufferSize time.Duration) (*Player, error) {
	opts := &oto.NewContextOptions{
		SampleRate:   sampleRate,
		ChannelCount: channels,
		Format:       oto.FormatFloat32LE,
		BufferSize:   bufferSize,
	}

	ctx, ready, err := oto.NewContext(opts)
	if err != nil {
		return nil, fmt.Errorf("output: creating audio context failed: %w", err)
	}
	<-ready

	return &Player{
		ctx:    ctx,
		player: ctx.NewPlayer(NewStream(src, channels)),
	}, nil
}

func (p *Player) Play() {
	p.player.Play()
}

func (p *Player) Pause() {
	p.player.Pause()
}

func (p *Player) SetVolume(v float64) {
	p.player.SetVolume(v)
}

func (p *Player) Close() error {
	if err := p.player.Close(); err != nil {
		return fmt.Errorf("output: closing player failed: %w", err)
	}
	return nil
}
