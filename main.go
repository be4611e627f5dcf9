package main

import (
	"context"
	"errors"
	"os"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/app"
	"github.com/GoldenFealla/mediareader/internal/config"
	"github.com/GoldenFealla/mediareader/internal/decoder"
	"github.com/GoldenFealla/mediareader/internal/media"
	"github.com/GoldenFealla/mediareader/internal/media/framequeue"
	"github.com/GoldenFealla/mediareader/internal/media/ringbuffer"
	"github.com/GoldenFealla/mediareader/internal/output"
	"github.com/GoldenFealla/mediareader/internal/widget"
	log "github.com/sirupsen/logrus"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		log.Fatal(err)
	}

	audio := ringbuffer.New(2, cfg.Audio.FifoSize)
	video := framequeue.New(cfg.Video.FifoSize)

	engine := decoder.NewEngine(audio, video,
		decoder.WithReadAhead(cfg.Audio.GetReadAhead()),
	)
	reader := media.NewReader(engine, audio, video,
		media.WithPollInterval(cfg.Audio.GetWaitPoll()),
	)

	a := app.New()
	w := a.NewWindow(cfg.Window.Title)
	w.Resize(fyne.NewSize(float32(cfg.Window.Width), float32(cfg.Window.Height)))

	surface := widget.NewVideoFrame(reader)
	w.SetContent(surface.Object())

	reader.AddListener(&media.ListenerFuncs{
		OnMediaChanged: func(path string) {
			w.SetTitle(cfg.Window.Title + " - " + path)
		},
		OnVideoSizeChanged: func(width, height int, pixelFormat string) {
			log.WithFields(log.Fields{
				"width":        width,
				"height":       height,
				"pixel_format": pixelFormat,
			}).Info("video size changed")
		},
		OnPlaybackEnded: func() {
			// Called from the audio callback.
			go func() {
				log.Info("playback ended")
				fyne.Do(w.Close)
			}()
		},
	})

	if err := reader.LoadMediaFile(cfg.Input); err != nil {
		if errors.Is(err, decoder.ErrNoStreams) {
			log.WithField("input", cfg.Input).Fatal("nothing to play: no audio or video stream")
		}
		log.Fatal(err)
	}
	reader.PrepareToPlay(cfg.Audio.BlockSize, reader.SampleRate())

	var player *output.Player
	if reader.NumChannels() > 0 {
		if !reader.WaitForNextAudioBlockReady(cfg.Audio.BlockSize, cfg.Audio.GetBufferSize()*10) {
			log.Warn("audio not buffered yet, starting anyway")
		}

		player, err = output.NewPlayer(reader, int(reader.SampleRate()), reader.NumChannels(), cfg.Audio.GetBufferSize())
		if err != nil {
			log.Fatal(err)
		}
		player.SetVolume(cfg.Audio.Volume)
		player.Play()
	}

	ctx, cancel := context.WithCancel(context.Background())
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		surface.Run(ctx, cfg.Video.GetRefreshInterval())
		return nil
	})

	w.ShowAndRun()
	cancel()

	err = g.Wait()
	if player != nil {
		err = multierr.Append(err, player.Close())
	}
	err = multierr.Append(err, reader.CloseMediaFile())
	if err != nil {
		log.WithError(err).Error("shutdown failed")
		os.Exit(1)
	}
}
