package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/kr/pretty"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

var ErrNoInput = errors.New("config: no input file")

// Load layers defaults, flags, the config file and MEDIAREADER_* environment
// variables, and sets up logging from the result. The first positional
// argument is taken as the input when --input is not given.
func Load(args []string) (*Config, error) {
	v := viper.New()
	defaults := DefaultConfig()

	v.SetDefault("audio.fifo_size", defaults.Audio.FifoSize)
	v.SetDefault("audio.block_size", defaults.Audio.BlockSize)
	v.SetDefault("audio.read_ahead", defaults.Audio.ReadAhead)
	v.SetDefault("audio.wait_poll", defaults.Audio.WaitPoll)
	v.SetDefault("audio.buffer_size", defaults.Audio.BufferSize)
	v.SetDefault("audio.volume", defaults.Audio.Volume)
	v.SetDefault("video.fifo_size", defaults.Video.FifoSize)
	v.SetDefault("video.refresh", defaults.Video.Refresh)
	v.SetDefault("window.title", defaults.Window.Title)
	v.SetDefault("window.width", defaults.Window.Width)
	v.SetDefault("window.height", defaults.Window.Height)

	// Flags
	fs := pflag.NewFlagSet("mediareader", pflag.ContinueOnError)
	fs.String("input", "", "media file to play")
	fs.String("config_file", defaults.ConfigFile, "configure filename")
	fs.String("level", defaults.Level, "Log level")
	fs.Int("audio.fifo_size", defaults.Audio.FifoSize, "audio ring buffer size in frames")
	fs.Int("audio.block_size", defaults.Audio.BlockSize, "expected audio block size in frames")
	fs.Int("audio.read_ahead", defaults.Audio.ReadAhead, "how far the decoder may run ahead of playback, in ms")
	fs.Int("audio.wait_poll", defaults.Audio.WaitPoll, "poll interval while waiting for audio, in ms")
	fs.Int("audio.buffer_size", defaults.Audio.BufferSize, "output device buffer, in ms")
	fs.Float64("audio.volume", defaults.Audio.Volume, "output volume, 0 to 1")
	fs.Int("video.fifo_size", defaults.Video.FifoSize, "video frame queue size")
	fs.Int("video.refresh", defaults.Video.Refresh, "video surface refresh rate in Hz")
	fs.String("window.title", defaults.Window.Title, "window title")
	fs.Int("window.width", defaults.Window.Width, "initial window width")
	fs.Int("window.height", defaults.Window.Height, "initial window height")
	if err := fs.Parse(args); err != nil {
		return nil, fmt.Errorf("config: parsing flags failed: %w", err)
	}
	if err := v.BindPFlags(fs); err != nil {
		return nil, fmt.Errorf("config: binding flags failed: %w", err)
	}

	// File
	v.SetConfigFile(v.GetString("config_file"))
	if err := v.ReadInConfig(); err != nil {
		if fs.Changed("config_file") {
			return nil, fmt.Errorf("config: reading %s failed: %w", v.GetString("config_file"), err)
		}
		log.WithError(err).Debug("config: using defaults")
	}

	// Environment
	v.SetEnvPrefix("mediareader")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal failed: %w", err)
	}
	if cfg.Input == "" && fs.NArg() > 0 {
		cfg.Input = fs.Arg(0)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	initLog(cfg.Level)
	log.Debugf("Current configurations: \n%# v", pretty.Formatter(cfg))

	return &cfg, nil
}

func initLog(level string) {
	if l, err := log.ParseLevel(level); err == nil {
		log.SetLevel(l)
		log.SetReportCaller(l >= log.DebugLevel)
	}
}

// Validate checks if all required configuration values are set
func (c *Config) Validate() error {
	if c.Input == "" {
		return ErrNoInput
	}
	if c.Audio.FifoSize <= 0 {
		return fmt.Errorf("config: audio.fifo_size must be positive, got %d", c.Audio.FifoSize)
	}
	if c.Audio.BlockSize <= 0 {
		return fmt.Errorf("config: audio.block_size must be positive, got %d", c.Audio.BlockSize)
	}
	if c.Video.FifoSize <= 0 {
		return fmt.Errorf("config: video.fifo_size must be positive, got %d", c.Video.FifoSize)
	}
	return nil
}
