package config

import "time"

// Config is the player configuration.
type Config struct {
	Input      string `mapstructure:"input"`
	ConfigFile string `mapstructure:"config_file"`
	Level      string `mapstructure:"level"`

	Audio  AudioConfig  `mapstructure:"audio"`
	Video  VideoConfig  `mapstructure:"video"`
	Window WindowConfig `mapstructure:"window"`
}

// AudioConfig sizes the audio path.
type AudioConfig struct {
	FifoSize   int     `mapstructure:"fifo_size"`   // frames
	BlockSize  int     `mapstructure:"block_size"`  // frames
	ReadAhead  int     `mapstructure:"read_ahead"`  // in milliseconds
	WaitPoll   int     `mapstructure:"wait_poll"`   // in milliseconds
	BufferSize int     `mapstructure:"buffer_size"` // device buffer, in milliseconds
	Volume     float64 `mapstructure:"volume"`
}

type VideoConfig struct {
	FifoSize int `mapstructure:"fifo_size"` // frames
	Refresh  int `mapstructure:"refresh"`   // display polls per second
}

type WindowConfig struct {
	Title  string `mapstructure:"title"`
	Width  int    `mapstructure:"width"`
	Height int    `mapstructure:"height"`
}

func (a *AudioConfig) GetReadAhead() time.Duration {
	return time.Duration(a.ReadAhead) * time.Millisecond
}

func (a *AudioConfig) GetWaitPoll() time.Duration {
	return time.Duration(a.WaitPoll) * time.Millisecond
}

func (a *AudioConfig) GetBufferSize() time.Duration {
	return time.Duration(a.BufferSize) * time.Millisecond
}

func (v *VideoConfig) GetRefreshInterval() time.Duration {
	if v.Refresh <= 0 {
		return time.Second / 60
	}
	return time.Second / time.Duration(v.Refresh)
}

// DefaultConfig returns a Config with sensible default values
func DefaultConfig() *Config {
	return &Config{
		ConfigFile: "mediareader.yaml",
		Level:      "info",
		Audio: AudioConfig{
			FifoSize:   48000,
			BlockSize:  1024,
			ReadAhead:  2000,
			WaitPoll:   5,
			BufferSize: 50,
			Volume:     1,
		},
		Video: VideoConfig{
			FifoSize: 30,
			Refresh:  60,
		},
		Window: WindowConfig{
			Title:  "Video player",
			Width:  800,
			Height: 450,
		},
	}
}
