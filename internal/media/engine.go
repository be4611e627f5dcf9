package media

// Engine is the decode side the Reader drives. It fills the ring buffer and
// frame queue the Reader was built with from its own goroutine.
type Engine interface {
	// Open loads a file. The producer is not running afterwards.
	Open(path string) error
	// Close stops the producer and releases the file. Safe to call when
	// nothing is open.
	Close() error

	// Start launches the producer goroutine. Stop cancels it and waits for
	// it to exit, after which the shared buffers may be touched freely.
	Start() error
	Stop()

	SampleRate() float64
	Channels() int
	Duration() float64
	VideoWidth() int
	VideoHeight() int
	PixelFormat() string

	// SetPositionSeconds posts a target time, or a seek when isSeek is set.
	// It must not block.
	SetPositionSeconds(t float64, isSeek bool)
	// EndOfFile reports whether the producer ran out of input.
	EndOfFile() bool
}
