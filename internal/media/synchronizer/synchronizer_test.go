package synchronizer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestControllerHintDoesNotSeek(t *testing.T) {
	c := NewController()
	c.Reset(10)

	c.SetPositionSeconds(1.5, false)
	assert.Equal(t, 1.5, c.Target())
	assert.False(t, c.SeekPending())

	select {
	case <-c.Wake():
		t.Fatal("hint should not wake the decoder")
	default:
	}
}

func TestControllerLatestSeekWins(t *testing.T) {
	c := NewController()
	c.Reset(10)

	c.SetPositionSeconds(2, true)
	c.SetPositionSeconds(4, true)
	require.True(t, c.SeekPending())

	got, ok := c.TakeSeek()
	require.True(t, ok)
	assert.Equal(t, 4.0, got)

	_, ok = c.TakeSeek()
	assert.False(t, ok)

	// Two requests, one buffered wake.
	<-c.Wake()
	select {
	case <-c.Wake():
		t.Fatal("wake channel should hold a single signal")
	default:
	}
}

func TestControllerSeekClearsEndOfFile(t *testing.T) {
	c := NewController()
	c.Reset(10)

	c.SetEndOfFile()
	require.True(t, c.EndOfFile())

	c.SetPositionSeconds(12, true)
	assert.True(t, c.EndOfFile(), "seek past the end keeps the latch")

	c.SetPositionSeconds(3, true)
	assert.False(t, c.EndOfFile())
}

func TestControllerSeekWithUnknownDuration(t *testing.T) {
	c := NewController()
	c.Reset(0)

	c.SetEndOfFile()
	c.SetPositionSeconds(0, true)
	assert.False(t, c.EndOfFile(), "no duration to compare against")

	c.SetEndOfFile()
	c.SetPositionSeconds(42, false)
	assert.True(t, c.EndOfFile(), "hints leave the latch alone")
}

func TestControllerClearEndOfFile(t *testing.T) {
	c := NewController()
	c.Reset(10)
	c.SetEndOfFile()
	c.ClearEndOfFile()
	assert.False(t, c.EndOfFile())
}

func TestControllerResetDropsPendingSeek(t *testing.T) {
	c := NewController()
	c.SetPositionSeconds(3, true)
	c.SetEndOfFile()

	c.Reset(5)
	assert.False(t, c.SeekPending())
	assert.False(t, c.EndOfFile())
	assert.Equal(t, 0.0, c.Target())
}

func TestPositionConversions(t *testing.T) {
	var p Position
	assert.False(t, p.Valid())
	assert.Equal(t, -1.0, p.Seconds())
	assert.Equal(t, int64(0), p.TotalLength(10))

	p.SetSampleRate(48000)
	assert.Equal(t, int64(480000), p.TotalLength(10))

	p.Set(24000)
	assert.Equal(t, 0.5, p.Seconds())
	assert.Equal(t, int64(24480), p.Advance(480))
	assert.Equal(t, 1.0, p.SecondsAt(48000))
}

func TestPositionEndedFiresOnce(t *testing.T) {
	var p Position
	p.SetSampleRate(100)
	total := p.TotalLength(1)

	p.Set(100)
	assert.False(t, p.CheckEnded(false, total), "no end without eof")
	assert.True(t, p.CheckEnded(true, total))
	assert.False(t, p.CheckEnded(true, total))

	p.Rearm()
	p.Set(50)
	assert.False(t, p.CheckEnded(true, total))
	p.Set(100)
	assert.True(t, p.CheckEnded(true, total))
}
