package media

import (
	"slices"
	"sync"
	"sync/atomic"
)

// Listener receives Reader notifications. PlaybackEnded is called from the
// audio callback, so implementations must return quickly and never block.
type Listener interface {
	MediaChanged(path string)
	VideoSizeChanged(width, height int, pixelFormat string)
	PlaybackEnded()
}

// ListenerFuncs adapts plain functions to Listener. Nil fields are skipped.
type ListenerFuncs struct {
	OnMediaChanged     func(path string)
	OnVideoSizeChanged func(width, height int, pixelFormat string)
	OnPlaybackEnded    func()
}

func (l *ListenerFuncs) MediaChanged(path string) {
	if l.OnMediaChanged != nil {
		l.OnMediaChanged(path)
	}
}

func (l *ListenerFuncs) VideoSizeChanged(width, height int, pixelFormat string) {
	if l.OnVideoSizeChanged != nil {
		l.OnVideoSizeChanged(width, height, pixelFormat)
	}
}

func (l *ListenerFuncs) PlaybackEnded() {
	if l.OnPlaybackEnded != nil {
		l.OnPlaybackEnded()
	}
}

// listeners is copy-on-write: mutation takes the lock, dispatch only loads
// the current slice.
type listeners struct {
	mu   sync.Mutex
	list atomic.Pointer[[]Listener]
}

func (ls *listeners) add(l Listener) {
	ls.mu.Lock()
	defer ls.mu.Unlock()

	var next []Listener
	if cur := ls.list.Load(); cur != nil {
		next = slices.Clone(*cur)
	}
	next = append(next, l)
	ls.list.Store(&next)
}

func (ls *listeners) remove(l Listener) {
	ls.mu.Lock()
	defer ls.mu.Unlock()

	cur := ls.list.Load()
	if cur == nil {
		return
	}
	next := slices.DeleteFunc(slices.Clone(*cur), func(x Listener) bool { return x == l })
	ls.list.Store(&next)
}

func (ls *listeners) call(f func(Listener)) {
	cur := ls.list.Load()
	if cur == nil {
		return
	}
	for _, l := range *cur {
		f(l)
	}
}
