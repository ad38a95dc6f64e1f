package testsupport

import (
	"errors"
	"sync"

	"stave/internal/playback"
)

// FakePlayer is a playback.Player driven by the test. Emit delivers events
// synchronously on the caller's goroutine.
type FakePlayer struct {
	LoadErr  error
	StartErr error

	// ManualReady defers the ready callback until Ready is called.
	ManualReady bool

	mu      sync.Mutex
	loaded  []string
	ready   func()
	started int
	stopped int
	now     float64
	subs    map[int]func(playback.Event)
	nextSub int
	loadSig chan struct{}
}

// NewFakePlayer returns an idle fake player.
func NewFakePlayer() *FakePlayer {
	return &FakePlayer{subs: make(map[int]func(playback.Event)), loadSig: make(chan struct{}, 16)}
}

func (p *FakePlayer) LoadFile(dataURL string, onReady func()) error {
	if p.LoadErr != nil {
		return p.LoadErr
	}
	p.mu.Lock()
	p.loaded = append(p.loaded, dataURL)
	manual := p.ManualReady
	if manual {
		p.ready = onReady
	}
	p.mu.Unlock()
	select {
	case p.loadSig <- struct{}{}:
	default:
	}
	if !manual && onReady != nil {
		onReady()
	}
	return nil
}

func (p *FakePlayer) Start() error {
	if p.StartErr != nil {
		return p.StartErr
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.loaded) == 0 {
		return errors.New("no file loaded")
	}
	p.started++
	return nil
}

func (p *FakePlayer) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopped++
	p.now = 0
}

func (p *FakePlayer) CurrentTime() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.now
}

func (p *FakePlayer) Subscribe(fn func(playback.Event)) func() {
	p.mu.Lock()
	defer p.mu.Unlock()
	id := p.nextSub
	p.nextSub++
	p.subs[id] = fn
	return func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		delete(p.subs, id)
	}
}

// Ready fires the pending ready callback of a ManualReady player.
func (p *FakePlayer) Ready() {
	p.mu.Lock()
	fn := p.ready
	p.ready = nil
	p.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// WaitLoaded returns a channel signalled on every LoadFile call.
func (p *FakePlayer) WaitLoaded() <-chan struct{} { return p.loadSig }

// SetTime moves the playback clock.
func (p *FakePlayer) SetTime(ms float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.now = ms
}

// Emit delivers ev to every subscriber.
func (p *FakePlayer) Emit(ev playback.Event) {
	p.mu.Lock()
	subs := make([]func(playback.Event), 0, len(p.subs))
	for _, fn := range p.subs {
		subs = append(subs, fn)
	}
	p.mu.Unlock()
	for _, fn := range subs {
		fn(ev)
	}
}

// Loaded returns every data URL passed to LoadFile.
func (p *FakePlayer) Loaded() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.loaded...)
}

// Counts returns how often Start and Stop were called.
func (p *FakePlayer) Counts() (started, stopped int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.started, p.stopped
}

// Subscribers returns the number of live subscriptions.
func (p *FakePlayer) Subscribers() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.subs)
}
