// Package midiplayer is an in-process playback clock for Standard MIDI Files.
// It does not synthesize sound; it replays note timing so highlights can
// follow the score.
package midiplayer

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/smf"

	"stave/internal/logging"
	"stave/internal/playback"
	"stave/internal/services"
)

// ErrNotLoaded is returned by Start before a track is loaded.
var ErrNotLoaded = errors.New("no track loaded")

// Option configures a Player.
type Option func(*Player)

// WithLogger attaches a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Player) {
		p.logger = logging.NewComponentLogger(logger, "midiplayer")
	}
}

// Player replays the note events of a MIDI file against the wall clock.
type Player struct {
	logger *slog.Logger

	mu        sync.Mutex
	events    []playback.Event
	duration  float64
	subs      map[int]func(playback.Event)
	nextSub   int
	running   bool
	startedAt time.Time
	halt      chan struct{}
}

// New returns an idle player.
func New(opts ...Option) *Player {
	p := &Player{
		logger: logging.NewComponentLogger(nil, "midiplayer"),
		subs:   make(map[int]func(playback.Event)),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// LoadFile decodes a base64 MIDI data URL, replacing any loaded track. A
// running track is stopped first. onReady is called before LoadFile returns.
func (p *Player) LoadFile(dataURL string, onReady func()) error {
	data, err := decodeDataURL(dataURL)
	if err != nil {
		return services.Wrap(services.ErrAudioGeneration, "midiplayer", "load", "invalid data url", err)
	}
	events, duration, err := parseTrack(data)
	if err != nil {
		return services.Wrap(services.ErrAudioGeneration, "midiplayer", "load", "invalid midi", err)
	}

	p.mu.Lock()
	p.stopLocked()
	p.events = events
	p.duration = duration
	p.mu.Unlock()

	p.logger.Debug("track loaded",
		logging.Int("events", len(events)),
		logging.Float64("duration_ms", duration),
	)
	if onReady != nil {
		onReady()
	}
	return nil
}

// Start plays the loaded track from the beginning.
func (p *Player) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.events == nil {
		return ErrNotLoaded
	}
	p.stopLocked()
	p.running = true
	p.startedAt = time.Now()
	p.halt = make(chan struct{})
	go p.run(p.startedAt, p.halt, p.events, p.duration)
	return nil
}

// Stop halts playback. It returns without waiting for a callback that is
// already running.
func (p *Player) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopLocked()
}

func (p *Player) stopLocked() {
	if !p.running {
		return
	}
	p.running = false
	close(p.halt)
}

// CurrentTime returns the clock position in milliseconds, or 0 when stopped.
func (p *Player) CurrentTime() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.running {
		return 0
	}
	return float64(time.Since(p.startedAt)) / float64(time.Millisecond)
}

// Duration returns the loaded track's length in milliseconds.
func (p *Player) Duration() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.duration
}

// Subscribe registers fn for every event.
func (p *Player) Subscribe(fn func(playback.Event)) func() {
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

func (p *Player) run(start time.Time, halt <-chan struct{}, events []playback.Event, duration float64) {
	timer := time.NewTimer(time.Hour)
	timer.Stop()
	defer timer.Stop()

	wait := func(at float64) bool {
		delay := time.Until(start.Add(time.Duration(at * float64(time.Millisecond))))
		if delay <= 0 {
			select {
			case <-halt:
				return false
			default:
				return true
			}
		}
		timer.Reset(delay)
		select {
		case <-halt:
			return false
		case <-timer.C:
			return true
		}
	}

	for _, ev := range events {
		if !wait(ev.Time) {
			return
		}
		p.dispatch(halt, ev)
	}
	if !wait(duration) {
		return
	}

	p.mu.Lock()
	finished := p.running && p.halt == halt
	if finished {
		p.running = false
		close(p.halt)
	}
	p.mu.Unlock()
	if finished {
		p.dispatch(nil, playback.Event{Time: duration, End: true})
	}
}

// dispatch delivers ev unless halt has closed. Subscribers run without the
// player lock held.
func (p *Player) dispatch(halt <-chan struct{}, ev playback.Event) {
	p.mu.Lock()
	if halt != nil {
		select {
		case <-halt:
			p.mu.Unlock()
			return
		default:
		}
	}
	subs := make([]func(playback.Event), 0, len(p.subs))
	for _, fn := range p.subs {
		subs = append(subs, fn)
	}
	p.mu.Unlock()
	for _, fn := range subs {
		fn(ev)
	}
}

// parseTrack flattens every track of an SMF into note events ordered by time.
func parseTrack(data []byte) ([]playback.Event, float64, error) {
	var (
		events   []playback.Event
		duration float64
	)
	reader := smf.ReadTracksFrom(bytes.NewReader(data)).Do(func(te smf.TrackEvent) {
		at := float64(te.AbsMicroSeconds) / 1000
		if at > duration {
			duration = at
		}
		var channel, key, velocity uint8
		msg := midi.Message(te.Message)
		switch {
		case msg.GetNoteStart(&channel, &key, &velocity):
			events = append(events, playback.Event{
				Message:  playback.MessageNoteOn,
				Channel:  int(channel),
				Note:     int(key),
				Velocity: int(velocity),
				Time:     at,
			})
		case msg.GetNoteEnd(&channel, &key):
			events = append(events, playback.Event{
				Message: playback.MessageNoteOff,
				Channel: int(channel),
				Note:    int(key),
				Time:    at,
			})
		}
	})
	if err := reader.Error(); err != nil {
		return nil, 0, err
	}
	if events == nil {
		events = []playback.Event{}
	}
	sort.SliceStable(events, func(i, j int) bool { return events[i].Time < events[j].Time })
	return events, duration, nil
}

func decodeDataURL(raw string) ([]byte, error) {
	rest, ok := strings.CutPrefix(raw, "data:")
	if !ok {
		return nil, errors.New("missing data: scheme")
	}
	meta, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return nil, errors.New("missing payload separator")
	}
	if !strings.HasSuffix(meta, ";base64") {
		decoded, err := url.PathUnescape(payload)
		if err != nil {
			return nil, err
		}
		return []byte(decoded), nil
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("decode base64: %w", err)
	}
	return data, nil
}
