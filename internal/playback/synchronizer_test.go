package playback_test

import (
	"context"
	"errors"
	"fmt"
	"math"
	"reflect"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"stave/internal/blockspec"
	"stave/internal/engine"
	"stave/internal/notifications"
	"stave/internal/playback"
	"stave/internal/services"
	"stave/internal/session"
	"stave/internal/testsupport"
)

type mapFetcher map[string]string

func (m mapFetcher) Fetch(_ context.Context, path string) ([]byte, error) {
	data, ok := m[path]
	if !ok {
		return nil, services.Wrap(services.ErrFetch, "fetch", "read", path, nil)
	}
	return []byte(data), nil
}

type recordingMarker struct {
	mu      sync.Mutex
	marked  map[string]map[string]bool
	cleared []string
}

func newRecordingMarker() *recordingMarker {
	return &recordingMarker{marked: make(map[string]map[string]bool)}
}

func (m *recordingMarker) Mark(id string, add, remove []string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	set := m.marked[id]
	if set == nil {
		set = make(map[string]bool)
		m.marked[id] = set
	}
	for _, r := range remove {
		delete(set, r)
	}
	for _, a := range add {
		set[a] = true
	}
	return true
}

func (m *recordingMarker) ClearMarks(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.marked, id)
	m.cleared = append(m.cleared, id)
}

func (m *recordingMarker) marks(id string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for k := range m.marked[id] {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func (m *recordingMarker) clearedIDs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.cleared...)
}

type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type harness struct {
	toolkit  *testsupport.FakeToolkit
	player   *testsupport.FakePlayer
	marker   *recordingMarker
	registry *session.Registry
	feed     *notifications.Feed
	clock    *manualClock
	sync     *playback.Synchronizer
}

// notesEvery500 sounds note "<n>" during [500n, 500n+500).
func notesEvery500(ms float64) []string {
	return []string{fmt.Sprintf("note-%d", int(math.Floor(ms/500)))}
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	h := &harness{
		toolkit:  testsupport.NewFakeToolkit(),
		player:   testsupport.NewFakePlayer(),
		marker:   newRecordingMarker(),
		registry: testsupport.MustOpenRegistry(t, cfg),
		feed:     notifications.NewFeed(8),
		clock:    &manualClock{now: time.Unix(1700000000, 0)},
	}
	h.toolkit.Elements = notesEvery500
	h.use(h.player)
	return h
}

// use rebuilds the synchronizer around player.
func (h *harness) use(player playback.Player) {
	adapter := engine.NewAdapter(h.toolkit, nil, nil)
	fetcher := mapFetcher{"a.mei": "score A", "b.mei": "score B"}
	h.sync = playback.New(adapter, fetcher, h.registry, player, h.marker,
		playback.WithClock(h.clock.Now),
		playback.WithNotifier(h.feed),
	)
}

func (h *harness) session(t *testing.T, path string) string {
	t.Helper()
	s := testsupport.NewSession(t, h.registry, session.Inputs{SourcePath: path, Options: blockspec.Options{"scale": float64(40)}})
	return s.ID
}

func TestPlayStartsPlayerAndHighlights(t *testing.T) {
	h := newHarness(t)
	id := h.session(t, "a.mei")

	if err := h.sync.Play(context.Background(), id); err != nil {
		t.Fatalf("Play: %v", err)
	}
	if h.sync.State() != playback.StatePlaying {
		t.Fatalf("expected playing, got %s", h.sync.State())
	}
	loaded := h.player.Loaded()
	if len(loaded) != 1 || !strings.HasPrefix(loaded[0], "data:audio/midi;base64,") {
		t.Fatalf("unexpected loads %v", loaded)
	}
	if started, _ := h.player.Counts(); started != 1 {
		t.Fatalf("expected one start, got %d", started)
	}

	h.player.SetTime(480)
	h.player.Emit(playback.Event{Message: playback.MessageNoteOn, Note: 60, Velocity: 90, Time: 480})

	// 480 ms plus the lookahead lands in the second note.
	want := []string{"note-1"}
	if got := h.sync.Highlighted(); !reflect.DeepEqual(got, want) {
		t.Fatalf("Highlighted = %v, want %v", got, want)
	}
	if got := h.marker.marks(id); !reflect.DeepEqual(got, want) {
		t.Fatalf("marks = %v, want %v", got, want)
	}
	status := h.sync.Status()
	if status.SessionID != id || status.State != playback.StatePlaying || status.Position != 480 {
		t.Fatalf("unexpected status %+v", status)
	}
}

func TestHighlightUpdatesAreThrottled(t *testing.T) {
	h := newHarness(t)
	id := h.session(t, "a.mei")
	if err := h.sync.Play(context.Background(), id); err != nil {
		t.Fatalf("Play: %v", err)
	}

	h.player.SetTime(100)
	h.player.Emit(playback.Event{Message: playback.MessageNoteOn})
	h.player.SetTime(700)
	h.clock.Advance(10 * time.Millisecond)
	h.player.Emit(playback.Event{Message: playback.MessageNoteOff})

	if q := h.toolkit.ElementQueries(); q != 1 {
		t.Fatalf("expected one query inside the throttle window, got %d", q)
	}
	if got := h.marker.marks(id); !reflect.DeepEqual(got, []string{"note-0"}) {
		t.Fatalf("marks = %v", got)
	}

	h.clock.Advance(playback.DefaultInterval)
	h.player.Emit(playback.Event{Message: playback.MessageNoteOn})
	if q := h.toolkit.ElementQueries(); q != 2 {
		t.Fatalf("expected a second query after the window, got %d", q)
	}
	if got := h.marker.marks(id); !reflect.DeepEqual(got, []string{"note-1"}) {
		t.Fatalf("marks after reconcile = %v", got)
	}
}

func TestNonNoteEventsAreIgnored(t *testing.T) {
	h := newHarness(t)
	id := h.session(t, "a.mei")
	if err := h.sync.Play(context.Background(), id); err != nil {
		t.Fatalf("Play: %v", err)
	}
	h.player.Emit(playback.Event{Message: 176})
	if q := h.toolkit.ElementQueries(); q != 0 {
		t.Fatalf("control change should not query the engine, got %d", q)
	}
}

func TestPlayIsExclusive(t *testing.T) {
	h := newHarness(t)
	a := h.session(t, "a.mei")
	b := h.session(t, "b.mei")

	if err := h.sync.Play(context.Background(), a); err != nil {
		t.Fatalf("Play a: %v", err)
	}
	h.player.SetTime(10)
	h.player.Emit(playback.Event{Message: playback.MessageNoteOn})
	if len(h.marker.marks(a)) == 0 {
		t.Fatal("expected highlights for a")
	}

	if err := h.sync.Play(context.Background(), b); err != nil {
		t.Fatalf("Play b: %v", err)
	}
	if len(h.marker.marks(a)) != 0 {
		t.Fatalf("a's highlights survived: %v", h.marker.marks(a))
	}
	if got := h.sync.Status().SessionID; got != b {
		t.Fatalf("expected %s playing, got %s", b, got)
	}
	if n := h.player.Subscribers(); n != 1 {
		t.Fatalf("expected a single subscription, got %d", n)
	}
	if h.toolkit.Live() != "score B" {
		t.Fatalf("engine should hold b's data, got %q", h.toolkit.Live())
	}
}

func TestStopOnlyAffectsPlayingSession(t *testing.T) {
	h := newHarness(t)
	a := h.session(t, "a.mei")
	b := h.session(t, "b.mei")
	if err := h.sync.Play(context.Background(), a); err != nil {
		t.Fatalf("Play: %v", err)
	}

	if err := h.sync.Stop(context.Background(), b); err != nil {
		t.Fatalf("Stop b: %v", err)
	}
	if h.sync.State() != playback.StatePlaying {
		t.Fatal("stopping another session must not stop playback")
	}

	if err := h.sync.Stop(context.Background(), a); err != nil {
		t.Fatalf("Stop a: %v", err)
	}
	if h.sync.State() != playback.StateIdle {
		t.Fatal("expected idle after stop")
	}
	if n := h.player.Subscribers(); n != 0 {
		t.Fatalf("expected no subscriptions, got %d", n)
	}
	if got := h.marker.clearedIDs(); len(got) == 0 || got[len(got)-1] != a {
		t.Fatalf("expected marks cleared for %s, got %v", a, got)
	}

	before := h.toolkit.ElementQueries()
	h.player.Emit(playback.Event{Message: playback.MessageNoteOn})
	if h.toolkit.ElementQueries() != before {
		t.Fatal("events after stop must not reach the engine")
	}
}

func TestEndOfTrackReturnsToIdle(t *testing.T) {
	h := newHarness(t)
	id := h.session(t, "a.mei")
	if err := h.sync.Play(context.Background(), id); err != nil {
		t.Fatalf("Play: %v", err)
	}
	h.player.Emit(playback.Event{Message: playback.MessageNoteOn})
	h.player.Emit(playback.Event{End: true})

	if h.sync.State() != playback.StateIdle {
		t.Fatal("expected idle at end of track")
	}
	if got := h.sync.Highlighted(); got != nil {
		t.Fatalf("expected no highlights, got %v", got)
	}
	if len(h.marker.marks(id)) != 0 {
		t.Fatal("expected marks cleared at end of track")
	}
}

func TestPlayEmptyAudioReportsNotice(t *testing.T) {
	h := newHarness(t)
	h.toolkit.Audio = ""
	id := h.session(t, "a.mei")

	err := h.sync.Play(context.Background(), id)
	if !errors.Is(err, services.ErrAudioGeneration) {
		t.Fatalf("expected audio generation error, got %v", err)
	}
	if h.sync.State() != playback.StateIdle {
		t.Fatal("expected idle after failure")
	}
	if len(h.player.Loaded()) != 0 {
		t.Fatal("player should not load anything")
	}
	notices := h.feed.Recent(0)
	if len(notices) != 1 || notices[0].Kind != "audio" || notices[0].SessionID != id {
		t.Fatalf("unexpected notices %+v", notices)
	}
}

func TestPlayUnknownSession(t *testing.T) {
	h := newHarness(t)
	err := h.sync.Play(context.Background(), "missing")
	if !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestPlaySupersededWhileLoading(t *testing.T) {
	h := newHarness(t)
	h.player.ManualReady = true
	id := h.session(t, "a.mei")

	done := make(chan error, 1)
	go func() { done <- h.sync.Play(context.Background(), id) }()

	select {
	case <-h.player.WaitLoaded():
	case <-time.After(5 * time.Second):
		t.Fatal("player never loaded")
	}
	h.sync.StopAll()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("superseded play should return nil, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Play did not return after StopAll")
	}
	if started, _ := h.player.Counts(); started != 0 {
		t.Fatalf("superseded playback must not start, got %d starts", started)
	}
	if h.sync.State() != playback.StateIdle {
		t.Fatal("expected idle")
	}
}

func TestPlayCancelledWhileLoading(t *testing.T) {
	h := newHarness(t)
	h.player.ManualReady = true
	id := h.session(t, "a.mei")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.sync.Play(ctx, id) }()
	<-h.player.WaitLoaded()
	cancel()

	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation, got %v", err)
	}
	if h.sync.State() != playback.StateIdle {
		t.Fatal("expected idle after cancellation")
	}
}

// gatedPlayer holds its first LoadFile until gate is closed and records the
// order of loads and starts.
type gatedPlayer struct {
	*testsupport.FakePlayer
	gate    chan struct{}
	entered chan struct{}

	mu    sync.Mutex
	held  bool
	calls []string
}

func (p *gatedPlayer) LoadFile(dataURL string, onReady func()) error {
	p.mu.Lock()
	first := !p.held
	p.held = true
	p.mu.Unlock()
	if first {
		p.entered <- struct{}{}
		<-p.gate
	}
	p.record("load")
	return p.FakePlayer.LoadFile(dataURL, onReady)
}

func (p *gatedPlayer) Start() error {
	if err := p.FakePlayer.Start(); err != nil {
		return err
	}
	p.record("start")
	return nil
}

func (p *gatedPlayer) record(call string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, call)
}

func (p *gatedPlayer) history() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.calls...)
}

func TestOverlappingPlayKeepsNewestTrackRunning(t *testing.T) {
	h := newHarness(t)
	player := &gatedPlayer{FakePlayer: h.player, gate: make(chan struct{}), entered: make(chan struct{}, 1)}
	h.use(player)
	a := h.session(t, "a.mei")
	b := h.session(t, "b.mei")

	results := make(chan error, 2)
	go func() { results <- h.sync.Play(context.Background(), a) }()
	select {
	case <-player.entered:
	case <-time.After(5 * time.Second):
		t.Fatal("first play never reached the player")
	}

	go func() { results <- h.sync.Play(context.Background(), b) }()
	deadline := time.Now().Add(5 * time.Second)
	for h.sync.Status().SessionID != b {
		if time.Now().After(deadline) {
			t.Fatal("second play never took over")
		}
		time.Sleep(time.Millisecond)
	}
	close(player.gate)

	for i := 0; i < 2; i++ {
		select {
		case err := <-results:
			if err != nil {
				t.Fatalf("Play: %v", err)
			}
		case <-time.After(5 * time.Second):
			t.Fatal("Play did not return")
		}
	}

	status := h.sync.Status()
	if status.State != playback.StatePlaying || status.SessionID != b {
		t.Fatalf("expected %s playing, got %+v", b, status)
	}
	calls := player.history()
	if len(calls) == 0 || calls[len(calls)-1] != "start" {
		t.Fatalf("a load ran after the newest start: %v", calls)
	}
	if started, _ := h.player.Counts(); started != 1 {
		t.Fatalf("expected only the newest playback to start, got %d starts (%v)", started, calls)
	}
}

func TestPlayStartFailureReportsNotice(t *testing.T) {
	h := newHarness(t)
	h.player.StartErr = errors.New("audio device busy")
	id := h.session(t, "a.mei")

	err := h.sync.Play(context.Background(), id)
	if !errors.Is(err, services.ErrAudioGeneration) {
		t.Fatalf("expected audio generation error, got %v", err)
	}
	if h.sync.State() != playback.StateIdle {
		t.Fatal("expected idle after a failed start")
	}
	if n := h.player.Subscribers(); n != 0 {
		t.Fatalf("failed start must not keep a subscription, got %d", n)
	}
	notices := h.feed.Recent(0)
	if len(notices) != 1 || notices[0].Kind != "audio" || notices[0].SessionID != id {
		t.Fatalf("unexpected notices %+v", notices)
	}
}
