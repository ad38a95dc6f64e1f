package playback

import (
	"context"
	"encoding/base64"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"stave/internal/engine"
	"stave/internal/logging"
	"stave/internal/notifications"
	"stave/internal/services"
	"stave/internal/session"
)

// State is the synchronizer's playback state.
type State string

const (
	StateIdle    State = "idle"
	StatePlaying State = "playing"
)

// Defaults for the highlight throttle and clock lookahead.
const (
	DefaultInterval  = 50 * time.Millisecond
	DefaultLookahead = 33.5
)

// Status is a snapshot of the synchronizer.
type Status struct {
	State       State     `json:"state"`
	SessionID   string    `json:"session_id,omitempty"`
	Highlighted []string  `json:"highlighted,omitempty"`
	StartedAt   time.Time `json:"started_at,omitempty"`
	Position    float64   `json:"position_ms,omitempty"`
}

// Engine is the shared engraving engine.
type Engine interface {
	Activate(ctx context.Context, in engine.Inputs, fn func(*engine.Handle) error) error
}

// Fetcher retrieves raw score data.
type Fetcher interface {
	Fetch(ctx context.Context, path string) ([]byte, error)
}

// Sessions looks sessions up.
type Sessions interface {
	Get(ctx context.Context, id string) (*session.Session, error)
}

// Marker applies highlight marks to a session's displayed score.
type Marker interface {
	Mark(sessionID string, add, remove []string) bool
	ClearMarks(sessionID string)
}

// Notifier reports user-facing notices.
type Notifier interface {
	Notify(ctx context.Context, notice notifications.Notice) error
}

// Option configures a Synchronizer.
type Option func(*Synchronizer)

// WithInterval sets the highlight throttle interval.
func WithInterval(d time.Duration) Option {
	return func(s *Synchronizer) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithLookahead sets the clock lookahead in milliseconds.
func WithLookahead(ms float64) Option {
	return func(s *Synchronizer) {
		if ms >= 0 {
			s.lookahead = ms
		}
	}
}

// WithClock replaces the wall clock used for throttling (primarily for tests).
func WithClock(now func() time.Time) Option {
	return func(s *Synchronizer) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger attaches a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Synchronizer) {
		s.logger = logging.NewComponentLogger(logger, "playback")
	}
}

// WithNotifier routes user-facing failures to notifier.
func WithNotifier(n Notifier) Option {
	return func(s *Synchronizer) {
		s.notifier = n
	}
}

type active struct {
	token       uint64
	sessionID   string
	inputs      engine.Inputs
	highlighted map[string]struct{}
	unsubscribe func()
	lastTick    time.Time
	startedAt   time.Time

	// done is closed when this playback stops or is replaced.
	done chan struct{}
}

// Synchronizer drives the player and highlight reconciliation.
type Synchronizer struct {
	engine   Engine
	fetcher  Fetcher
	sessions Sessions
	player   Player
	marker   Marker
	notifier Notifier
	logger   *slog.Logger

	interval  time.Duration
	lookahead float64
	now       func() time.Time

	mu      sync.Mutex
	token   uint64
	current *active

	// loadMu serializes LoadFile and Start so an older Play can never load
	// over a newer one's running track.
	loadMu sync.Mutex
}

// New builds a Synchronizer.
func New(eng Engine, fetcher Fetcher, sessions Sessions, player Player, marker Marker, opts ...Option) *Synchronizer {
	s := &Synchronizer{
		engine:    eng,
		fetcher:   fetcher,
		sessions:  sessions,
		player:    player,
		marker:    marker,
		logger:    logging.NewComponentLogger(nil, "playback"),
		interval:  DefaultInterval,
		lookahead: DefaultLookahead,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Play starts playback of a session, stopping any other playback first.
func (s *Synchronizer) Play(ctx context.Context, id string) error {
	ctx = services.WithSessionID(ctx, id)
	logger := logging.WithContext(ctx, s.logger)

	sess, err := s.sessions.Get(ctx, id)
	if err != nil {
		return err
	}
	if sess == nil {
		return services.Wrap(services.ErrNotFound, "playback", "play", "unknown session "+id, nil)
	}
	data, err := s.fetcher.Fetch(ctx, sess.SourcePath)
	if err != nil {
		s.report(ctx, err)
		return err
	}
	in := engine.Inputs{Data: data, Options: sess.Options, MeasureRange: sess.MeasureRange}

	var audio string
	err = s.engine.Activate(ctx, in, func(h *engine.Handle) error {
		var err error
		audio, err = h.RenderAudio(ctx)
		return err
	})
	if err != nil {
		s.report(ctx, err)
		return err
	}

	s.mu.Lock()
	s.stopLocked()
	s.token++
	token := s.token
	s.current = &active{
		token:       token,
		sessionID:   id,
		inputs:      in,
		highlighted: make(map[string]struct{}),
		startedAt:   s.now(),
		done:        make(chan struct{}),
	}
	done := s.current.done
	s.mu.Unlock()

	s.loadMu.Lock()
	defer s.loadMu.Unlock()
	if !s.claimed(token) {
		logger.Debug("playback superseded before load")
		return nil
	}

	ready := make(chan struct{})
	var once sync.Once
	if err := s.player.LoadFile("data:audio/midi;base64,"+audio, func() { once.Do(func() { close(ready) }) }); err != nil {
		s.abandon(token)
		err = services.Wrap(services.ErrAudioGeneration, "playback", "load audio", "", err)
		s.report(ctx, err)
		return err
	}
	select {
	case <-ready:
	case <-done:
		logger.Debug("playback superseded while loading")
		return nil
	case <-ctx.Done():
		s.abandon(token)
		return ctx.Err()
	}

	s.mu.Lock()
	if s.current == nil || s.current.token != token {
		s.mu.Unlock()
		logger.Debug("playback superseded before start")
		return nil
	}
	s.current.unsubscribe = s.player.Subscribe(func(ev Event) { s.handle(token, ev) })
	if err := s.player.Start(); err != nil {
		s.stopLocked()
		s.mu.Unlock()
		err = services.Wrap(services.ErrAudioGeneration, "playback", "start", "", err)
		s.report(ctx, err)
		return err
	}
	s.mu.Unlock()
	logger.Info("playback started", logging.Int("audio_bytes", base64.StdEncoding.DecodedLen(len(audio))))
	return nil
}

// Stop halts playback of id. Stopping a session that is not playing is a
// no-op.
func (s *Synchronizer) Stop(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil || s.current.sessionID != id {
		return nil
	}
	s.stopLocked()
	s.logger.Info("playback stopped", logging.String(logging.FieldSessionID, id))
	return nil
}

// StopAll halts whatever is playing.
func (s *Synchronizer) StopAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()
}

// Status returns the current state.
func (s *Synchronizer) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return Status{State: StateIdle}
	}
	return Status{
		State:       StatePlaying,
		SessionID:   s.current.sessionID,
		Highlighted: sortedSet(s.current.highlighted),
		StartedAt:   s.current.startedAt,
		Position:    s.player.CurrentTime(),
	}
}

// State returns StatePlaying while a session plays.
func (s *Synchronizer) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return StateIdle
	}
	return StatePlaying
}

// Highlighted returns the sorted highlighted note ids of the playing session.
func (s *Synchronizer) Highlighted() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return nil
	}
	return sortedSet(s.current.highlighted)
}

// stopLocked halts the player and clears the current session's highlights.
func (s *Synchronizer) stopLocked() {
	cur := s.current
	if cur == nil {
		return
	}
	s.current = nil
	s.token++
	close(cur.done)
	s.player.Stop()
	if cur.unsubscribe != nil {
		cur.unsubscribe()
	}
	s.marker.ClearMarks(cur.sessionID)
}

func (s *Synchronizer) claimed(token uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current != nil && s.current.token == token
}

func (s *Synchronizer) abandon(token uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current != nil && s.current.token == token {
		s.stopLocked()
	}
}

func (s *Synchronizer) handle(token uint64, ev Event) {
	if ev.End {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.current != nil && s.current.token == token {
			id := s.current.sessionID
			s.stopLocked()
			s.logger.Info("playback finished", logging.String(logging.FieldSessionID, id))
		}
		return
	}
	if ev.Message != MessageNoteOn && ev.Message != MessageNoteOff {
		return
	}

	s.mu.Lock()
	cur := s.current
	if cur == nil || cur.token != token {
		s.mu.Unlock()
		return
	}
	now := s.now()
	if !cur.lastTick.IsZero() && now.Sub(cur.lastTick) < s.interval {
		s.mu.Unlock()
		return
	}
	cur.lastTick = now
	in := cur.inputs
	id := cur.sessionID
	s.mu.Unlock()

	at := s.player.CurrentTime() + s.lookahead
	ctx := services.WithSessionID(context.Background(), id)
	var ids []string
	err := s.engine.Activate(ctx, in, func(h *engine.Handle) error {
		var err error
		ids, err = h.ActiveElementsAt(ctx, at)
		return err
	})
	if err != nil {
		logging.WarnWithContext(logging.WithContext(ctx, s.logger), "highlight update failed", "highlight_failed",
			logging.Float64("time_ms", at),
			logging.Error(err),
			logging.String(logging.FieldImpact, "highlights lag until the next event"),
		)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil || s.current.token != token {
		return
	}
	add, remove := diff(s.current.highlighted, ids)
	if len(add) == 0 && len(remove) == 0 {
		return
	}
	s.marker.Mark(id, add, remove)
	for _, r := range remove {
		delete(s.current.highlighted, r)
	}
	for _, a := range add {
		s.current.highlighted[a] = struct{}{}
	}
}

func (s *Synchronizer) report(ctx context.Context, err error) {
	logger := logging.WithContext(ctx, s.logger)
	logging.ErrorWithContext(logger, "playback failed", "playback_failed",
		logging.String("kind", services.Kind(err)),
		logging.Error(err),
	)
	if s.notifier == nil || errors.Is(err, context.Canceled) {
		return
	}
	id, _ := services.SessionIDFromContext(ctx)
	notice := notifications.Notice{
		Kind:      services.Kind(err),
		Message:   noticeMessage(err),
		SessionID: id,
	}
	if nerr := s.notifier.Notify(context.WithoutCancel(ctx), notice); nerr != nil {
		logger.Warn("notice delivery failed", logging.Error(nerr))
	}
}

func noticeMessage(err error) string {
	if errors.Is(err, services.ErrAudioGeneration) {
		return "Could not generate audio for this score."
	}
	return "Playback failed: " + err.Error()
}

// diff returns the ids to add to and remove from current to reach next.
func diff(current map[string]struct{}, next []string) (add, remove []string) {
	want := make(map[string]struct{}, len(next))
	for _, id := range next {
		want[id] = struct{}{}
		if _, ok := current[id]; !ok {
			add = append(add, id)
		}
	}
	for id := range current {
		if _, ok := want[id]; !ok {
			remove = append(remove, id)
		}
	}
	sort.Strings(add)
	sort.Strings(remove)
	return add, remove
}

func sortedSet(set map[string]struct{}) []string {
	if len(set) == 0 {
		return nil
	}
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
