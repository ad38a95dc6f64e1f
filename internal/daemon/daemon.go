package daemon

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync/atomic"

	"github.com/gofrs/flock"

	"stave/internal/api"
	"stave/internal/config"
	"stave/internal/deps"
	"stave/internal/engine"
	"stave/internal/fetch"
	"stave/internal/logging"
	"stave/internal/notifications"
	"stave/internal/playback"
	"stave/internal/playback/midiplayer"
	"stave/internal/preflight"
	"stave/internal/render"
	"stave/internal/services"
	"stave/internal/services/verovio"
	"stave/internal/session"
	"stave/internal/toolbar"
	"stave/internal/vault"
	"stave/internal/view"
)

// Option customizes daemon construction.
type Option func(*options)

type options struct {
	toolkit  engine.Toolkit
	player   playback.Player
	exec     services.Executor
	notifier notifications.Service
}

// WithToolkit replaces the verovio engraver (primarily for tests).
func WithToolkit(toolkit engine.Toolkit) Option {
	return func(o *options) {
		o.toolkit = toolkit
	}
}

// WithPlayer replaces the MIDI player (primarily for tests).
func WithPlayer(player playback.Player) Option {
	return func(o *options) {
		o.player = player
	}
}

// WithExecutor routes external commands (engraver, file opener, preflight
// probes) through exec.
func WithExecutor(exec services.Executor) Option {
	return func(o *options) {
		o.exec = exec
	}
}

// WithNotifier adds a notice destination next to the in-memory feed.
func WithNotifier(n notifications.Service) Option {
	return func(o *options) {
		o.notifier = n
	}
}

// Daemon coordinates rendering and playback and enforces single-instance execution.
type Daemon struct {
	cfg      *config.Config
	logger   *slog.Logger
	registry *session.Registry
	exec     services.Executor

	toolkit  engine.Toolkit
	engine   *engine.Adapter
	vault    *vault.Vault
	fetcher  *fetch.Fetcher
	document *view.Document
	pipeline *render.Pipeline
	player   playback.Player
	sync     *playback.Synchronizer
	toolbar  *toolbar.Toolbar
	feed     *notifications.Feed
	notifier notifications.Service
	api      *apiServer

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
}

// Status represents daemon runtime information.
type Status struct {
	Running       bool
	PID           int
	Platform      string
	VaultRoot     string
	SessionDBPath string
	LockFilePath  string
	Sessions      int
	Mounts        int
	Engine        engine.Stats
	Playback      playback.Status
	Dependencies  []deps.Status
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, registry *session.Registry, logger *slog.Logger, opts ...Option) (*Daemon, error) {
	if cfg == nil || registry == nil {
		return nil, errors.New("daemon requires config and session registry")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	d := &Daemon{
		cfg:      cfg,
		logger:   logger,
		registry: registry,
		exec:     o.exec,
		document: view.NewDocument(),
		feed:     notifications.NewFeed(notifications.DefaultFeedSize),
		lockPath: cfg.LockPath(),
		lock:     flock.New(cfg.LockPath()),
	}
	d.notifier = notifications.NewService(cfg, d.feed)
	if o.notifier != nil {
		d.notifier = notifications.Combine(d.notifier, o.notifier)
	}

	toolkit := o.toolkit
	if toolkit == nil {
		verovioOpts := []verovio.Option{
			verovio.WithLogger(logger),
			verovio.WithResourcePath(cfg.Engine.ResourcePath),
		}
		if o.exec != nil {
			verovioOpts = append(verovioOpts, verovio.WithExecutor(o.exec))
		}
		tk, err := verovio.New(cfg.Engine.Binary, cfg.Paths.CacheDir, cfg.Engine.TimeoutSeconds, verovioOpts...)
		if err != nil {
			return nil, fmt.Errorf("create engraver: %w", err)
		}
		toolkit = tk
	}
	d.toolkit = toolkit
	d.engine = engine.NewAdapter(toolkit, cfg.HostOptions(), logger)

	mobile := cfg.IsMobile()
	vaultOpts := []vault.Option{vault.WithMobile(mobile)}
	if o.exec != nil {
		vaultOpts = append(vaultOpts, vault.WithExecutor(o.exec))
	}
	v, err := vault.New(cfg.Vault.Root, vaultOpts...)
	if err != nil {
		d.closeToolkit()
		return nil, fmt.Errorf("open vault: %w", err)
	}
	d.vault = v
	d.fetcher = fetch.New(cfg, v, fetch.WithLogger(logger))

	d.pipeline = render.New(d.fetcher, d.engine, registry, d.document,
		render.WithLogger(logger),
		render.WithDesktop(!mobile),
		render.WithEvictHook(d.sessionEvicted),
	)

	d.player = o.player
	if d.player == nil {
		d.player = midiplayer.New(midiplayer.WithLogger(logger))
	}
	d.sync = playback.New(d.engine, d.fetcher, registry, d.player, d.document,
		playback.WithLogger(logger),
		playback.WithInterval(cfg.HighlightInterval()),
		playback.WithLookahead(cfg.Playback.LookaheadMS),
		playback.WithNotifier(d.notifier),
	)
	d.toolbar = toolbar.New(d.sync, d.document, registry, v, d.notifier,
		toolbar.WithLogger(logger),
		toolbar.WithMobile(mobile),
	)

	api, err := newAPIServer(cfg, d, logger)
	if err != nil {
		d.closeToolkit()
		return nil, err
	}
	d.api = api
	return d, nil
}

// Start acquires the daemon lock, prunes stale sessions, runs the preflight
// checks, and starts the HTTP API.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another stave daemon instance is already running")
	}

	d.ctx, d.cancel = context.WithCancel(ctx)

	if removed, err := d.registry.Prune(d.ctx, d.cfg.SessionRetention()); err != nil {
		logging.WarnWithContext(d.logger, "session prune failed", "session_prune_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "stale sessions stay in the registry until the next start"),
		)
	} else if removed > 0 {
		d.logger.Info("pruned stale sessions", logging.Int("removed", int(removed)))
	}

	for _, result := range preflight.Failed(preflight.RunAll(d.ctx, d.cfg, d.exec)) {
		logging.WarnWithContext(d.logger, "preflight check failed", "preflight_failed",
			logging.String("check", result.Name),
			logging.String("detail", result.Detail),
		)
	}

	if err := d.api.start(d.ctx); err != nil {
		_ = d.lock.Unlock()
		d.cancel()
		d.ctx = nil
		d.cancel = nil
		return fmt.Errorf("start api: %w", err)
	}

	d.running.Store(true)
	d.logger.Info("stave daemon started", logging.String("lock", d.lockPath))
	return nil
}

// Stop halts playback, shuts the HTTP API down, and releases the daemon lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	d.sync.StopAll()
	d.api.stop()
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.ctx = nil
	d.running.Store(false)
	d.logger.Info("stave daemon stopped")
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	d.closeToolkit()
	if d.registry != nil {
		return d.registry.Close()
	}
	return nil
}

func (d *Daemon) closeToolkit() {
	if closer, ok := d.toolkit.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			d.logger.Warn("failed to close engraver", logging.Error(err))
		}
	}
}

// sessionEvicted stops playback of a session that left the registry.
func (d *Daemon) sessionEvicted(ctx context.Context, id string) {
	if d.sync == nil {
		return
	}
	if err := d.sync.Stop(ctx, id); err != nil {
		d.logger.Warn("stop playback of evicted session", logging.String(logging.FieldSessionID, id), logging.Error(err))
	}
}

// Running reports whether Start succeeded and Stop has not been called.
func (d *Daemon) Running() bool {
	return d.running.Load()
}

// APIAddress returns the address the HTTP API listens on, or "" when it is
// not running.
func (d *Daemon) APIAddress() string {
	return d.api.address()
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) Status {
	count, err := d.registry.Count(ctx)
	if err != nil {
		d.logger.Warn("count sessions", logging.Error(err))
	}
	platform := config.PlatformDesktop
	if d.cfg.IsMobile() {
		platform = config.PlatformMobile
	}
	return Status{
		Running:       d.running.Load(),
		PID:           os.Getpid(),
		Platform:      platform,
		VaultRoot:     d.vault.Root(),
		SessionDBPath: d.registry.Path(),
		LockFilePath:  d.lockPath,
		Sessions:      count,
		Mounts:        len(d.document.Mounts()),
		Engine:        d.engine.Stats(),
		Playback:      d.sync.Status(),
		Dependencies:  preflight.CheckSystemDeps(ctx, d.cfg),
	}
}

// View converts the status to its API representation.
func (s Status) View() api.DaemonStatus {
	return api.DaemonStatus{
		Running:       s.Running,
		PID:           s.PID,
		Platform:      s.Platform,
		VaultRoot:     s.VaultRoot,
		SessionDBPath: s.SessionDBPath,
		LockFilePath:  s.LockFilePath,
		Sessions:      s.Sessions,
		Mounts:        s.Mounts,
		Engine: api.EngineStatus{
			Activations: s.Engine.Activations,
			Loads:       s.Engine.Loads,
			Live:        s.Engine.Live,
		},
		Playback:     api.FromPlayback(s.Playback),
		Dependencies: api.FromDependencies(s.Dependencies),
	}
}
