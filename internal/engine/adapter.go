package engine

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"stave/internal/blockspec"
	"stave/internal/logging"
	"stave/internal/services"
)

// ErrHandleExpired is returned by Handle methods called after the Activate
// callback returned.
var ErrHandleExpired = errors.New("engine handle used outside its activation")

// Stats reports adapter counters.
type Stats struct {
	Activations int64 `json:"activations"`
	Loads       int64 `json:"loads"`
	Live        bool  `json:"live"`
}

// Adapter serializes access to a Toolkit.
type Adapter struct {
	toolkit Toolkit
	host    blockspec.Options
	logger  *slog.Logger

	// slot is a one-element semaphore. Unlike a mutex, waiting on it can be
	// abandoned when the caller's context ends.
	slot chan struct{}

	// Guarded by slot.
	live     string
	defaults blockspec.Options

	activations atomic.Int64
	loads       atomic.Int64
	hasLive     atomic.Bool
}

// NewAdapter wraps toolkit. host holds the host-wide settings layered over the
// engine defaults by Defaults and RestoreDefaults.
func NewAdapter(toolkit Toolkit, host blockspec.Options, logger *slog.Logger) *Adapter {
	return &Adapter{
		toolkit: toolkit,
		host:    host.Clone(),
		logger:  logging.NewComponentLogger(logger, "engine"),
		slot:    make(chan struct{}, 1),
	}
}

func (a *Adapter) acquire(ctx context.Context) error {
	select {
	case a.slot <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (a *Adapter) release() {
	<-a.slot
}

// Defaults returns engine defaults overlaid with host-wide settings. The
// engine defaults are read once and cached.
func (a *Adapter) Defaults(ctx context.Context) (blockspec.Options, error) {
	if err := a.acquire(ctx); err != nil {
		return nil, err
	}
	defer a.release()
	return a.defaultsLocked(ctx)
}

func (a *Adapter) defaultsLocked(ctx context.Context) (blockspec.Options, error) {
	if a.defaults == nil {
		opts, err := a.toolkit.DefaultOptions(ctx)
		if err != nil {
			return nil, services.Wrap(services.ErrEngine, "engine", "default options", "", err)
		}
		if opts == nil {
			opts = blockspec.Options{}
		}
		a.defaults = opts
	}
	return blockspec.Merge(a.defaults, a.host), nil
}

// Activate makes in live on the engine and calls fn with a Handle bound to
// it. No other activation can interleave between the load protocol and the
// reads fn performs.
func (a *Adapter) Activate(ctx context.Context, in Inputs, fn func(*Handle) error) error {
	if fn == nil {
		return errors.New("activate: callback required")
	}
	if err := a.acquire(ctx); err != nil {
		return err
	}
	defer a.release()

	a.activations.Add(1)
	if checker, ok := a.toolkit.(ReadinessChecker); ok {
		if err := checker.Ready(ctx); err != nil {
			return services.Wrap(services.ErrEngine, "engine", "activate", "engine not loaded", err)
		}
	}

	fp := fingerprint(in)
	if fp != a.live {
		a.live = ""
		a.hasLive.Store(false)
		if err := a.load(ctx, in); err != nil {
			return err
		}
		a.live = fp
		a.hasLive.Store(true)
	}

	h := &Handle{adapter: a}
	defer h.expired.Store(true)
	return fn(h)
}

func (a *Adapter) load(ctx context.Context, in Inputs) error {
	start := time.Now()
	a.loads.Add(1)

	if err := a.toolkit.SetOptions(ctx, in.Options); err != nil {
		return services.Wrap(services.ErrEngine, "engine", "set options", "", err)
	}
	if err := a.toolkit.LoadData(ctx, in.Data); err != nil {
		return services.Wrap(services.ErrEngine, "engine", "load data", "", err)
	}
	if in.MeasureRange != "" {
		ok, err := a.toolkit.Select(ctx, in.MeasureRange)
		if err != nil {
			return services.Wrap(services.ErrSelection, "engine", "select", in.MeasureRange, err)
		}
		if !ok {
			return services.Wrap(services.ErrSelection, "engine", "select", fmt.Sprintf("measure range %q rejected", in.MeasureRange), nil)
		}
	}
	layout, err := a.toolkit.LayoutData(ctx)
	if err != nil {
		return services.Wrap(services.ErrEngine, "engine", "layout", "", err)
	}
	if err := a.toolkit.LoadData(ctx, layout); err != nil {
		return services.Wrap(services.ErrEngine, "engine", "reload layout", "", err)
	}

	logging.WithContext(ctx, a.logger).Debug("score loaded",
		logging.Int("bytes", len(in.Data)),
		logging.String("measure_range", in.MeasureRange),
		logging.Duration("elapsed", time.Since(start)),
	)
	return nil
}

// Stats returns a snapshot of the adapter counters.
func (a *Adapter) Stats() Stats {
	return Stats{
		Activations: a.activations.Load(),
		Loads:       a.loads.Load(),
		Live:        a.hasLive.Load(),
	}
}

func fingerprint(in Inputs) string {
	h := sha256.New()
	h.Write(in.Data)
	h.Write([]byte{0})
	// json.Marshal sorts map keys, so equal option maps hash equally.
	opts, err := json.Marshal(in.Options)
	if err != nil {
		opts = []byte(fmt.Sprint(in.Options))
	}
	h.Write(opts)
	h.Write([]byte{0})
	h.Write([]byte(in.MeasureRange))
	return hex.EncodeToString(h.Sum(nil))
}
