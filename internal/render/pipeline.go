package render

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"stave/internal/blockspec"
	"stave/internal/engine"
	"stave/internal/logging"
	"stave/internal/services"
	"stave/internal/session"
	"stave/internal/view"
)

// ErrSuperseded is returned when a newer render on the same mount point
// started before this one finished.
var ErrSuperseded = errors.New("render superseded by a newer render")

// Fetcher retrieves raw score data.
type Fetcher interface {
	Fetch(ctx context.Context, path string) ([]byte, error)
}

// Engine is the shared engraving engine.
type Engine interface {
	Defaults(ctx context.Context) (blockspec.Options, error)
	Activate(ctx context.Context, in engine.Inputs, fn func(*engine.Handle) error) error
}

// Registry stores sessions.
type Registry interface {
	Create(ctx context.Context, in session.Inputs) (*session.Session, error)
	Get(ctx context.Context, id string) (*session.Session, error)
	Update(ctx context.Context, id string, patch session.Patch) (*session.Session, error)
	Evict(ctx context.Context, id string) error
	EvictMount(ctx context.Context, mount string) ([]string, error)
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger attaches a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		p.logger = logging.NewComponentLogger(logger, "render")
	}
}

// WithDesktop marks containers as offering desktop-only toolbar actions.
func WithDesktop(desktop bool) Option {
	return func(p *Pipeline) {
		p.desktop = desktop
	}
}

// WithEvictHook registers a callback run for every evicted session, after
// it left the registry.
func WithEvictHook(fn func(ctx context.Context, sessionID string)) Option {
	return func(p *Pipeline) {
		p.onEvict = fn
	}
}

// WithPrefetchLimit bounds concurrent fetches in RenderDocument.
func WithPrefetchLimit(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.prefetch = n
		}
	}
}

// Pipeline orchestrates parser, fetcher, engine, registry, and document.
type Pipeline struct {
	fetcher  Fetcher
	engine   Engine
	registry Registry
	doc      *view.Document
	logger   *slog.Logger
	desktop  bool
	onEvict  func(ctx context.Context, sessionID string)
	prefetch int
}

// New builds a Pipeline.
func New(fetcher Fetcher, eng Engine, registry Registry, doc *view.Document, opts ...Option) *Pipeline {
	p := &Pipeline{
		fetcher:  fetcher,
		engine:   eng,
		registry: registry,
		doc:      doc,
		logger:   logging.NewComponentLogger(nil, "render"),
		desktop:  true,
		prefetch: 4,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Document returns the document scores are mounted into.
func (p *Pipeline) Document() *view.Document {
	return p.doc
}

// Render displays the block source in mount and returns the new session id.
// Failures are mounted as an error message and also returned.
func (p *Pipeline) Render(ctx context.Context, source, mount string) (string, error) {
	ctx = services.WithMount(ctx, mount)
	ticket := p.doc.Begin(mount)
	spec := blockspec.Parse(source)
	data, err := p.fetcher.Fetch(ctx, spec.Path)
	return p.finish(ctx, ticket, spec, data, err)
}

// finish runs everything after the fetch. fetchErr is the fetch outcome.
func (p *Pipeline) finish(ctx context.Context, ticket view.Ticket, spec blockspec.Spec, data []byte, fetchErr error) (string, error) {
	logger := logging.WithContext(ctx, p.logger)
	if fetchErr != nil {
		p.fail(ctx, ticket, fetchErr)
		return "", fetchErr
	}
	if !p.doc.Current(ticket) {
		logger.Debug("render superseded during fetch", logging.String("path", spec.Path))
		return "", ErrSuperseded
	}

	defaults, err := p.engine.Defaults(ctx)
	if err != nil {
		p.fail(ctx, ticket, err)
		return "", err
	}
	effective := blockspec.Merge(defaults, spec.Options)

	sess, err := p.registry.Create(ctx, session.Inputs{
		SourcePath:   spec.Path,
		Options:      effective,
		MeasureRange: spec.MeasureRange,
		Mount:        ticket.Mount,
	})
	if err != nil {
		p.fail(ctx, ticket, err)
		return "", err
	}
	ctx = services.WithSessionID(ctx, sess.ID)

	var (
		svg   string
		pages int
	)
	err = p.engine.Activate(ctx, inputsFor(sess, data), func(h *engine.Handle) error {
		var err error
		if svg, err = h.RenderPage(ctx, 1); err != nil {
			return err
		}
		if pages, err = h.PageCount(ctx); err != nil {
			return err
		}
		return h.RestoreDefaults(ctx)
	})
	if err != nil {
		p.evict(ctx, sess.ID)
		p.fail(ctx, ticket, err)
		return "", err
	}

	replaced, ok := p.doc.Commit(ticket, view.Container{
		SessionID: sess.ID,
		SVG:       svg,
		Page:      1,
		Pages:     pages,
		Source:    spec.Path,
		Desktop:   p.desktop,
	})
	if !ok {
		p.evict(ctx, sess.ID)
		logger.Debug("render superseded", logging.String("path", spec.Path))
		return "", ErrSuperseded
	}
	if replaced != "" {
		p.evict(ctx, replaced)
	}
	logger.Info("score rendered",
		logging.String("path", spec.Path),
		logging.Int("pages", pages),
		logging.Int("bytes", len(data)),
	)
	return sess.ID, nil
}

// ShowPage re-activates a session and shows page n.
func (p *Pipeline) ShowPage(ctx context.Context, id string, n int) error {
	ctx = services.WithSessionID(ctx, id)
	sess, err := p.lookup(ctx, id)
	if err != nil {
		return err
	}
	data, err := p.fetcher.Fetch(ctx, sess.SourcePath)
	if err != nil {
		return err
	}

	var (
		svg   string
		pages int
	)
	err = p.engine.Activate(ctx, inputsFor(sess, data), func(h *engine.Handle) error {
		var err error
		if pages, err = h.PageCount(ctx); err != nil {
			return err
		}
		if n < 1 || n > pages {
			return services.Wrap(services.ErrValidation, "render", "show page", fmt.Sprintf("page %d out of range (1-%d)", n, pages), nil)
		}
		if svg, err = h.RenderPage(ctx, n); err != nil {
			return err
		}
		return h.RestoreDefaults(ctx)
	})
	if err != nil {
		logging.WarnWithContext(logging.WithContext(ctx, p.logger), "page render failed", "render_page_failed",
			logging.Int("page", n),
			logging.Error(err),
			logging.String(logging.FieldImpact, "score keeps showing its previous page"),
		)
		return err
	}
	if _, err := p.registry.Update(ctx, id, session.Patch{Page: session.IntPtr(n)}); err != nil {
		return err
	}
	p.doc.Update(id, n, pages, svg)
	return nil
}

// Reload re-renders the session's stored page, picking up changed inputs.
func (p *Pipeline) Reload(ctx context.Context, id string) error {
	sess, err := p.lookup(ctx, id)
	if err != nil {
		return err
	}
	return p.ShowPage(ctx, id, sess.Page)
}

// Unmount removes a mount point and evicts the sessions it displayed.
func (p *Pipeline) Unmount(ctx context.Context, mount string) error {
	shown := p.doc.Unmount(mount)
	ids, err := p.registry.EvictMount(ctx, mount)
	if err != nil {
		return err
	}
	if shown != "" && !contains(ids, shown) {
		if err := p.registry.Evict(ctx, shown); err != nil {
			return err
		}
		ids = append(ids, shown)
	}
	if p.onEvict != nil {
		for _, id := range ids {
			p.onEvict(ctx, id)
		}
	}
	return nil
}

func (p *Pipeline) lookup(ctx context.Context, id string) (*session.Session, error) {
	sess, err := p.registry.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, services.Wrap(services.ErrNotFound, "render", "lookup", "unknown session "+id, nil)
	}
	return sess, nil
}

func (p *Pipeline) fail(ctx context.Context, ticket view.Ticket, err error) {
	replaced, ok := p.doc.Fail(ticket, ErrorMessage(err))
	if replaced != "" {
		p.evict(ctx, replaced)
	}
	if !ok {
		return
	}
	logging.ErrorWithContext(logging.WithContext(ctx, p.logger), "render failed", "render_failed",
		logging.String("kind", services.Kind(err)),
		logging.Error(err),
		logging.String(logging.FieldErrorHint, hint(err)),
	)
}

func (p *Pipeline) evict(ctx context.Context, id string) {
	// The caller's context may already be cancelled; eviction must still run.
	evictCtx := context.WithoutCancel(ctx)
	if err := p.registry.Evict(evictCtx, id); err != nil {
		logging.WarnWithContext(logging.WithContext(ctx, p.logger), "session eviction failed", "session_evict_failed",
			logging.String(logging.FieldSessionID, id),
			logging.Error(err),
			logging.String(logging.FieldImpact, "stale session stays in the registry until pruned"),
		)
	}
	if p.onEvict != nil {
		p.onEvict(evictCtx, id)
	}
}

// ErrorMessage is the text mounted in place of a score that failed.
func ErrorMessage(err error) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	if errors.Is(err, services.ErrEngine) && strings.Contains(msg, "engine not loaded") {
		return "Verovio is not loaded. Check the engine binary in the configuration."
	}
	if errors.Is(err, engine.ErrSelectUnsupported) {
		return "Measure ranges are not supported by the Verovio command-line engraver. Remove the measureRange line to show the whole score."
	}
	return "Error rendering data: " + msg
}

func hint(err error) string {
	if errors.Is(err, engine.ErrSelectUnsupported) {
		return "remove the measureRange line; the engraver cannot apply it"
	}
	switch services.Kind(err) {
	case "fetch":
		return "check the score path or URL in the block"
	case "selection":
		return "check the measureRange line in the block"
	default:
		return "check the engine binary and the score file"
	}
}

func inputsFor(sess *session.Session, data []byte) engine.Inputs {
	return engine.Inputs{Data: data, Options: sess.Options, MeasureRange: sess.MeasureRange}
}

func contains(ids []string, id string) bool {
	for _, candidate := range ids {
		if candidate == id {
			return true
		}
	}
	return false
}
