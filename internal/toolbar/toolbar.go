// Package toolbar implements the per-score actions offered next to every
// mounted score: play, stop, download, and open.
//
// Each action is its own error boundary. Failures are logged and turned into
// a notice for the user; they never affect other scores.
package toolbar

import (
	"context"
	"log/slog"
	"strings"

	"stave/internal/fetch"
	"stave/internal/logging"
	"stave/internal/notifications"
	"stave/internal/services"
	"stave/internal/session"
)

// DownloadName is the file name offered for downloaded scores.
const DownloadName = "score.svg"

// Action names a toolbar button.
type Action string

const (
	ActionPlay     Action = "play"
	ActionStop     Action = "stop"
	ActionDownload Action = "download"
	ActionOpen     Action = "open"
)

// Messages shown on hosts that cannot perform an action.
const (
	MobileDownloadMessage = "Downloading files is not supported on mobile."
	MobileOpenMessage     = "Opening files externally is not supported on mobile."
)

// Player starts and stops session playback.
type Player interface {
	Play(ctx context.Context, id string) error
	Stop(ctx context.Context, id string) error
}

// Images returns the SVG a session currently shows.
type Images interface {
	Image(sessionID string) (string, bool)
}

// Sessions looks sessions up.
type Sessions interface {
	Get(ctx context.Context, id string) (*session.Session, error)
}

// Opener hands files and URLs to the platform default application.
type Opener interface {
	OpenExternally(ctx context.Context, path string) error
	OpenURL(ctx context.Context, rawURL string) error
}

// File is a downloadable artifact.
type File struct {
	Name        string
	ContentType string
	Data        []byte
}

// Option configures a Toolbar.
type Option func(*Toolbar)

// WithLogger attaches a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(t *Toolbar) {
		t.logger = logging.NewComponentLogger(logger, "toolbar")
	}
}

// WithMobile disables the desktop-only actions.
func WithMobile(mobile bool) Option {
	return func(t *Toolbar) {
		t.mobile = mobile
	}
}

// Toolbar dispatches toolbar actions.
type Toolbar struct {
	player   Player
	images   Images
	sessions Sessions
	opener   Opener
	notifier notifications.Service
	mobile   bool
	logger   *slog.Logger
}

// New builds a Toolbar. notifier may be nil.
func New(player Player, images Images, sessions Sessions, opener Opener, notifier notifications.Service, opts ...Option) *Toolbar {
	t := &Toolbar{
		player:   player,
		images:   images,
		sessions: sessions,
		opener:   opener,
		notifier: notifier,
		logger:   logging.NewComponentLogger(nil, "toolbar"),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Do runs a button action other than download.
func (t *Toolbar) Do(ctx context.Context, action Action, id string) error {
	switch action {
	case ActionPlay:
		return t.Play(ctx, id)
	case ActionStop:
		return t.Stop(ctx, id)
	case ActionOpen:
		return t.Open(ctx, id)
	case ActionDownload:
		_, err := t.Download(ctx, id)
		return err
	default:
		return services.Wrap(services.ErrValidation, "toolbar", "dispatch", "unknown action "+string(action), nil)
	}
}

// Play starts playback of the session. The synchronizer reports its own
// failures, so only the log entry is added here.
func (t *Toolbar) Play(ctx context.Context, id string) error {
	ctx = services.WithSessionID(ctx, id)
	if err := t.player.Play(ctx, id); err != nil {
		t.logFailure(ctx, ActionPlay, err)
		return err
	}
	return nil
}

// Stop halts playback of the session.
func (t *Toolbar) Stop(ctx context.Context, id string) error {
	ctx = services.WithSessionID(ctx, id)
	if err := t.player.Stop(ctx, id); err != nil {
		t.logFailure(ctx, ActionStop, err)
		return err
	}
	return nil
}

// Download returns the session's current SVG as score.svg.
func (t *Toolbar) Download(ctx context.Context, id string) (File, error) {
	ctx = services.WithSessionID(ctx, id)
	if t.mobile {
		err := services.Wrap(services.ErrUnsupportedPlatform, "toolbar", "download", MobileDownloadMessage, nil)
		t.fail(ctx, ActionDownload, MobileDownloadMessage, err)
		return File{}, err
	}
	svg, ok := t.images.Image(id)
	if !ok || strings.TrimSpace(svg) == "" {
		err := services.Wrap(services.ErrNotFound, "toolbar", "download", "no score shown for session "+id, nil)
		t.fail(ctx, ActionDownload, "There is no score to download.", err)
		return File{}, err
	}
	return File{
		Name:        DownloadName,
		ContentType: "image/svg+xml; charset=utf-8",
		Data:        []byte(svg),
	}, nil
}

// Open opens the session's source with the platform default application.
// Remote sources open in the browser.
func (t *Toolbar) Open(ctx context.Context, id string) error {
	ctx = services.WithSessionID(ctx, id)
	if t.mobile {
		err := services.Wrap(services.ErrUnsupportedPlatform, "toolbar", "open", MobileOpenMessage, nil)
		t.fail(ctx, ActionOpen, MobileOpenMessage, err)
		return err
	}
	sess, err := t.sessions.Get(ctx, id)
	if err == nil && sess == nil {
		err = services.Wrap(services.ErrNotFound, "toolbar", "open", "unknown session "+id, nil)
	}
	if err != nil {
		t.fail(ctx, ActionOpen, "The score's source could not be found.", err)
		return err
	}

	source := strings.TrimSpace(sess.SourcePath)
	if fetch.IsURL(source) {
		err = t.opener.OpenURL(ctx, source)
	} else {
		err = t.opener.OpenExternally(ctx, source)
	}
	if err != nil {
		t.fail(ctx, ActionOpen, "Could not open "+source+": "+err.Error(), err)
		return err
	}
	t.logger.Info("source opened externally",
		logging.String(logging.FieldSessionID, id),
		logging.String("path", source),
	)
	return nil
}

func (t *Toolbar) logFailure(ctx context.Context, action Action, err error) {
	logging.WarnWithContext(logging.WithContext(ctx, t.logger), "toolbar action failed", "toolbar_"+string(action)+"_failed",
		logging.String("action", string(action)),
		logging.String("kind", services.Kind(err)),
		logging.Error(err),
	)
}

func (t *Toolbar) fail(ctx context.Context, action Action, message string, err error) {
	t.logFailure(ctx, action, err)
	if t.notifier == nil {
		return
	}
	id, _ := services.SessionIDFromContext(ctx)
	notice := notifications.Notice{
		Kind:      services.Kind(err),
		Message:   message,
		SessionID: id,
	}
	if nerr := t.notifier.Notify(context.WithoutCancel(ctx), notice); nerr != nil {
		t.logger.Warn("notice delivery failed", logging.Error(nerr))
	}
}
