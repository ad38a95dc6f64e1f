package daemon

import (
	"context"
	"strings"

	"stave/internal/api"
	"stave/internal/logging"
	"stave/internal/notifications"
	"stave/internal/playback"
	"stave/internal/render"
	"stave/internal/services"
	"stave/internal/session"
	"stave/internal/toolbar"
	"stave/internal/view"
)

// Render displays source on mount and returns the new session id. On
// failure the mount point shows the error message and the error is returned.
func (d *Daemon) Render(ctx context.Context, mount, source string) (string, error) {
	mount = strings.TrimSpace(mount)
	if mount == "" {
		return "", services.Wrap(services.ErrValidation, "daemon", "render", "mount required", nil)
	}
	return d.pipeline.Render(ctx, source, mount)
}

// RenderDocument renders every score block of a Markdown note.
func (d *Daemon) RenderDocument(ctx context.Context, note, text string) ([]render.BlockResult, error) {
	return d.pipeline.RenderDocument(ctx, note, text)
}

// Mount returns the state of one mount point.
func (d *Daemon) Mount(name string) (view.MountPoint, error) {
	mp, ok := d.document.Snapshot(name)
	if !ok {
		return view.MountPoint{}, services.Wrap(services.ErrNotFound, "daemon", "mount", "unknown mount "+name, nil)
	}
	return mp, nil
}

// Mounts returns every mount point sorted by name.
func (d *Daemon) Mounts() []view.MountPoint {
	return d.document.Mounts()
}

// Unmount removes a mount point and evicts its sessions, including sessions
// registered for it before a restart. Unmounting an unknown mount is a no-op.
func (d *Daemon) Unmount(ctx context.Context, mount string) error {
	return d.pipeline.Unmount(ctx, mount)
}

// Sessions lists registered sessions, oldest first.
func (d *Daemon) Sessions(ctx context.Context) ([]*session.Session, error) {
	return d.registry.List(ctx)
}

// Session returns one session or a not-found error.
func (d *Daemon) Session(ctx context.Context, id string) (*session.Session, error) {
	sess, err := d.registry.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, services.Wrap(services.ErrNotFound, "daemon", "session", "unknown session "+id, nil)
	}
	return sess, nil
}

// SessionView joins a session with its container and playback state.
func (d *Daemon) SessionView(sess *session.Session) api.Session {
	var container *view.Container
	if c, ok := d.document.Container(sess.ID); ok {
		container = &c
	}
	return api.FromSession(sess, container, d.Playing(sess.ID))
}

// Container returns the container a session is shown in.
func (d *Daemon) Container(id string) (view.Container, bool) {
	return d.document.Container(id)
}

// Play starts playback of a session.
func (d *Daemon) Play(ctx context.Context, id string) error {
	return d.toolbar.Play(ctx, id)
}

// StopPlayback halts playback of a session.
func (d *Daemon) StopPlayback(ctx context.Context, id string) error {
	return d.toolbar.Stop(ctx, id)
}

// Open opens a session's source with the platform default application.
func (d *Daemon) Open(ctx context.Context, id string) error {
	return d.toolbar.Open(ctx, id)
}

// Download returns the SVG a session currently shows.
func (d *Daemon) Download(ctx context.Context, id string) (toolbar.File, error) {
	return d.toolbar.Download(ctx, id)
}

// ShowPage switches a session to page n.
func (d *Daemon) ShowPage(ctx context.Context, id string, n int) error {
	return d.pipeline.ShowPage(ctx, id, n)
}

// Reload re-renders a session's current page.
func (d *Daemon) Reload(ctx context.Context, id string) error {
	return d.pipeline.Reload(ctx, id)
}

// Playback returns the synchronizer state.
func (d *Daemon) Playback() playback.Status {
	return d.sync.Status()
}

// Playing reports whether id is the playing session.
func (d *Daemon) Playing(id string) bool {
	status := d.sync.Status()
	return status.State == playback.StatePlaying && status.SessionID == id
}

// Notices returns up to limit recent notices, newest first.
func (d *Daemon) Notices(limit int) []notifications.Notice {
	return d.feed.Recent(limit)
}

// TestNotification sends a test notice through every configured destination.
func (d *Daemon) TestNotification(ctx context.Context) (bool, string, error) {
	notice := notifications.Notice{Kind: notifications.KindTest, Message: "Test notification from stave"}
	if err := d.notifier.Notify(ctx, notice); err != nil {
		logging.WarnWithContext(d.logger, "test notification failed", "notification_test_failed", logging.Error(err))
		return false, "failed to send notification", err
	}
	if strings.TrimSpace(d.cfg.Notifications.NtfyTopic) == "" {
		return true, "notice recorded; ntfy topic not configured", nil
	}
	return true, "test notification sent", nil
}
