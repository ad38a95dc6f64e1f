package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"stave/internal/deps"
	"stave/internal/notifications"
	"stave/internal/playback"
	"stave/internal/render"
	"stave/internal/services"
	"stave/internal/session"
	"stave/internal/view"
)

// FromSession converts a registry record to its API representation. The
// container, when present, supplies the page count and playing flag.
func FromSession(sess *session.Session, container *view.Container, playing bool) Session {
	if sess == nil {
		return Session{}
	}
	dto := Session{
		ID:           sess.ID,
		SourcePath:   sess.SourcePath,
		MeasureRange: sess.MeasureRange,
		Page:         sess.Page,
		Mount:        sess.Mount,
		Playing:      playing,
		CreatedAt:    formatTime(sess.CreatedAt),
		UpdatedAt:    formatTime(sess.UpdatedAt),
	}
	if len(sess.Options) > 0 {
		dto.Options = make(map[string]any, len(sess.Options))
		for key, value := range sess.Options {
			dto.Options[key] = value
		}
	}
	if container != nil && container.SessionID == sess.ID {
		dto.Mounted = true
		dto.Pages = container.Pages
		dto.Page = container.Page
	}
	return dto
}

// FromMountPoint converts a mount point snapshot. SVG is only copied when
// includeSVG is set.
func FromMountPoint(mp view.MountPoint, includeSVG bool) MountPoint {
	dto := MountPoint{
		Name:       mp.Name,
		Generation: mp.Generation,
		Revision:   mp.Revision,
		Error:      mp.Error,
		Playing:    mp.Playing,
		UpdatedAt:  formatTime(mp.UpdatedAt),
	}
	if c := mp.Container; c != nil {
		dto.SessionID = c.SessionID
		dto.Source = c.Source
		dto.Page = c.Page
		dto.Pages = c.Pages
		if includeSVG {
			dto.SVG = view.Highlight(c.SVG, mp.Playing)
		}
	}
	return dto
}

// FromBlockResults converts document render results.
func FromBlockResults(note string, results []render.BlockResult) DocumentResponse {
	resp := DocumentResponse{Note: note, Blocks: make([]RenderResponse, 0, len(results))}
	for _, r := range results {
		resp.Blocks = append(resp.Blocks, RenderResponse{
			Mount:     r.Mount,
			Line:      r.Line,
			SessionID: r.SessionID,
			Error:     r.Error,
		})
	}
	return resp
}

// FromPlayback converts a synchronizer snapshot.
func FromPlayback(status playback.Status) PlaybackStatus {
	return PlaybackStatus{
		State:       string(status.State),
		SessionID:   status.SessionID,
		Highlighted: status.Highlighted,
		StartedAt:   formatTime(status.StartedAt),
		PositionMS:  status.Position,
	}
}

// FromNotices converts feed entries, keeping their order.
func FromNotices(notices []notifications.Notice) []Notice {
	out := make([]Notice, 0, len(notices))
	for _, n := range notices {
		out = append(out, Notice{
			ID:        n.ID,
			Kind:      n.Kind,
			Title:     n.Title,
			Message:   n.Message,
			SessionID: n.SessionID,
			Time:      formatTime(n.Time),
		})
	}
	return out
}

// FromDependencies converts binary availability checks.
func FromDependencies(statuses []deps.Status) []DependencyStatus {
	out := make([]DependencyStatus, 0, len(statuses))
	for _, s := range statuses {
		severity := "ok"
		if !s.Available {
			severity = "error"
			if s.Optional {
				severity = "warn"
			}
		}
		out = append(out, DependencyStatus{
			Name:        s.Name,
			Command:     s.Command,
			Description: s.Description,
			Optional:    s.Optional,
			Available:   s.Available,
			Detail:      s.Detail,
			Severity:    severity,
		})
	}
	return out
}

// NewError builds an error payload tagged with the error's marker kind.
func NewError(err error) ErrorResponse {
	if err == nil {
		return ErrorResponse{}
	}
	return ErrorResponse{Error: err.Error(), Kind: services.Kind(err)}
}

// StatusCode maps an error to the HTTP status the API answers with.
func StatusCode(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, render.ErrSuperseded):
		return http.StatusConflict
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	case errors.Is(err, services.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, services.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, services.ErrFetch):
		return http.StatusBadGateway
	case errors.Is(err, services.ErrSelection), errors.Is(err, services.ErrUnsupportedPlatform):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(dateTimeFormat)
}
