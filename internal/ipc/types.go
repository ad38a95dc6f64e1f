package ipc

import "stave/internal/api"

// serviceName is the JSON-RPC service every method is registered under.
const serviceName = "Stave"

// StartRequest triggers daemon startup.
type StartRequest struct{}

// StartResponse indicates whether the daemon was started.
type StartResponse struct {
	Started bool   `json:"started"`
	Message string `json:"message"`
}

// StopRequest stops the daemon and shuts the process down.
type StopRequest struct{}

// StopResponse indicates stop result.
type StopResponse struct {
	Stopped bool `json:"stopped"`
}

// StatusRequest fetches daemon status.
type StatusRequest struct{}

// StatusResponse mirrors the HTTP status payload.
type StatusResponse = api.DaemonStatus

// DependencyStatus describes availability of an external dependency.
type DependencyStatus = api.DependencyStatus

// RenderRequest renders block source on a mount point.
type RenderRequest = api.RenderRequest

// RenderResponse reports the new session or the mounted error message.
type RenderResponse = api.RenderResponse

// DocumentRequest renders every score block of a note.
type DocumentRequest = api.DocumentRequest

// DocumentResponse lists per-block results.
type DocumentResponse = api.DocumentResponse

// Session mirrors the HTTP API session DTO.
type Session = api.Session

// SessionListRequest lists sessions.
type SessionListRequest struct{}

// SessionListResponse contains sessions, oldest first.
type SessionListResponse = api.SessionListResponse

// SessionRequest addresses one session.
type SessionRequest struct {
	ID string `json:"id"`
}

// SessionResponse contains a single session.
type SessionResponse struct {
	Session Session `json:"session"`
}

// ActionResponse acknowledges a session action.
type ActionResponse = api.ActionResponse

// PageRequest switches a session's page.
type PageRequest struct {
	ID   string `json:"id"`
	Page int    `json:"page"`
}

// DownloadResponse carries the current SVG of a session.
type DownloadResponse struct {
	Name        string `json:"name"`
	ContentType string `json:"content_type"`
	Data        []byte `json:"data"`
}

// MountRequest addresses one mount point.
type MountRequest struct {
	Name       string `json:"name"`
	IncludeSVG bool   `json:"include_svg"`
}

// MountResponse contains one mount point.
type MountResponse struct {
	Mount api.MountPoint `json:"mount"`
}

// UnmountResponse reports an unmount.
type UnmountResponse struct {
	Unmounted bool `json:"unmounted"`
}

// PlaybackRequest fetches the synchronizer state.
type PlaybackRequest struct{}

// PlaybackResponse mirrors the synchronizer state.
type PlaybackResponse = api.PlaybackStatus

// NoticesRequest fetches recent notices. Limit <= 0 returns all retained.
type NoticesRequest struct {
	Limit int `json:"limit"`
}

// NoticesResponse lists notices, newest first.
type NoticesResponse = api.NoticeListResponse

// TestNotificationRequest sends a test notice.
type TestNotificationRequest struct{}

// TestNotificationResponse reports the test notice outcome.
type TestNotificationResponse struct {
	Sent    bool   `json:"sent"`
	Message string `json:"message"`
}
