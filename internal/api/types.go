package api

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// Session describes a rendering session in a transport-friendly format.
type Session struct {
	ID           string         `json:"id"`
	SourcePath   string         `json:"sourcePath"`
	Options      map[string]any `json:"options,omitempty"`
	MeasureRange string         `json:"measureRange,omitempty"`
	Page         int            `json:"page"`
	Pages        int            `json:"pages,omitempty"`
	Mount        string         `json:"mount,omitempty"`
	Mounted      bool           `json:"mounted"`
	Playing      bool           `json:"playing"`
	CreatedAt    string         `json:"createdAt,omitempty"`
	UpdatedAt    string         `json:"updatedAt,omitempty"`
}

// SessionListResponse wraps a collection of sessions.
type SessionListResponse struct {
	Sessions []Session `json:"sessions"`
}

// MountPoint describes the visible state of one mount point.
type MountPoint struct {
	Name       string   `json:"name"`
	Generation uint64   `json:"generation"`
	Revision   uint64   `json:"revision"`
	SessionID  string   `json:"sessionId,omitempty"`
	Source     string   `json:"source,omitempty"`
	Page       int      `json:"page,omitempty"`
	Pages      int      `json:"pages,omitempty"`
	SVG        string   `json:"svg,omitempty"`
	Error      string   `json:"error,omitempty"`
	Playing    []string `json:"playing,omitempty"`
	UpdatedAt  string   `json:"updatedAt,omitempty"`
}

// RenderRequest asks for source text to be rendered on a mount point.
type RenderRequest struct {
	Mount  string `json:"mount"`
	Source string `json:"source"`
}

// RenderResponse reports the session a render produced. Error holds the
// message mounted in place of the score when the render failed. Line is the
// opening fence line of the block for document renders.
type RenderResponse struct {
	Mount     string `json:"mount"`
	Line      int    `json:"line,omitempty"`
	SessionID string `json:"sessionId,omitempty"`
	Error     string `json:"error,omitempty"`
}

// DocumentRequest asks for every score block in a note to be rendered.
type DocumentRequest struct {
	Note string `json:"note"`
	Text string `json:"text"`
}

// DocumentResponse reports one result per score block, in document order.
type DocumentResponse struct {
	Note   string           `json:"note"`
	Blocks []RenderResponse `json:"blocks"`
}

// PlaybackStatus mirrors the synchronizer state.
type PlaybackStatus struct {
	State       string   `json:"state"`
	SessionID   string   `json:"sessionId,omitempty"`
	Highlighted []string `json:"highlighted,omitempty"`
	StartedAt   string   `json:"startedAt,omitempty"`
	PositionMS  float64  `json:"positionMs,omitempty"`
}

// Notice is a transient user-visible message.
type Notice struct {
	ID        string `json:"id"`
	Kind      string `json:"kind"`
	Title     string `json:"title"`
	Message   string `json:"message"`
	SessionID string `json:"sessionId,omitempty"`
	Time      string `json:"time"`
}

// NoticeListResponse wraps recent notices, newest first.
type NoticeListResponse struct {
	Notices []Notice `json:"notices"`
}

// EngineStatus reports engine adapter counters.
type EngineStatus struct {
	Activations int64 `json:"activations"`
	Loads       int64 `json:"loads"`
	Live        bool  `json:"live"`
}

// DependencyStatus captures availability of an external dependency.
type DependencyStatus struct {
	Name        string `json:"name"`
	Command     string `json:"command"`
	Description string `json:"description"`
	Optional    bool   `json:"optional"`
	Available   bool   `json:"available"`
	Detail      string `json:"detail,omitempty"`
	Severity    string `json:"severity"`
}

// DependencySummary aggregates dependency readiness for status displays.
type DependencySummary struct {
	Total           int    `json:"total"`
	Available       int    `json:"available"`
	MissingRequired int    `json:"missingRequired"`
	MissingOptional int    `json:"missingOptional"`
	Severity        string `json:"severity"`
	Detail          string `json:"detail"`
}

// StatusLine is a single labelled line in a status report.
type StatusLine struct {
	Label    string `json:"label"`
	Severity string `json:"severity"`
	Detail   string `json:"detail"`
}

// DaemonStatus aggregates daemon runtime information for API consumers.
type DaemonStatus struct {
	Running       bool               `json:"running"`
	PID           int                `json:"pid"`
	Platform      string             `json:"platform"`
	VaultRoot     string             `json:"vaultRoot"`
	SessionDBPath string             `json:"sessionDbPath"`
	LockFilePath  string             `json:"lockFilePath"`
	Sessions      int                `json:"sessions"`
	Mounts        int                `json:"mounts"`
	Engine        EngineStatus       `json:"engine"`
	Playback      PlaybackStatus     `json:"playback"`
	Dependencies  []DependencyStatus `json:"dependencies"`
}

// ActionResponse acknowledges a toolbar or page action.
type ActionResponse struct {
	SessionID string `json:"sessionId"`
	Action    string `json:"action"`
	OK        bool   `json:"ok"`
	Message   string `json:"message,omitempty"`
}

// ErrorResponse is the body of every failed API call.
type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}
