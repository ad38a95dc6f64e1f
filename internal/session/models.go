package session

import (
	"time"

	"stave/internal/blockspec"
)

// Session is one displayed score.
type Session struct {
	ID           string            `json:"id"`
	SourcePath   string            `json:"source_path"`
	Options      blockspec.Options `json:"options"`
	MeasureRange string            `json:"measure_range,omitempty"`
	Page         int               `json:"page"`
	Mount        string            `json:"mount,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
}

// Inputs are the values a new session is created with.
type Inputs struct {
	SourcePath   string
	Options      blockspec.Options
	MeasureRange string
	Mount        string
}

// Patch changes selected fields of a session. Nil fields are left alone.
type Patch struct {
	Options      blockspec.Options
	MeasureRange *string
	Page         *int
	Mount        *string
}

// IntPtr returns a pointer to v, for building patches.
func IntPtr(v int) *int { return &v }

// StringPtr returns a pointer to v, for building patches.
func StringPtr(v string) *string { return &v }
