package engine

import (
	"context"
	"errors"

	"stave/internal/blockspec"
)

// ErrSelectUnsupported is returned by toolkits that cannot restrict loaded
// data to a measure range at all.
var ErrSelectUnsupported = errors.New("measure ranges are not supported by this engine")

// Toolkit is the engraving engine contract. Implementations are stateful and
// need not be safe for concurrent use; Adapter serializes access.
type Toolkit interface {
	// DefaultOptions returns the engine's built-in option values.
	DefaultOptions(ctx context.Context) (blockspec.Options, error)
	SetOptions(ctx context.Context, opts blockspec.Options) error
	LoadData(ctx context.Context, data []byte) error
	// Select applies a measure range. False means the engine rejected it;
	// ErrSelectUnsupported means it never can.
	Select(ctx context.Context, measureRange string) (bool, error)
	// LayoutData regenerates the loaded score with layout applied.
	LayoutData(ctx context.Context) ([]byte, error)
	PageCount(ctx context.Context) (int, error)
	RenderPage(ctx context.Context, page int) (string, error)
	// RenderAudio returns base64-encoded MIDI.
	RenderAudio(ctx context.Context) (string, error)
	// ElementsAt returns the ids of notes sounding at ms milliseconds.
	ElementsAt(ctx context.Context, ms float64) ([]string, error)
}

// ReadinessChecker is implemented by toolkits that can report whether the
// engine is available at all.
type ReadinessChecker interface {
	Ready(ctx context.Context) error
}

// Inputs is everything needed to make a session's score live.
type Inputs struct {
	Data         []byte
	Options      blockspec.Options
	MeasureRange string
}
