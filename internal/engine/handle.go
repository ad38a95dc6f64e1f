package engine

import (
	"context"
	"sync/atomic"

	"stave/internal/services"
)

// Handle is the only way to read from the engine. It is valid for the
// duration of one Activate callback and must not be shared across goroutines.
type Handle struct {
	adapter *Adapter
	expired atomic.Bool
}

func (h *Handle) check() error {
	if h == nil || h.adapter == nil || h.expired.Load() {
		return ErrHandleExpired
	}
	return nil
}

// PageCount returns the number of pages in the live layout.
func (h *Handle) PageCount(ctx context.Context) (int, error) {
	if err := h.check(); err != nil {
		return 0, err
	}
	n, err := h.adapter.toolkit.PageCount(ctx)
	if err != nil {
		return 0, services.Wrap(services.ErrEngine, "engine", "page count", "", err)
	}
	return n, nil
}

// RenderPage renders page n (1-based) of the live score as SVG.
func (h *Handle) RenderPage(ctx context.Context, n int) (string, error) {
	if err := h.check(); err != nil {
		return "", err
	}
	if n < 1 {
		return "", services.Wrap(services.ErrValidation, "engine", "render page", "page numbers start at 1", nil)
	}
	svg, err := h.adapter.toolkit.RenderPage(ctx, n)
	if err != nil {
		return "", services.Wrap(services.ErrEngine, "engine", "render page", "", err)
	}
	return svg, nil
}

// RenderAudio renders the live score to base64 MIDI. An empty result is an
// audio generation error.
func (h *Handle) RenderAudio(ctx context.Context) (string, error) {
	if err := h.check(); err != nil {
		return "", err
	}
	audio, err := h.adapter.toolkit.RenderAudio(ctx)
	if err != nil {
		return "", services.Wrap(services.ErrAudioGeneration, "engine", "render audio", "", err)
	}
	if audio == "" {
		return "", services.Wrap(services.ErrAudioGeneration, "engine", "render audio", "engine returned no audio", nil)
	}
	return audio, nil
}

// ActiveElementsAt returns the ids of notes sounding at ms.
func (h *Handle) ActiveElementsAt(ctx context.Context, ms float64) ([]string, error) {
	if err := h.check(); err != nil {
		return nil, err
	}
	ids, err := h.adapter.toolkit.ElementsAt(ctx, ms)
	if err != nil {
		return nil, services.Wrap(services.ErrEngine, "engine", "elements at time", "", err)
	}
	return ids, nil
}

// RestoreDefaults resets engine options to the host defaults. The live score
// no longer matches its inputs afterwards, so the next activation reloads.
func (h *Handle) RestoreDefaults(ctx context.Context) error {
	if err := h.check(); err != nil {
		return err
	}
	a := h.adapter
	defaults, err := a.defaultsLocked(ctx)
	if err != nil {
		return err
	}
	a.live = ""
	a.hasLive.Store(false)
	if err := a.toolkit.SetOptions(ctx, defaults); err != nil {
		return services.Wrap(services.ErrEngine, "engine", "restore defaults", "", err)
	}
	return nil
}
