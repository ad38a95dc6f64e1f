package testsupport

import (
	"context"
	"encoding/base64"
	"fmt"
	"html"
	"sync"

	"stave/internal/blockspec"
)

// FakeToolkit is an in-memory engraving engine. Rendered pages embed the
// loaded data so tests can tell which session's score was live.
type FakeToolkit struct {
	Defaults        blockspec.Options
	Pages           int
	Audio           string
	RejectSelection bool
	SelectErr       error
	LoadErr         error
	ReadyErr        error

	// Elements maps a playback time to sounding note ids.
	Elements func(ms float64) []string

	mu       sync.Mutex
	data     string
	options  blockspec.Options
	loads    int
	elements int
}

// NewFakeToolkit returns a toolkit with two pages and a short MIDI payload.
func NewFakeToolkit() *FakeToolkit {
	return &FakeToolkit{
		Defaults: blockspec.Options{"scale": float64(100), "font": "Leipzig", "breaks": "auto"},
		Pages:    2,
		Audio:    base64.StdEncoding.EncodeToString([]byte("MThd")),
	}
}

func (f *FakeToolkit) Ready(context.Context) error { return f.ReadyErr }

func (f *FakeToolkit) DefaultOptions(context.Context) (blockspec.Options, error) {
	return f.Defaults.Clone(), nil
}

func (f *FakeToolkit) SetOptions(_ context.Context, opts blockspec.Options) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.options = opts.Clone()
	return nil
}

func (f *FakeToolkit) LoadData(_ context.Context, data []byte) error {
	if f.LoadErr != nil {
		return f.LoadErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.data = string(data)
	f.loads++
	return nil
}

func (f *FakeToolkit) Select(context.Context, string) (bool, error) {
	if f.SelectErr != nil {
		return false, f.SelectErr
	}
	return !f.RejectSelection, nil
}

func (f *FakeToolkit) LayoutData(context.Context) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return []byte(f.data), nil
}

func (f *FakeToolkit) PageCount(context.Context) (int, error) {
	return f.Pages, nil
}

func (f *FakeToolkit) RenderPage(_ context.Context, page int) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return fmt.Sprintf(`<svg data-source="%s" data-page="%d" data-scale="%v"><g id="n1" class="note"></g></svg>`,
		html.EscapeString(f.data), page, f.options["scale"]), nil
}

func (f *FakeToolkit) RenderAudio(context.Context) (string, error) {
	return f.Audio, nil
}

func (f *FakeToolkit) ElementsAt(_ context.Context, ms float64) ([]string, error) {
	f.mu.Lock()
	f.elements++
	f.mu.Unlock()
	if f.Elements == nil {
		return nil, nil
	}
	return f.Elements(ms), nil
}

// Loads reports how many times score data was loaded.
func (f *FakeToolkit) Loads() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.loads
}

// ElementQueries reports how many times sounding notes were queried.
func (f *FakeToolkit) ElementQueries() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.elements
}

// Live returns the currently loaded data.
func (f *FakeToolkit) Live() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.data
}
