package verovio

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"stave/internal/blockspec"
	"stave/internal/deps"
	"stave/internal/engine"
	"stave/internal/logging"
	"stave/internal/services"
)

// Option configures the toolkit.
type Option func(*Toolkit)

// WithExecutor injects a custom executor (primarily for tests).
func WithExecutor(exec services.Executor) Option {
	return func(t *Toolkit) {
		if exec != nil {
			t.exec = exec
		}
	}
}

// WithResourcePath points the engraver at its font resources.
func WithResourcePath(path string) Option {
	return func(t *Toolkit) {
		t.resourcePath = strings.TrimSpace(path)
	}
}

// WithLogger attaches a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(t *Toolkit) {
		t.logger = logging.NewComponentLogger(logger, "verovio")
	}
}

// Toolkit wraps Verovio CLI interactions. It is not safe for concurrent use.
type Toolkit struct {
	binary       string
	timeout      time.Duration
	resourcePath string
	workDir      string
	exec         services.Executor
	logger       *slog.Logger

	options blockspec.Options
	input   string
	format  string
	loaded  bool

	pages   []string
	timemap timemap
}

// New constructs a toolkit working in a fresh directory under cacheDir.
func New(binary, cacheDir string, timeoutSeconds int, opts ...Option) (*Toolkit, error) {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		return nil, errors.New("verovio binary required")
	}
	if err := os.MkdirAll(cacheDir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}
	workDir, err := os.MkdirTemp(cacheDir, "engine-")
	if err != nil {
		return nil, fmt.Errorf("create work dir: %w", err)
	}
	tk := &Toolkit{
		binary:  binary,
		timeout: time.Duration(timeoutSeconds) * time.Second,
		workDir: workDir,
		exec:    services.CommandExecutor{},
		logger:  logging.NewComponentLogger(nil, "verovio"),
		options: blockspec.Options{},
	}
	for _, opt := range opts {
		opt(tk)
	}
	return tk, nil
}

// Close removes the work directory.
func (t *Toolkit) Close() error {
	return os.RemoveAll(t.workDir)
}

// Ready reports whether the engraver binary can be found.
func (t *Toolkit) Ready(context.Context) error {
	status := deps.CheckBinaries([]deps.Requirement{{Name: "Verovio", Command: t.binary}})[0]
	if !status.Available {
		return errors.New(status.Detail)
	}
	return nil
}

func (t *Toolkit) DefaultOptions(context.Context) (blockspec.Options, error) {
	return defaultOptions.Clone(), nil
}

func (t *Toolkit) SetOptions(_ context.Context, opts blockspec.Options) error {
	t.options = opts.Clone()
	t.invalidate()
	return nil
}

func (t *Toolkit) LoadData(_ context.Context, data []byte) error {
	if len(data) == 0 {
		return errors.New("no score data")
	}
	format, ext := sniffFormat(data)
	path := filepath.Join(t.workDir, "input"+ext)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write input: %w", err)
	}
	if t.input != "" && t.input != path {
		_ = os.Remove(t.input)
	}
	t.input = path
	t.format = format
	t.loaded = true
	t.invalidate()
	return nil
}

// Select always rejects: the CLI has no way to restrict loaded data to a
// measure range.
func (t *Toolkit) Select(context.Context, string) (bool, error) {
	return false, engine.ErrSelectUnsupported
}

func (t *Toolkit) LayoutData(ctx context.Context) ([]byte, error) {
	out := filepath.Join(t.workDir, "layout.mei")
	if err := t.run(ctx, "mei", out); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(out)
	if err != nil {
		return nil, fmt.Errorf("read layout: %w", err)
	}
	return data, nil
}

func (t *Toolkit) PageCount(ctx context.Context) (int, error) {
	if err := t.ensurePages(ctx); err != nil {
		return 0, err
	}
	return len(t.pages), nil
}

func (t *Toolkit) RenderPage(ctx context.Context, page int) (string, error) {
	if err := t.ensurePages(ctx); err != nil {
		return "", err
	}
	if page < 1 || page > len(t.pages) {
		return "", fmt.Errorf("page %d out of range (1-%d)", page, len(t.pages))
	}
	svg, err := os.ReadFile(t.pages[page-1])
	if err != nil {
		return "", fmt.Errorf("read page %d: %w", page, err)
	}
	return string(svg), nil
}

func (t *Toolkit) RenderAudio(ctx context.Context) (string, error) {
	out := filepath.Join(t.workDir, "score.mid")
	if err := t.run(ctx, "midi", out); err != nil {
		return "", err
	}
	data, err := os.ReadFile(out)
	if err != nil {
		return "", fmt.Errorf("read midi: %w", err)
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

func (t *Toolkit) ElementsAt(ctx context.Context, ms float64) ([]string, error) {
	if t.timemap == nil {
		out := filepath.Join(t.workDir, "score.json")
		if err := t.run(ctx, "timemap", out); err != nil {
			return nil, err
		}
		data, err := os.ReadFile(out)
		if err != nil {
			return nil, fmt.Errorf("read timemap: %w", err)
		}
		tm, err := parseTimemap(data)
		if err != nil {
			return nil, err
		}
		t.timemap = tm
	}
	return t.timemap.sounding(ms), nil
}

func (t *Toolkit) invalidate() {
	for _, page := range t.pages {
		_ = os.Remove(page)
	}
	t.pages = nil
	t.timemap = nil
}

// ensurePages renders every page once per load.
func (t *Toolkit) ensurePages(ctx context.Context) error {
	if t.pages != nil {
		return nil
	}
	dir := filepath.Join(t.workDir, "pages")
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("clear pages: %w", err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create pages dir: %w", err)
	}
	if err := t.run(ctx, "svg", filepath.Join(dir, "page.svg"), "--all-pages"); err != nil {
		return err
	}
	pages, err := filepath.Glob(filepath.Join(dir, "*.svg"))
	if err != nil {
		return fmt.Errorf("list pages: %w", err)
	}
	if len(pages) == 0 {
		return errors.New("engraver produced no pages")
	}
	sort.Strings(pages)
	t.pages = pages
	return nil
}

func (t *Toolkit) run(ctx context.Context, outFormat, outFile string, extra ...string) error {
	if !t.loaded {
		return errors.New("no score loaded")
	}
	if t.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}

	args := []string{"-f", t.format, "-t", outFormat, "-o", outFile}
	if t.resourcePath != "" {
		args = append(args, "-r", t.resourcePath)
	}
	args = append(args, extra...)
	args = append(args, optionArgs(t.options)...)
	args = append(args, t.input)

	start := time.Now()
	if err := t.exec.Run(ctx, t.binary, args, nil); err != nil {
		return fmt.Errorf("verovio %s: %w", outFormat, err)
	}
	t.logger.Debug("engraver run",
		logging.String("output", outFormat),
		logging.Duration("elapsed", time.Since(start)),
	)
	return nil
}
