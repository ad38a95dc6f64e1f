// Package fetch resolves a score path to raw bytes: absolute URLs are
// retrieved over HTTP, everything else is read from the vault.
package fetch

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"stave/internal/config"
	"stave/internal/logging"
	"stave/internal/services"
)

// DefaultMaxBodyBytes caps remote score downloads.
const DefaultMaxBodyBytes = 64 << 20

// Reader reads vault-relative paths.
type Reader interface {
	Read(ctx context.Context, path string) ([]byte, error)
}

// Fetcher retrieves score data.
type Fetcher struct {
	vault     Reader
	client    *http.Client
	userAgent string
	maxBody   int64
	logger    *slog.Logger
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithHTTPClient replaces the HTTP client (primarily for tests).
func WithHTTPClient(client *http.Client) Option {
	return func(f *Fetcher) {
		if client != nil {
			f.client = client
		}
	}
}

// WithMaxBodyBytes caps the size of a remote score. Larger bodies fail
// instead of being truncated.
func WithMaxBodyBytes(n int64) Option {
	return func(f *Fetcher) {
		if n > 0 {
			f.maxBody = n
		}
	}
}

// WithLogger attaches a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(f *Fetcher) {
		f.logger = logging.NewComponentLogger(logger, "fetch")
	}
}

// New builds a Fetcher reading relative paths from vault.
func New(cfg *config.Config, vault Reader, opts ...Option) *Fetcher {
	timeout := 20 * time.Second
	userAgent := "stave"
	if cfg != nil {
		if cfg.Fetch.TimeoutSeconds > 0 {
			timeout = time.Duration(cfg.Fetch.TimeoutSeconds) * time.Second
		}
		if ua := strings.TrimSpace(cfg.Fetch.UserAgent); ua != "" {
			userAgent = ua
		}
	}
	f := &Fetcher{
		vault:     vault,
		client:    &http.Client{Timeout: timeout},
		userAgent: userAgent,
		maxBody:   DefaultMaxBodyBytes,
		logger:    logging.NewComponentLogger(nil, "fetch"),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// IsURL reports whether path is an absolute URL with a host.
func IsURL(path string) bool {
	u, err := url.Parse(strings.TrimSpace(path))
	if err != nil {
		return false
	}
	return u.IsAbs() && u.Host != ""
}

// Fetch returns the raw bytes for path. Every failure carries
// services.ErrFetch. There are no retries.
func (f *Fetcher) Fetch(ctx context.Context, path string) ([]byte, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, services.Wrap(services.ErrFetch, "fetch", "resolve", "empty score path", nil)
	}
	start := time.Now()
	var (
		data   []byte
		err    error
		source = "vault"
	)
	if IsURL(path) {
		source = "url"
		data, err = f.fetchURL(ctx, path)
	} else {
		data, err = f.fetchVault(ctx, path)
	}
	if err != nil {
		return nil, err
	}
	logging.WithContext(ctx, f.logger).Debug("score fetched",
		logging.String("path", path),
		logging.String("source", source),
		logging.Int("bytes", len(data)),
		logging.Duration("elapsed", time.Since(start)),
	)
	return data, nil
}

func (f *Fetcher) fetchURL(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, services.Wrap(services.ErrFetch, "fetch", "build request", rawURL, err)
	}
	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, services.Wrap(services.ErrFetch, "fetch", "get", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 2048))
		return nil, services.Wrap(services.ErrFetch, "fetch", "get", fmt.Sprintf("%s returned %s", rawURL, resp.Status), nil)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBody+1))
	if err != nil {
		return nil, services.Wrap(services.ErrFetch, "fetch", "read body", rawURL, err)
	}
	if int64(len(data)) > f.maxBody {
		return nil, services.Wrap(services.ErrFetch, "fetch", "read body", fmt.Sprintf("%s exceeds %d bytes", rawURL, f.maxBody), nil)
	}
	return data, nil
}

func (f *Fetcher) fetchVault(ctx context.Context, path string) ([]byte, error) {
	if f.vault == nil {
		return nil, services.Wrap(services.ErrFetch, "fetch", "vault", "no vault configured", nil)
	}
	data, err := f.vault.Read(ctx, path)
	if err != nil {
		return nil, services.Wrap(services.ErrFetch, "fetch", "vault", path, err)
	}
	return data, nil
}
