package vault

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"golang.org/x/text/unicode/norm"

	"stave/internal/services"
)

// Option configures a Vault.
type Option func(*Vault)

// WithExecutor injects the command runner used by OpenExternally.
func WithExecutor(exec services.Executor) Option {
	return func(v *Vault) {
		if exec != nil {
			v.exec = exec
		}
	}
}

// WithMobile marks the host as a mobile platform.
func WithMobile(mobile bool) Option {
	return func(v *Vault) {
		v.mobile = mobile
	}
}

// WithOpener overrides the platform file opener command.
func WithOpener(binary string, args ...string) Option {
	return func(v *Vault) {
		if strings.TrimSpace(binary) != "" {
			v.opener = append([]string{binary}, args...)
		}
	}
}

// Vault is the host document store rooted at a directory.
type Vault struct {
	root   string
	mobile bool
	exec   services.Executor
	opener []string
}

// New constructs a Vault rooted at root.
func New(root string, opts ...Option) (*Vault, error) {
	root = strings.TrimSpace(root)
	if root == "" {
		return nil, errors.New("vault root required")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve vault root: %w", err)
	}
	v := &Vault{
		root:   filepath.Clean(abs),
		exec:   services.CommandExecutor{},
		opener: defaultOpener(runtime.GOOS),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v, nil
}

// Root returns the absolute vault root.
func (v *Vault) Root() string {
	return v.root
}

// Mobile reports whether the vault is hosted on a mobile platform.
func (v *Vault) Mobile() bool {
	return v.mobile
}

// Resolve normalizes a vault-relative path. A leading slash is treated as the
// vault root, not the filesystem root.
func (v *Vault) Resolve(path string) (string, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return "", services.Wrap(services.ErrValidation, "vault", "resolve", "empty path", nil)
	}
	path = norm.NFC.String(filepath.ToSlash(path))
	if escapes(path) {
		return "", services.Wrap(services.ErrValidation, "vault", "resolve", fmt.Sprintf("%q escapes the vault", path), nil)
	}
	rel := strings.TrimPrefix(filepath.ToSlash(filepath.Clean("/"+path)), "/")
	if rel == "" {
		return "", services.Wrap(services.ErrValidation, "vault", "resolve", "path names the vault root", nil)
	}
	return rel, nil
}

// escapes reports whether a relative path climbs above its starting
// directory at any point.
func escapes(path string) bool {
	depth := 0
	for _, part := range strings.Split(path, "/") {
		switch part {
		case "", ".":
		case "..":
			depth--
			if depth < 0 {
				return true
			}
		default:
			depth++
		}
	}
	return false
}

// FullPath returns the absolute filesystem path for a vault path.
func (v *Vault) FullPath(path string) (string, error) {
	rel, err := v.Resolve(path)
	if err != nil {
		return "", err
	}
	return filepath.Join(v.root, filepath.FromSlash(rel)), nil
}

// Read returns the contents of a vault file.
func (v *Vault) Read(ctx context.Context, path string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	full, err := v.FullPath(path)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(full)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, services.Wrap(services.ErrNotFound, "vault", "read", fmt.Sprintf("file not found: %s", path), nil)
		}
		return nil, services.Wrap(services.ErrNotFound, "vault", "read", "stat", err)
	}
	if !info.Mode().IsRegular() {
		return nil, services.Wrap(services.ErrValidation, "vault", "read", fmt.Sprintf("%s is not a regular file", path), nil)
	}
	if err := checkReadable(full); err != nil {
		return nil, services.Wrap(services.ErrValidation, "vault", "read", fmt.Sprintf("%s is not readable", path), err)
	}
	data, err := os.ReadFile(full)
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, "vault", "read", path, err)
	}
	return data, nil
}

// OpenExternally opens a vault file with the platform default application.
func (v *Vault) OpenExternally(ctx context.Context, path string) error {
	if err := v.canOpen(); err != nil {
		return err
	}
	full, err := v.FullPath(path)
	if err != nil {
		return err
	}
	if _, err := os.Stat(full); err != nil {
		return services.Wrap(services.ErrNotFound, "vault", "open", path, err)
	}
	return v.launch(ctx, full)
}

// OpenURL hands an http(s) URL to the platform default application.
func (v *Vault) OpenURL(ctx context.Context, rawURL string) error {
	if err := v.canOpen(); err != nil {
		return err
	}
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return services.Wrap(services.ErrValidation, "vault", "open url", "not an http(s) url: "+rawURL, err)
	}
	return v.launch(ctx, u.String())
}

func (v *Vault) canOpen() error {
	if v.mobile {
		return services.Wrap(services.ErrUnsupportedPlatform, "vault", "open", "opening files externally is not supported on mobile", nil)
	}
	if len(v.opener) == 0 {
		return services.Wrap(services.ErrUnsupportedPlatform, "vault", "open", "no file opener for "+runtime.GOOS, nil)
	}
	return nil
}

func (v *Vault) launch(ctx context.Context, target string) error {
	args := append(append([]string(nil), v.opener[1:]...), target)
	if err := v.exec.Run(ctx, v.opener[0], args, nil); err != nil {
		return services.Wrap(services.ErrEngine, "vault", "open", v.opener[0], err)
	}
	return nil
}

func defaultOpener(goos string) []string {
	switch goos {
	case "darwin":
		return []string{"open"}
	case "windows":
		return []string{"cmd", "/c", "start", ""}
	case "linux", "freebsd", "openbsd", "netbsd":
		return []string{"xdg-open"}
	default:
		return nil
	}
}
