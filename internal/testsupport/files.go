package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"stave/internal/config"
)

// WriteScore writes content to rel inside the configured vault and returns
// the absolute path.
func WriteScore(t testing.TB, cfg *config.Config, rel, content string) string {
	t.Helper()

	path := filepath.Join(cfg.Vault.Root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}
