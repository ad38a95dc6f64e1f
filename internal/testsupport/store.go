package testsupport

import (
	"context"
	"os"
	"testing"

	"stave/internal/config"
	"stave/internal/session"
)

// MustOpenRegistry opens the session registry for tests and registers cleanup.
func MustOpenRegistry(t testing.TB, cfg *config.Config) *session.Registry {
	t.Helper()

	if err := os.MkdirAll(cfg.Paths.StateDir, 0o755); err != nil {
		t.Fatalf("mkdir state dir: %v", err)
	}
	registry, err := session.Open(cfg.SessionDBPath())
	if err != nil {
		t.Fatalf("session.Open: %v", err)
	}
	t.Cleanup(func() {
		registry.Close()
	})
	return registry
}

// NewSession registers a session for tests.
func NewSession(t testing.TB, registry *session.Registry, in session.Inputs) *session.Session {
	t.Helper()

	s, err := registry.Create(context.Background(), in)
	if err != nil {
		t.Fatalf("registry.Create: %v", err)
	}
	return s
}
