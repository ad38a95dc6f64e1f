package main

import (
	"testing"
)

func TestDaemonStartAndStatus(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"status"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	requireContains(t, out, "Not running")

	out, _, err = runCLI(t, []string{"start"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	requireContains(t, out, "Daemon started")

	out, _, err = runCLI(t, []string{"start"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("second start: %v", err)
	}
	requireContains(t, out, "Daemon already running")

	out, _, err = runCLI(t, []string{"status"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	requireContains(t, out, "Running (pid")
	requireContains(t, out, "Dependencies")
	requireContains(t, out, "Vault:")

	out, _, err = runCLI(t, []string{"--json", "status"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("status --json: %v", err)
	}
	requireContains(t, out, `"running": true`)
}
