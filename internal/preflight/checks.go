package preflight

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	"stave/internal/config"
	"stave/internal/deps"
	"stave/internal/services"
)

const engineProbeTimeout = 10 * time.Second

// CheckEngine verifies that the engraver binary runs and reports its version.
// It uses a short timeout and a single attempt.
func CheckEngine(ctx context.Context, cfg *config.Config, exec services.Executor) Result {
	const name = "Verovio"

	binary := strings.TrimSpace(cfg.Engine.Binary)
	if binary == "" {
		return Result{Name: name, Detail: "binary not configured"}
	}
	if exec == nil {
		status := deps.CheckBinaries([]deps.Requirement{{Name: name, Command: binary}})[0]
		if !status.Available {
			return Result{Name: name, Detail: status.Detail}
		}
		exec = services.CommandExecutor{}
	}

	checkCtx, cancel := context.WithTimeout(ctx, engineProbeTimeout)
	defer cancel()

	var version string
	err := exec.Run(checkCtx, binary, []string{"--version"}, func(line string) {
		if version == "" && strings.TrimSpace(line) != "" {
			version = strings.TrimSpace(line)
		}
	})
	if err != nil {
		return Result{Name: name, Detail: summarizeProbeError(err)}
	}
	if version == "" {
		version = "version unknown"
	}
	return Result{Name: name, Passed: true, Detail: version}
}

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	return checkDirectory(name, path, unix.R_OK|unix.W_OK|unix.X_OK, "read/write ok")
}

// CheckReadableDirectory verifies that the directory exists and can be listed.
func CheckReadableDirectory(name, path string) Result {
	return checkDirectory(name, path, unix.R_OK|unix.X_OK, "read ok")
}

func checkDirectory(name, path string, mode uint32, okDetail string) Result {
	if strings.TrimSpace(path) == "" {
		return Result{Name: name, Detail: "path not configured"}
	}
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, mode); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (%s)", path, okDetail)}
}

// CheckSystemDeps evaluates all system-level dependencies for the given config.
// Both the daemon and the CLI status command use this to avoid duplicating
// the requirements list.
func CheckSystemDeps(_ context.Context, cfg *config.Config) []deps.Status {
	return deps.CheckBinaries(deps.Requirements(cfg))
}

func summarizeProbeError(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "version probe timed out"
	}
	return err.Error()
}
