package daemonctl

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"syscall"
	"time"

	"stave/internal/api"
	"stave/internal/config"
	"stave/internal/ipc"
	"stave/internal/preflight"
	"stave/internal/session"
)

// LaunchOptions controls daemon process launch behavior.
type LaunchOptions struct {
	SocketPath string
	ConfigPath string
}

type StartState string

const (
	StartStateStarted        StartState = "started"
	StartStateAlreadyRunning StartState = "already_running"
	StartStateRequested      StartState = "start_requested"
)

// StartResult captures daemon start orchestration state.
type StartResult struct {
	State    StartState
	Launched bool
	Message  string
}

// Launch starts a detached stave daemon process.
func Launch(executablePath string, opts LaunchOptions) error {
	if strings.TrimSpace(executablePath) == "" {
		return fmt.Errorf("resolve executable: executable path is empty")
	}

	args := []string{"daemon"}
	if socket := strings.TrimSpace(opts.SocketPath); socket != "" {
		args = append(args, "--socket", socket)
	}
	if cfg := strings.TrimSpace(opts.ConfigPath); cfg != "" {
		args = append(args, "--config", cfg)
	}

	proc := exec.Command(executablePath, args...)
	proc.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	if err := proc.Start(); err != nil {
		return fmt.Errorf("launch daemon: %w", err)
	}
	return proc.Process.Release()
}

// pollInterval is how often daemon state is re-checked while waiting.
const pollInterval = 200 * time.Millisecond

// poll calls check until it reports done or timeout elapses. The last error
// check returned is kept for the timeout message.
func poll(timeout time.Duration, check func() (bool, error)) error {
	deadline := time.Now().Add(timeout)
	var lastErr error
	for time.Now().Before(deadline) {
		done, err := check()
		if done {
			return nil
		}
		lastErr = err
		time.Sleep(pollInterval)
	}
	if lastErr == nil {
		lastErr = errors.New("timed out")
	}
	return lastErr
}

// WaitForClient waits for IPC socket availability and returns a connected client.
func WaitForClient(socketPath string, timeout time.Duration) (*ipc.Client, error) {
	var client *ipc.Client
	err := poll(timeout, func() (bool, error) {
		c, err := ipc.Dial(socketPath)
		if err != nil {
			return false, err
		}
		client = c
		return true, nil
	})
	if err != nil {
		return nil, fmt.Errorf("daemon failed to start: %w", err)
	}
	return client, nil
}

// EnsureStarted launches and/or starts the daemon and returns the resulting state.
func EnsureStarted(socketPath, executablePath string, opts LaunchOptions, waitTimeout time.Duration) (StartResult, error) {
	client, err := ipc.Dial(socketPath)
	launched := false
	if err != nil {
		if launchErr := Launch(executablePath, opts); launchErr != nil {
			return StartResult{}, launchErr
		}
		client, err = WaitForClient(socketPath, waitTimeout)
		if err != nil {
			return StartResult{}, err
		}
		launched = true
	}
	defer client.Close()

	if status, statusErr := client.Status(); statusErr == nil && status != nil && status.Running {
		return alreadyRunning(launched, ""), nil
	}

	resp, err := client.Start()
	if err != nil {
		return StartResult{}, err
	}
	return classifyStart(resp, launched), nil
}

func alreadyRunning(launched bool, message string) StartResult {
	if launched {
		return StartResult{State: StartStateStarted, Launched: true, Message: message}
	}
	return StartResult{State: StartStateAlreadyRunning, Message: message}
}

func classifyStart(resp *ipc.StartResponse, launched bool) StartResult {
	if resp == nil {
		return StartResult{State: StartStateRequested, Launched: launched, Message: "Start request sent"}
	}
	message := strings.TrimSpace(resp.Message)
	switch {
	case resp.Started:
		return StartResult{State: StartStateStarted, Launched: launched, Message: message}
	case strings.EqualFold(message, "daemon already running"):
		return alreadyRunning(launched, message)
	case message != "":
		return StartResult{State: StartStateRequested, Launched: launched, Message: message}
	default:
		return StartResult{State: StartStateRequested, Launched: launched, Message: "Start request sent"}
	}
}

// WaitForShutdown waits for daemon IPC to disappear or report not-running.
func WaitForShutdown(socketPath string, timeout time.Duration) error {
	err := poll(timeout, func() (bool, error) {
		client, err := ipc.Dial(socketPath)
		if err != nil {
			return isDaemonUnavailable(err), err
		}
		status, statusErr := client.Status()
		_ = client.Close()
		switch {
		case statusErr != nil:
			return false, statusErr
		case !status.Running:
			return true, nil
		default:
			return false, errors.New("daemon still running")
		}
	})
	if err != nil {
		return fmt.Errorf("daemon did not stop: %w", err)
	}
	return nil
}

// ProcessInfo returns whether daemon IPC is reachable and the daemon PID when available.
func ProcessInfo(socketPath string) (bool, int, error) {
	client, err := ipc.Dial(socketPath)
	if err != nil {
		if isDaemonUnavailable(err) {
			return false, 0, nil
		}
		return false, 0, err
	}
	defer client.Close()
	status, statusErr := client.Status()
	if statusErr != nil {
		return true, 0, statusErr
	}
	pid := 0
	if status != nil {
		pid = status.PID
	}
	return true, pid, nil
}

// ForceKillProcess sends SIGKILL to the daemon process and cleans pid/lock files.
func ForceKillProcess(pidPath, lockPath string, fallbackPID int) (int, error) {
	pid := fallbackPID
	data, err := os.ReadFile(pidPath)
	if err == nil {
		pidStr := strings.TrimSpace(string(data))
		if pidStr != "" {
			if parsed, parseErr := strconv.Atoi(pidStr); parseErr == nil && parsed > 0 {
				pid = parsed
			}
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return 0, fmt.Errorf("read daemon pid file %q: %w", pidPath, err)
	}
	if pid <= 0 {
		return 0, fmt.Errorf("unable to determine daemon pid (pid file: %s)", pidPath)
	}
	if pid == os.Getpid() {
		return 0, fmt.Errorf("refusing to kill current process (pid %d)", pid)
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return 0, fmt.Errorf("locate daemon process %d: %w", pid, err)
	}
	if err := proc.Kill(); err != nil {
		return 0, fmt.Errorf("kill daemon process %d: %w", pid, err)
	}
	if err := os.Remove(pidPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return 0, fmt.Errorf("remove pid file %q: %w", pidPath, err)
	}
	if lockPath != "" {
		_ = os.Remove(lockPath)
	}
	return pid, nil
}

// ErrDaemonNotRunning indicates daemon IPC is unavailable.
var ErrDaemonNotRunning = errors.New("daemon not running")

// StopResult captures daemon stop/termination outcome.
type StopResult struct {
	StopAcknowledged bool
	ForcedKill       bool
	PID              int
}

// RestartResult captures stop/start outcomes for daemon restart.
type RestartResult struct {
	WasRunning bool
	Stop       StopResult
	Start      StartResult
}

// StopAndTerminate requests daemon stop and force-kills the process if still alive after gracePeriod.
func StopAndTerminate(socketPath string, cfg *config.Config, gracePeriod time.Duration) (StopResult, error) {
	client, err := ipc.Dial(socketPath)
	if err != nil {
		if isDaemonUnavailable(err) {
			return StopResult{}, ErrDaemonNotRunning
		}
		return StopResult{}, err
	}
	statusResp, statusErr := client.Status()
	pid := 0
	lockPath := ""
	if statusErr == nil && statusResp != nil {
		pid = statusResp.PID
		lockPath = statusResp.LockFilePath
	}
	resp, err := client.Stop()
	_ = client.Close()
	if err != nil {
		return StopResult{}, err
	}
	result := StopResult{PID: pid}
	if resp != nil {
		result.StopAcknowledged = resp.Stopped
	}

	_ = WaitForShutdown(socketPath, gracePeriod)
	alive, livePID, aliveErr := ProcessInfo(socketPath)
	if aliveErr != nil {
		alive = false
	}
	if !alive {
		return result, nil
	}

	currentPID := livePID
	if currentPID == 0 {
		currentPID = pid
	}
	if cfg == nil {
		return result, fmt.Errorf("unable to determine daemon pid file: configuration not available")
	}
	if lockPath == "" {
		lockPath = cfg.LockPath()
	}
	killedPID, killErr := ForceKillProcess(cfg.PIDPath(), lockPath, currentPID)
	if killErr != nil {
		return result, fmt.Errorf("failed to stop daemon process: %w", killErr)
	}
	_ = os.Remove(socketPath)
	result.ForcedKill = true
	result.PID = killedPID
	return result, nil
}

// Restart stops the daemon if running, then ensures it is started.
func Restart(socketPath string, cfg *config.Config, executablePath string, opts LaunchOptions, stopGracePeriod, startWaitTimeout time.Duration) (RestartResult, error) {
	stopResult, stopErr := StopAndTerminate(socketPath, cfg, stopGracePeriod)
	if stopErr != nil && !errors.Is(stopErr, ErrDaemonNotRunning) {
		return RestartResult{}, stopErr
	}

	startResult, err := EnsureStarted(socketPath, executablePath, opts, startWaitTimeout)
	if err != nil {
		return RestartResult{}, err
	}

	return RestartResult{
		WasRunning: stopErr == nil,
		Stop:       stopResult,
		Start:      startResult,
	}, nil
}

// StatusSnapshot is the daemon status plus the derived lines a status
// display renders.
type StatusSnapshot struct {
	Status            ipc.StatusResponse    `json:"status"`
	SystemChecks      []api.StatusLine      `json:"systemChecks"`
	Paths             []api.StatusLine      `json:"paths"`
	DependencySummary api.DependencySummary `json:"dependencySummary"`
}

// BuildStatusSnapshot collects daemon status and applies offline fallbacks
// for the session count and dependencies.
func BuildStatusSnapshot(ctx context.Context, socketPath string, cfg *config.Config) (*StatusSnapshot, error) {
	if cfg == nil {
		return nil, errors.New("configuration not available")
	}
	snapshot := &StatusSnapshot{}

	client, err := ipc.Dial(socketPath)
	if err == nil {
		defer client.Close()
		if resp, statusErr := client.Status(); statusErr == nil && resp != nil {
			snapshot.Status = *resp
		}
	}

	status := &snapshot.Status
	if !status.Running {
		status.SessionDBPath = cfg.SessionDBPath()
		status.LockFilePath = cfg.LockPath()
		status.VaultRoot = cfg.Vault.Root
		status.Sessions = offlineSessionCount(ctx, cfg)
	}
	if len(status.Dependencies) == 0 {
		status.Dependencies = api.FromDependencies(preflight.CheckSystemDeps(ctx, cfg))
	}

	snapshot.SystemChecks = BuildSystemChecks(cfg, *status)
	snapshot.Paths = BuildPathChecks(cfg)
	snapshot.DependencySummary = BuildDependencySummary(status.Dependencies)
	return snapshot, nil
}

func offlineSessionCount(ctx context.Context, cfg *config.Config) int {
	path := cfg.SessionDBPath()
	if _, err := os.Stat(path); err != nil {
		return 0
	}
	queryCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	registry, err := session.Open(path)
	if err != nil {
		return 0
	}
	defer registry.Close()
	count, err := registry.Count(queryCtx)
	if err != nil {
		return 0
	}
	return count
}

func isDaemonUnavailable(err error) bool {
	return os.IsNotExist(err) ||
		errors.Is(err, os.ErrNotExist) ||
		errors.Is(err, syscall.ENOENT) ||
		errors.Is(err, syscall.ECONNREFUSED)
}

// BuildSystemChecks resolves status lines that combine runtime state and config checks.
func BuildSystemChecks(cfg *config.Config, status ipc.StatusResponse) []api.StatusLine {
	lines := make([]api.StatusLine, 0, 5)
	if status.Running {
		lines = append(lines, api.StatusLine{Label: "Stave", Severity: "ok", Detail: fmt.Sprintf("Running (pid %d)", status.PID)})
		engine := api.StatusLine{Label: "Engine", Severity: "info", Detail: "Idle"}
		if status.Engine.Live {
			engine = api.StatusLine{Label: "Engine", Severity: "ok", Detail: fmt.Sprintf("Live (%d loads, %d activations)", status.Engine.Loads, status.Engine.Activations)}
		}
		lines = append(lines, engine)
		playback := api.StatusLine{Label: "Playback", Severity: "info", Detail: "Idle"}
		if status.Playback.State == "playing" {
			playback = api.StatusLine{Label: "Playback", Severity: "ok", Detail: "Playing " + status.Playback.SessionID}
		}
		lines = append(lines, playback)
	} else {
		lines = append(lines, api.StatusLine{Label: "Stave", Severity: "warn", Detail: "Not running (run `stave start`)"})
	}

	platform := config.PlatformDesktop
	if cfg.IsMobile() {
		platform = config.PlatformMobile
	}
	lines = append(lines, api.StatusLine{Label: "Platform", Severity: "info", Detail: platform})

	if strings.TrimSpace(cfg.Notifications.NtfyTopic) != "" {
		lines = append(lines, api.StatusLine{Label: "Notifications", Severity: "ok", Detail: "Configured"})
	} else {
		lines = append(lines, api.StatusLine{Label: "Notifications", Severity: "info", Detail: "Notice feed only"})
	}
	return lines
}

// BuildPathChecks resolves configured directory readiness.
func BuildPathChecks(cfg *config.Config) []api.StatusLine {
	results := []preflight.Result{
		preflight.CheckDirectoryAccess("State", cfg.Paths.StateDir),
		preflight.CheckDirectoryAccess("Cache", cfg.Paths.CacheDir),
		preflight.CheckReadableDirectory("Vault", cfg.Vault.Root),
	}
	lines := make([]api.StatusLine, 0, len(results))
	for _, result := range results {
		severity := "error"
		if result.Passed {
			severity = "ok"
		}
		lines = append(lines, api.StatusLine{Label: result.Name, Severity: severity, Detail: result.Detail})
	}
	return lines
}

// BuildDependencySummary computes aggregate dependency readiness.
func BuildDependencySummary(deps []api.DependencyStatus) api.DependencySummary {
	if len(deps) == 0 {
		return api.DependencySummary{
			Severity: "info",
			Detail:   "No dependency checks configured",
		}
	}

	missingRequired := 0
	missingOptional := 0
	for _, dep := range deps {
		if dep.Available {
			continue
		}
		if dep.Optional {
			missingOptional++
		} else {
			missingRequired++
		}
	}

	missingCount := missingRequired + missingOptional
	available := len(deps) - missingCount
	severity := "ok"
	if missingRequired > 0 {
		severity = "error"
	} else if missingOptional > 0 {
		severity = "warn"
	}
	detail := fmt.Sprintf("%d/%d available (missing: %d required, %d optional)", available, len(deps), missingRequired, missingOptional)
	if missingCount == 0 {
		detail = fmt.Sprintf("%d/%d available", available, len(deps))
	}

	return api.DependencySummary{
		Total:           len(deps),
		Available:       available,
		MissingRequired: missingRequired,
		MissingOptional: missingOptional,
		Severity:        severity,
		Detail:          detail,
	}
}
