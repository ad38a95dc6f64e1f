package daemonrun

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"stave/internal/config"
	"stave/internal/daemon"
	"stave/internal/deps"
	"stave/internal/ipc"
	"stave/internal/logging"
	"stave/internal/session"
)

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel    string
	Development bool
}

// Run starts the stave daemon runtime loop and blocks until a signal arrives
// or a client asks the daemon to stop.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	logPath := filepath.Join(cfg.Paths.LogDir, "stave.log")
	level := cfg.Logging.Level
	if strings.TrimSpace(opts.LogLevel) != "" {
		level = opts.LogLevel
	}
	logger, err := logging.New(logging.Options{
		Level:            level,
		Format:           cfg.Logging.Format,
		OutputPaths:      []string{"stdout", logPath},
		ErrorOutputPaths: []string{"stderr", logPath},
		Development:      opts.Development,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	logDependencySnapshot(logger, cfg)
	pidPath := cfg.PIDPath()
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	registry, err := session.Open(cfg.SessionDBPath())
	if err != nil {
		logger.Error("open session registry", logging.Error(err))
		return err
	}

	d, err := daemon.New(cfg, registry, logger)
	if err != nil {
		registry.Close()
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()

	ipcServer, err := ipc.NewServer(signalCtx, cfg.Paths.SocketPath, d, logger, ipc.WithShutdown(cancel))
	if err != nil {
		return fmt.Errorf("start IPC server: %w", err)
	}
	defer ipcServer.Close()
	ipcServer.Serve()

	if err := d.Start(signalCtx); err != nil {
		logger.Warn("daemon start failed",
			logging.Error(err),
			logging.String(logging.FieldEventType, "daemon_start_failed"),
			logging.String(logging.FieldErrorHint, "check the lock file and session database access"),
			logging.String(logging.FieldImpact, "score blocks will not render until the daemon starts"),
		)
	}

	<-signalCtx.Done()
	logger.Info("stave daemon shutting down",
		logging.String(logging.FieldEventType, "daemon_shutdown"),
	)
	return nil
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}

func logDependencySnapshot(logger *slog.Logger, cfg *config.Config) {
	if logger == nil || cfg == nil {
		return
	}
	engine := cfg.Engine.Binary
	opener := deps.FileOpener(cfg)
	logger.Info("dependency snapshot",
		logging.String(logging.FieldEventType, "dependency_snapshot"),
		logging.Bool("engine_available", binaryAvailable(engine)),
		logging.String("engine_binary", engine),
		logging.Bool("opener_available", binaryAvailable(opener)),
		logging.String("opener_binary", opener),
		logging.String("vault_root", cfg.Vault.Root),
		logging.Bool("mobile", cfg.IsMobile()),
		logging.Bool("ntfy_configured", strings.TrimSpace(cfg.Notifications.NtfyTopic) != ""),
	)
}

func binaryAvailable(name string) bool {
	if strings.TrimSpace(name) == "" {
		return false
	}
	_, err := exec.LookPath(name)
	return err == nil
}
