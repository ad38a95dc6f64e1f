package services

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
)

// Executor abstracts command execution for testability.
type Executor interface {
	Run(ctx context.Context, binary string, args []string, onOutput func(string)) error
}

// CommandExecutor runs binaries with os/exec, streaming stdout and stderr
// lines to onOutput. When onOutput is nil the last stderr lines are attached
// to the returned error instead.
type CommandExecutor struct{}

func (CommandExecutor) Run(ctx context.Context, binary string, args []string, onOutput func(string)) error {
	cmd := exec.CommandContext(ctx, binary, args...) //nolint:gosec
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start command: %w", err)
	}

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		scanErr error
		once    sync.Once
		tail    []string
	)

	scan := func(r io.Reader, keep bool) {
		defer wg.Done()
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			line := scanner.Text()
			mu.Lock()
			if onOutput != nil {
				onOutput(line)
			} else if keep && strings.TrimSpace(line) != "" {
				tail = append(tail, line)
				if len(tail) > 5 {
					tail = tail[1:]
				}
			}
			mu.Unlock()
		}
		if err := scanner.Err(); err != nil {
			once.Do(func() {
				scanErr = err
			})
		}
	}

	wg.Add(2)
	go scan(stdout, false)
	go scan(stderr, true)

	wg.Wait()
	if scanErr != nil {
		_ = cmd.Process.Kill()
		return fmt.Errorf("scan output: %w", scanErr)
	}

	if err := cmd.Wait(); err != nil {
		if len(tail) > 0 {
			return fmt.Errorf("wait command: %w: %s", err, strings.Join(tail, "; "))
		}
		return fmt.Errorf("wait command: %w", err)
	}
	return nil
}
