package preflight

import (
	"context"

	"stave/internal/config"
	"stave/internal/services"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail"`
}

// RunAll executes every preflight check for the given config. A nil executor
// runs the engraver probe with os/exec.
func RunAll(ctx context.Context, cfg *config.Config, exec services.Executor) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("State directory", cfg.Paths.StateDir),
		CheckDirectoryAccess("Log directory", cfg.Paths.LogDir),
		CheckDirectoryAccess("Cache directory", cfg.Paths.CacheDir),
	}

	// The vault only has to be readable; scores are never written back.
	if cfg.Vault.Root != "" {
		results = append(results, CheckReadableDirectory("Vault", cfg.Vault.Root))
	}

	results = append(results, CheckEngine(ctx, cfg, exec))
	return results
}

// Failed returns the results that did not pass.
func Failed(results []Result) []Result {
	var out []Result
	for _, r := range results {
		if !r.Passed {
			out = append(out, r)
		}
	}
	return out
}
