package deps

import (
	"fmt"
	"os/exec"
	"runtime"
	"strings"

	"stave/internal/config"
)

// Requirement defines an external binary stave relies on.
type Requirement struct {
	Name        string
	Command     string
	Description string
	Optional    bool
}

// Status reports the availability of a dependency.
type Status struct {
	Name        string `json:"name"`
	Command     string `json:"command"`
	Description string `json:"description"`
	Optional    bool   `json:"optional"`
	Available   bool   `json:"available"`
	Detail      string `json:"detail,omitempty"`
}

// Requirements lists the binaries the configuration needs.
func Requirements(cfg *config.Config) []Requirement {
	reqs := []Requirement{{
		Name:        "Verovio",
		Command:     cfg.Engine.Binary,
		Description: "Engraves scores to SVG, MIDI, and timemaps",
	}}
	if opener := FileOpener(cfg); opener != "" {
		reqs = append(reqs, Requirement{
			Name:        "File opener",
			Command:     opener,
			Description: "Opens score sources in their default application",
			Optional:    true,
		})
	}
	return reqs
}

// FileOpener returns the desktop opener binary for the host, or "" on mobile.
func FileOpener(cfg *config.Config) string {
	if cfg.IsMobile() {
		return ""
	}
	switch runtime.GOOS {
	case "darwin":
		return "open"
	case "windows":
		return "cmd"
	default:
		return "xdg-open"
	}
}

// CheckBinaries evaluates the provided requirements and reports availability.
func CheckBinaries(requirements []Requirement) []Status {
	results := make([]Status, 0, len(requirements))
	for _, req := range requirements {
		cmd := strings.TrimSpace(req.Command)
		status := Status{
			Name:        req.Name,
			Command:     cmd,
			Description: strings.TrimSpace(req.Description),
			Optional:    req.Optional,
		}
		if cmd == "" {
			status.Available = false
			status.Detail = "command not configured"
			results = append(results, status)
			continue
		}
		if _, err := exec.LookPath(cmd); err != nil {
			status.Available = false
			status.Detail = fmt.Sprintf("binary %q not found", cmd)
			results = append(results, status)
			continue
		}
		status.Available = true
		results = append(results, status)
	}
	return results
}
