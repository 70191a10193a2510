// Package deps checks that the external programs analysis modes invoke are
// installed.
package deps

import (
	"fmt"
	"os/exec"
	"strings"

	"blockflow/internal/config"
)

// Requirement defines an external program a mode relies on.
type Requirement struct {
	Name        string
	Command     string
	Description string
	Optional    bool
}

// Status reports the availability of a dependency.
type Status struct {
	Name        string
	Command     string
	Description string
	Optional    bool
	Available   bool
	Detail      string
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
			status.Detail = "command not configured"
			results = append(results, status)
			continue
		}
		if _, err := exec.LookPath(cmd); err != nil {
			status.Detail = fmt.Sprintf("binary %q not found", cmd)
			results = append(results, status)
			continue
		}
		status.Available = true
		results = append(results, status)
	}
	return results
}

// ModeRequirements lists the program of every configured command of a mode.
// Capabilities without a command need nothing. The edit program is optional
// because only the edit phase runs it.
func ModeRequirements(mode string, commands config.Commands) []Requirement {
	capabilities := []struct {
		name     string
		argv     []string
		optional bool
	}{
		{"preprocess", commands.Preprocess, false},
		{"track", commands.Track, false},
		{"stitch", commands.Stitch, false},
		{"collate", commands.Collate, false},
		{"postedit", commands.Postedit, false},
		{"edit", commands.Edit, true},
	}
	var reqs []Requirement
	for _, c := range capabilities {
		if len(c.argv) == 0 {
			continue
		}
		reqs = append(reqs, Requirement{
			Name:        fmt.Sprintf("%s %s", mode, c.name),
			Command:     c.argv[0],
			Description: fmt.Sprintf("Runs the %s step of mode %s", c.name, mode),
			Optional:    c.optional,
		})
	}
	return reqs
}
