package preflight

import (
	"fmt"
	"strings"

	"blockflow/internal/config"
	"blockflow/internal/services"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// Phase selects which checks apply.
type Phase string

const (
	PhasePreedit  Phase = "preedit"
	PhaseEdit     Phase = "edit"
	PhasePostedit Phase = "postedit"
)

// RunAll executes the checks that apply to phase. Only pre-editing reads raw
// frames, so the raw experiment directory is checked for that phase alone.
// Missing optional programs pass with a note.
func RunAll(cfg *config.Config, phase Phase) []Result {
	if cfg == nil {
		return nil
	}

	var results []Result
	if phase == PhasePreedit {
		results = append(results, CheckDirectoryReadable("Raw experiment directory", cfg.RawExperimentDir()))
	}
	results = append(results, CheckDirectoryAccess("Analyses experiment directory", cfg.AnalysesExperimentDir()))
	if cfg.Paths.LogDir != "" {
		results = append(results, CheckDirectoryAccess("Log directory", cfg.Paths.LogDir))
	}

	for _, status := range CheckCommands(cfg) {
		switch {
		case status.Available:
			results = append(results, Result{Name: status.Name, Passed: true, Detail: status.Command})
		case status.Optional && phase != PhaseEdit:
			results = append(results, Result{Name: status.Name, Passed: true, Detail: status.Detail + " (optional)"})
		default:
			results = append(results, Result{Name: status.Name, Detail: status.Detail})
		}
	}
	return results
}

// Failed folds failing results into a configuration error, or returns nil.
func Failed(results []Result) error {
	var problems []string
	for _, r := range results {
		if !r.Passed {
			problems = append(problems, fmt.Sprintf("%s: %s", r.Name, r.Detail))
		}
	}
	if len(problems) == 0 {
		return nil
	}
	return services.Wrap(services.ErrConfiguration, "", "preflight",
		fmt.Sprintf("%d check(s) failed: %s", len(problems), strings.Join(problems, "; ")), nil)
}
