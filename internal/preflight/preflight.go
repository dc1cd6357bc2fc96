package preflight

import (
	"context"

	"vidscribe/internal/config"
	"vidscribe/internal/deps"
)

// MinFreeBytes is the free space below which the work directory check fails.
const MinFreeBytes uint64 = 2 << 30

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	// Warning marks a failed check that does not block a run.
	Warning bool
	Detail  string
}

// RunAll executes every applicable check for cfg.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	var results []Result
	for _, dir := range []struct{ name, path string }{
		{"Work directory", cfg.Paths.WorkDir},
		{"Output directory", cfg.Paths.OutputDir},
		{"State directory", cfg.Paths.StateDir},
	} {
		results = append(results, CheckDirectoryAccess(dir.name, dir.path))
	}
	results = append(results, CheckFreeSpace("Work directory space", cfg.Paths.WorkDir, MinFreeBytes))

	for _, status := range deps.CheckBinaries(deps.Requirements(cfg)) {
		if ctx.Err() != nil {
			break
		}
		results = append(results, fromStatus(status))
	}

	if cfg.Diarization.Enabled {
		results = append(results, CheckCredential(cfg, ""))
	}
	return results
}

// Failed returns results that block a run.
func Failed(results []Result) []Result {
	var failed []Result
	for _, r := range results {
		if !r.Passed && !r.Warning {
			failed = append(failed, r)
		}
	}
	return failed
}

func fromStatus(status deps.Status) Result {
	r := Result{Name: status.Name, Passed: status.Available, Warning: status.Optional && !status.Available}
	switch {
	case status.Available:
		r.Detail = status.Path
	case status.Description != "":
		r.Detail = status.Detail + " (" + status.Description + ")"
	default:
		r.Detail = status.Detail
	}
	return r
}
