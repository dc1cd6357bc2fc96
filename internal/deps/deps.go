package deps

import (
	"fmt"
	"os/exec"
	"strings"

	"vidscribe/internal/config"
)

// Requirement defines an external dependency vidscribe relies on.
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
	Path        string
	Detail      string
}

// Requirements lists the binaries a run needs under cfg.
func Requirements(cfg *config.Config) []Requirement {
	if cfg == nil {
		def := config.Default()
		cfg = &def
	}
	reqs := []Requirement{
		{
			Name:        "yt-dlp",
			Command:     cfg.Download.YtDlpBinary,
			Description: "Required for downloading audio",
		},
		{
			Name:        "FFmpeg",
			Command:     cfg.Download.FFmpegBinary,
			Description: "Required by yt-dlp for audio extraction",
		},
		{
			Name:        "Python runner",
			Command:     cfg.Transcription.Runner,
			Description: "Required for speech recognition and diarization helpers",
		},
	}
	if runner := strings.TrimSpace(cfg.Transcription.Runner); runner == "uv" || runner == "uvx" {
		reqs = append(reqs, Requirement{
			Name:        "python3",
			Command:     "python3",
			Description: "Used by uv when no managed interpreter is installed",
			Optional:    true,
		})
	}
	return reqs
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
		path, err := exec.LookPath(cmd)
		if err != nil {
			status.Detail = fmt.Sprintf("binary %q not found", cmd)
			results = append(results, status)
			continue
		}
		status.Available = true
		status.Path = path
		results = append(results, status)
	}
	return results
}

// Missing returns the unavailable required dependencies.
func Missing(statuses []Status) []Status {
	var missing []Status
	for _, s := range statuses {
		if !s.Available && !s.Optional {
			missing = append(missing, s)
		}
	}
	return missing
}
