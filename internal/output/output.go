package output

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"vidscribe/internal/services"
	"vidscribe/internal/transcript"
)

const stageName = "output"

// Formatter serializes a merged result.
type Formatter interface {
	Name() string
	Extension() string
	Format(result *transcript.Result) (string, error)
}

// Names lists the supported formats.
var Names = []string{"txt", "srt", "json"}

// ForName returns the formatter for format. includeWords only affects json.
func ForName(format string, includeWords bool) (Formatter, error) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "txt":
		return TextFormatter{}, nil
	case "srt":
		return SRTFormatter{}, nil
	case "json":
		return JSONFormatter{IncludeWords: includeWords}, nil
	default:
		return nil, services.Wrap(services.ErrValidation, stageName, "select formatter",
			fmt.Sprintf("unsupported format %q (supported: %s)", format, strings.Join(Names, ", ")), nil)
	}
}

// Supported reports whether format names a known formatter.
func Supported(format string) bool {
	return slices.Contains(Names, strings.ToLower(strings.TrimSpace(format)))
}

// Save renders result with f and writes it to path through a temporary file
// in the same directory.
func Save(path string, f Formatter, result *transcript.Result) error {
	if f == nil {
		return services.Wrap(services.ErrOutput, stageName, "save", "No formatter selected", nil)
	}
	content, err := f.Format(result)
	if err != nil {
		return err
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return services.Wrap(services.ErrOutput, stageName, "save", "Failed to create output directory", err)
	}
	tmp, err := os.CreateTemp(dir, ".vidscribe-*"+f.Extension())
	if err != nil {
		return services.Wrap(services.ErrOutput, stageName, "save", "Failed to create temporary output", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.WriteString(content); err != nil {
		_ = tmp.Close()
		return services.Wrap(services.ErrOutput, stageName, "save", "Failed to write output", err)
	}
	if err := tmp.Close(); err != nil {
		return services.Wrap(services.ErrOutput, stageName, "save", "Failed to flush output", err)
	}
	if err := os.Chmod(tmpPath, 0o644); err != nil {
		return services.Wrap(services.ErrOutput, stageName, "save", "Failed to set output permissions", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return services.Wrap(services.ErrOutput, stageName, "save", "Failed to finalize output", err)
	}
	return nil
}

// DefaultPath names the output file for a run inside dir.
func DefaultPath(dir, runID string, f Formatter) string {
	return filepath.Join(dir, runID+f.Extension())
}

func requireResult(result *transcript.Result, format string) error {
	if result == nil {
		return services.Wrap(services.ErrOutput, stageName, "format "+format, "No result to format", nil)
	}
	return nil
}
