package services

import (
	"os"
	"path/filepath"
	"strings"
)

// PythonHelper builds the command that runs a helper script with its Python
// package available. The runner is "uv" (uv run --with pkg), "uvx"
// (uvx --from pkg) or a Python interpreter that already has pkg installed.
func PythonHelper(runner string, packages []string, script string, args ...string) Command {
	runner = strings.TrimSpace(runner)
	if runner == "" {
		runner = "uv"
	}
	out := make([]string, 0, len(args)+2*len(packages)+4)
	switch filepath.Base(runner) {
	case "uv":
		out = append(out, "run", "--quiet", "--no-project")
		for _, pkg := range packages {
			out = append(out, "--with", pkg)
		}
		out = append(out, "python", script)
	case "uvx":
		for i, pkg := range packages {
			if i == 0 {
				out = append(out, "--from", pkg)
				continue
			}
			out = append(out, "--with", pkg)
		}
		out = append(out, "python", script)
	default:
		out = append(out, script)
	}
	out = append(out, args...)
	return Command{Binary: runner, Args: out}
}

// WriteScript materializes an embedded helper script under dir and returns
// its path.
func WriteScript(dir, name, body string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		return "", err
	}
	return path, nil
}
