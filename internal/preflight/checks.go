package preflight

import (
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"golang.org/x/sys/unix"

	"vidscribe/internal/config"
)

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	expanded, err := config.ExpandPath(path)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: %v)", path, err)}
	}
	info, err := os.Stat(expanded)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", expanded)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", expanded, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", expanded)}
	}
	if err := unix.Access(expanded, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", expanded, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", expanded)}
}

// CheckFreeSpace verifies that the filesystem holding path has at least
// minFree bytes available.
func CheckFreeSpace(name, path string, minFree uint64) Result {
	expanded, err := config.ExpandPath(path)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: %v)", path, err)}
	}
	var stat unix.Statfs_t
	if err := unix.Statfs(expanded, &stat); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: statfs: %v)", expanded, err)}
	}
	free := stat.Bavail * uint64(stat.Bsize)
	if free < minFree {
		return Result{
			Name:    name,
			Warning: true,
			Detail:  fmt.Sprintf("%s free, %s recommended", humanize.IBytes(free), humanize.IBytes(minFree)),
		}
	}
	return Result{Name: name, Passed: true, Detail: humanize.IBytes(free) + " free"}
}

// CheckCredential reports whether diarization can obtain its model. A
// missing credential is a warning because runs fall back to a single speaker.
func CheckCredential(cfg *config.Config, explicit string) Result {
	const name = "Diarization credential"
	if _, source := cfg.ResolveHFToken(explicit); source != config.CredentialNone {
		return Result{Name: name, Passed: true, Detail: "found in " + string(source)}
	}
	if dir := cfg.Diarization.LocalModelDir; dir != "" {
		if res := CheckDirectoryAccess(name, dir); res.Passed {
			return Result{Name: name, Passed: true, Detail: "local model at " + dir}
		}
	}
	return Result{
		Name:    name,
		Warning: true,
		Detail:  fmt.Sprintf("no token (set %s or diarization.hf_token); runs use a single speaker", config.EnvHFToken),
	}
}
