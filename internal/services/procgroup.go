package services

import (
	"errors"
	"os"
	"os/exec"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// waitDelay bounds how long output readers and Wait linger after a kill when
// an orphaned descendant still holds the pipes open.
const waitDelay = 3 * time.Second

// startInGroup places cmd in its own process group so killGroup reaches
// every descendant, such as python started by `uv run`. Context
// cancellation kills the group when cmd came from exec.CommandContext.
func startInGroup(cmd *exec.Cmd, withContext bool) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	if withContext {
		cmd.Cancel = func() error { return killGroup(cmd) }
	}
	cmd.WaitDelay = waitDelay
}

// killGroup sends SIGKILL to the process group led by cmd.
func killGroup(cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return nil
	}
	err := unix.Kill(-cmd.Process.Pid, unix.SIGKILL)
	if errors.Is(err, unix.ESRCH) {
		err = cmd.Process.Kill()
	}
	if errors.Is(err, os.ErrProcessDone) {
		return os.ErrProcessDone
	}
	return err
}
