package services

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"
)

// Session is a long-lived helper process spoken to with JSON lines on stdin
// and read back line by line from stdout. It lets a model stay loaded across
// several requests until it is explicitly closed.
type Session interface {
	// Send writes v as one JSON line to the helper's stdin.
	Send(v any) error
	// Next returns the next stdout line. It returns io.EOF once the helper
	// exited cleanly and ctx.Err() when ctx ends first.
	Next(ctx context.Context) (string, error)
	// Close ends stdin and waits for the helper to exit.
	Close() error
	// Kill terminates the helper immediately.
	Kill() error
}

// Launcher starts helper sessions.
type Launcher interface {
	Launch(ctx context.Context, cmd Command) (Session, error)
}

// ProcessLauncher starts sessions with os/exec.
type ProcessLauncher struct {
	// CloseGrace bounds how long Close waits before killing the helper.
	CloseGrace time.Duration
}

const defaultCloseGrace = 10 * time.Second

// Launch starts the helper. The process outlives ctx; callers end it with
// Close or Kill.
func (l ProcessLauncher) Launch(ctx context.Context, command Command) (Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	cmd := exec.Command(command.Binary, command.Args...) //nolint:gosec
	if len(command.Env) > 0 {
		cmd.Env = append(os.Environ(), command.Env...)
	}
	cmd.Dir = command.Dir
	startInGroup(cmd, false)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start helper: %w", err)
	}

	grace := l.CloseGrace
	if grace <= 0 {
		grace = defaultCloseGrace
	}
	s := &processSession{
		cmd:     cmd,
		stdin:   stdin,
		stdout:  stdout,
		stderr:  stderr,
		lines:   make(chan string, 64),
		stopped: make(chan struct{}),
		exited:  make(chan struct{}),
		tail:    newLineTail(defaultStderrTail),
		grace:   grace,
	}

	var readers sync.WaitGroup
	readers.Add(2)
	go func() {
		defer readers.Done()
		defer close(s.lines)
		scanner := bufio.NewScanner(stdout)
		scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
		for scanner.Scan() {
			select {
			case s.lines <- scanner.Text():
			case <-s.stopped:
				_, _ = io.Copy(io.Discard, stdout)
				return
			}
		}
	}()
	go func() {
		defer readers.Done()
		scanner := bufio.NewScanner(stderr)
		for scanner.Scan() {
			s.tail.add(scanner.Text())
		}
	}()
	go func() {
		readers.Wait()
		s.waitErr = cmd.Wait()
		close(s.exited)
	}()
	return s, nil
}

type processSession struct {
	cmd     *exec.Cmd
	stdin   io.WriteCloser
	stdout  io.ReadCloser
	stderr  io.ReadCloser
	lines   chan string
	stopped chan struct{}
	exited  chan struct{}
	waitErr error
	tail    *lineTail
	grace   time.Duration

	stopOnce  sync.Once
	stdinOnce sync.Once
	writeMu   sync.Mutex
}

func (s *processSession) Send(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	data = append(data, '\n')
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if _, err := s.stdin.Write(data); err != nil {
		return fmt.Errorf("write request: %w", err)
	}
	return nil
}

func (s *processSession) Next(ctx context.Context) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case line, ok := <-s.lines:
		if ok {
			return line, nil
		}
	}
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case <-s.exited:
	}
	if s.waitErr != nil {
		if detail := s.tail.String(); detail != "" {
			return "", fmt.Errorf("helper exited: %w: %s", s.waitErr, detail)
		}
		return "", fmt.Errorf("helper exited: %w", s.waitErr)
	}
	return "", io.EOF
}

func (s *processSession) Close() error {
	s.closeStdin()
	s.stop()
	select {
	case <-s.exited:
	case <-time.After(s.grace):
		_ = s.killAndWait()
	}
	var exitErr *exec.ExitError
	if s.waitErr != nil && !errors.As(s.waitErr, &exitErr) {
		return s.waitErr
	}
	return nil
}

func (s *processSession) Kill() error {
	s.closeStdin()
	s.stop()
	if err := s.killAndWait(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return err
	}
	return nil
}

// killAndWait kills the helper's process group and waits for the readers to
// drain. Pipes still held by an escaped descendant are closed after
// waitDelay.
func (s *processSession) killAndWait() error {
	err := killGroup(s.cmd)
	select {
	case <-s.exited:
	case <-time.After(waitDelay):
		_ = s.stdout.Close()
		_ = s.stderr.Close()
		<-s.exited
	}
	return err
}

func (s *processSession) stop() {
	s.stopOnce.Do(func() { close(s.stopped) })
}

func (s *processSession) closeStdin() {
	s.stdinOnce.Do(func() { _ = s.stdin.Close() })
}
