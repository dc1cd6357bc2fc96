package services

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"
)

// Command describes one external process invocation.
type Command struct {
	Binary string
	Args   []string
	// Env entries are appended to the current process environment.
	Env []string
	Dir string
}

// String renders the command line for logs. Environment values are omitted.
func (c Command) String() string {
	parts := append([]string{c.Binary}, c.Args...)
	return strings.Join(parts, " ")
}

// Executor runs external commands, streaming stdout line by line.
type Executor interface {
	Run(ctx context.Context, cmd Command, onStdout func(string)) error
}

// CommandExecutor executes commands using os/exec. Stdout lines go to the
// callback; the tail of stderr is attached to the returned error.
type CommandExecutor struct {
	// StderrTail bounds how many trailing stderr lines are retained.
	StderrTail int
}

const defaultStderrTail = 20

func (e CommandExecutor) Run(ctx context.Context, command Command, onStdout func(string)) error {
	cmd := exec.CommandContext(ctx, command.Binary, command.Args...) //nolint:gosec
	if len(command.Env) > 0 {
		cmd.Env = append(os.Environ(), command.Env...)
	}
	cmd.Dir = command.Dir
	startInGroup(cmd, true)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start command: %w", err)
	}

	limit := e.StderrTail
	if limit <= 0 {
		limit = defaultStderrTail
	}
	tail := newLineTail(limit)

	var wg sync.WaitGroup
	var scanErr error
	var once sync.Once

	scan := func(r io.Reader, forward func(string)) {
		defer wg.Done()
		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
		for scanner.Scan() {
			forward(scanner.Text())
		}
		if err := scanner.Err(); err != nil {
			once.Do(func() {
				scanErr = err
			})
		}
	}

	forward := func(line string) {
		if onStdout != nil {
			onStdout(line)
		}
	}

	wg.Add(2)
	go scan(stdout, forward)
	go scan(stderr, tail.add)

	scanned := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
		case <-scanned:
			return
		}
		select {
		case <-time.After(waitDelay):
			_ = stdout.Close()
			_ = stderr.Close()
		case <-scanned:
		}
	}()

	wg.Wait()
	close(scanned)
	if ctxErr := ctx.Err(); ctxErr != nil {
		_ = cmd.Wait()
		return ctxErr
	}
	if scanErr != nil {
		_ = killGroup(cmd)
		_ = cmd.Wait()
		return fmt.Errorf("scan output: %w", scanErr)
	}

	if err := cmd.Wait(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if detail := tail.String(); detail != "" {
			return fmt.Errorf("wait command: %w: %s", err, detail)
		}
		return fmt.Errorf("wait command: %w", err)
	}
	return nil
}

type lineTail struct {
	mu    sync.Mutex
	limit int
	lines []string
}

func newLineTail(limit int) *lineTail {
	return &lineTail{limit: limit}
}

func (t *lineTail) add(line string) {
	line = strings.TrimSpace(line)
	if line == "" {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lines = append(t.lines, line)
	if len(t.lines) > t.limit {
		t.lines = t.lines[len(t.lines)-t.limit:]
	}
}

func (t *lineTail) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return strings.Join(t.lines, " | ")
}
