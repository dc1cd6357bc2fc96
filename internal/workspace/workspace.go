package workspace

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/gofrs/flock"

	"vidscribe/internal/logging"
	"vidscribe/internal/services"
)

const (
	lockFileName = ".vidscribe.lock"
	// RunDirPrefix marks directories created for runs.
	RunDirPrefix = "run-"
)

// Manager creates run workspaces under a root directory.
type Manager struct {
	root   string
	lock   *flock.Flock
	logger *slog.Logger

	mu     sync.Mutex
	active *Workspace
}

// NewManager prepares a manager rooted at root.
func NewManager(root string, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Manager{
		root:   root,
		lock:   flock.New(filepath.Join(root, lockFileName)),
		logger: logger,
	}
}

// Root returns the directory holding run workspaces.
func (m *Manager) Root() string {
	return m.root
}

// Acquire takes the workspace lock and creates the directory for runID.
// It fails with services.ErrValidation while another run holds the lock.
func (m *Manager) Acquire(runID string) (*Workspace, error) {
	runID = strings.TrimSpace(runID)
	if runID == "" || strings.ContainsAny(runID, `/\`) {
		return nil, services.Wrap(services.ErrValidation, "workspace", "acquire", fmt.Sprintf("invalid run id %q", runID), nil)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active != nil {
		return nil, services.Wrap(services.ErrValidation, "workspace", "acquire", "run already in progress", nil)
	}
	if err := os.MkdirAll(m.root, 0o755); err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "workspace", "acquire", "Failed to create work directory", err)
	}
	ok, err := m.lock.TryLock()
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "workspace", "acquire", "Failed to lock work directory", err)
	}
	if !ok {
		return nil, services.Wrap(services.ErrValidation, "workspace", "acquire",
			"another vidscribe run is using "+m.root, nil)
	}

	path := filepath.Join(m.root, RunDirPrefix+runID)
	if err := os.MkdirAll(path, 0o755); err != nil {
		_ = m.lock.Unlock()
		return nil, services.Wrap(services.ErrConfiguration, "workspace", "acquire", "Failed to create run directory", err)
	}
	ws := &Workspace{path: path, manager: m}
	m.active = ws
	m.logger.Debug("workspace acquired", logging.String("path", path))
	return ws, nil
}

func (m *Manager) release(ws *Workspace) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active != ws {
		return nil
	}
	m.active = nil
	if err := m.lock.Unlock(); err != nil {
		m.logger.Warn("failed to release workspace lock",
			logging.Error(err),
			logging.String(logging.FieldEventType, "workspace_unlock_failed"),
			logging.String(logging.FieldErrorHint, "remove "+filepath.Join(m.root, lockFileName)+" if no run is active"),
			logging.String(logging.FieldImpact, "next run may report the workspace as busy"),
		)
		return err
	}
	return nil
}

// Workspace is the scratch directory of one run.
type Workspace struct {
	path    string
	manager *Manager
	once    sync.Once
}

// Path returns the run directory.
func (w *Workspace) Path() string {
	return w.path
}

// File returns a path for name inside the run directory.
func (w *Workspace) File(name string) string {
	return filepath.Join(w.path, name)
}

// Release unlocks the workspace, removing the run directory first when purge
// is set. Subsequent calls are no-ops.
func (w *Workspace) Release(purge bool) error {
	var err error
	w.once.Do(func() {
		if purge {
			if rmErr := os.RemoveAll(w.path); rmErr != nil {
				err = fmt.Errorf("purge workspace: %w", rmErr)
			}
		}
		if unlockErr := w.manager.release(w); unlockErr != nil && err == nil {
			err = fmt.Errorf("unlock workspace: %w", unlockErr)
		}
	})
	return err
}
