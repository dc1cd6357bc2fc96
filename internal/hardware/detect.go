package hardware

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/jaypipes/ghw"

	"vidscribe/internal/logging"
	"vidscribe/internal/services"
)

// Accelerator describes one detected CUDA-capable device.
type Accelerator struct {
	Name     string
	MemoryGB float64
	Source   string
}

// InventoryFunc lists accelerators from the PCI/topology inventory.
type InventoryFunc func() ([]Accelerator, error)

// DetectorOption configures a Detector.
type DetectorOption func(*Detector)

// WithExecutor injects the process executor used for nvidia-smi (primarily for tests).
func WithExecutor(exec services.Executor) DetectorOption {
	return func(d *Detector) {
		if exec != nil {
			d.exec = exec
		}
	}
}

// WithInventory replaces the ghw-backed inventory fallback.
func WithInventory(fn InventoryFunc) DetectorOption {
	return func(d *Detector) {
		if fn != nil {
			d.inventory = fn
		}
	}
}

// WithLogger attaches a logger.
func WithLogger(logger *slog.Logger) DetectorOption {
	return func(d *Detector) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// Detector finds the accelerator with the most memory.
type Detector struct {
	smiBinary string
	exec      services.Executor
	inventory InventoryFunc
	logger    *slog.Logger
}

// NewDetector constructs a Detector that queries nvidia-smi and falls back to ghw.
func NewDetector(opts ...DetectorOption) *Detector {
	d := &Detector{
		smiBinary: "nvidia-smi",
		exec:      services.CommandExecutor{},
		inventory: ghwInventory,
		logger:    logging.NewNop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Detect returns the largest accelerator. ok is false when none was found;
// probe failures are logged and treated as "no accelerator".
func (d *Detector) Detect(ctx context.Context) (Accelerator, bool) {
	devices, err := d.querySMI(ctx)
	if err != nil {
		d.logger.Debug("nvidia-smi query failed", logging.Error(err))
	}
	if len(devices) == 0 && d.inventory != nil {
		devices, err = d.inventory()
		if err != nil {
			d.logger.Debug("gpu inventory failed", logging.Error(err))
		}
	}
	best, ok := largest(devices)
	if ok {
		d.logger.Info("accelerator detected",
			logging.String("device", best.Name),
			logging.Float64("memory_gb", best.MemoryGB),
			logging.String("source", best.Source),
		)
	}
	return best, ok
}

func (d *Detector) querySMI(ctx context.Context) ([]Accelerator, error) {
	var lines []string
	cmd := services.Command{
		Binary: d.smiBinary,
		Args:   []string{"--query-gpu=index,name,memory.total", "--format=csv,noheader,nounits"},
	}
	if err := d.exec.Run(ctx, cmd, func(line string) {
		lines = append(lines, line)
	}); err != nil {
		return nil, err
	}
	return ParseSMI(lines)
}

// ParseSMI parses nvidia-smi CSV rows of index, name, and total memory in MiB.
// Rows with unavailable memory are skipped.
func ParseSMI(lines []string) ([]Accelerator, error) {
	var devices []Accelerator
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		parts := strings.Split(line, ",")
		if len(parts) < 3 {
			return nil, fmt.Errorf("unexpected nvidia-smi row %q", line)
		}
		name := strings.TrimSpace(parts[1])
		totalStr := strings.TrimSpace(parts[2])
		if strings.Contains(totalStr, "N/A") {
			continue
		}
		mib, err := strconv.ParseFloat(totalStr, 64)
		if err != nil {
			return nil, fmt.Errorf("parse memory for %s: %w", name, err)
		}
		devices = append(devices, Accelerator{Name: name, MemoryGB: mib / 1024, Source: "nvidia-smi"})
	}
	return devices, nil
}

func ghwInventory() ([]Accelerator, error) {
	info, err := ghw.GPU()
	if err != nil {
		return nil, err
	}
	if info == nil {
		return nil, errors.New("no gpu information")
	}
	var devices []Accelerator
	for _, card := range info.GraphicsCards {
		if card == nil || !strings.Contains(strings.ToLower(card.String()), "nvidia") {
			continue
		}
		if card.Node == nil || card.Node.Memory == nil || card.Node.Memory.TotalUsableBytes <= 0 {
			continue
		}
		devices = append(devices, Accelerator{
			Name:     card.String(),
			MemoryGB: float64(card.Node.Memory.TotalUsableBytes) / (1 << 30),
			Source:   "ghw",
		})
	}
	return devices, nil
}

func largest(devices []Accelerator) (Accelerator, bool) {
	var best Accelerator
	found := false
	for _, dev := range devices {
		if !found || dev.MemoryGB > best.MemoryGB {
			best = dev
			found = true
		}
	}
	return best, found
}
