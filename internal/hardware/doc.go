// Package hardware chooses recognition settings from the available
// accelerator memory.
//
// SelectTier is a pure lookup over an ordered table so it can be tested
// without real hardware. Detect probes the machine (nvidia-smi first, the ghw
// PCI inventory second) and is kept separate so callers can inject a memory
// value instead.
package hardware
