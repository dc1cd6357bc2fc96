package hardware

import (
	"fmt"
	"strings"
)

const (
	DeviceCUDA = "cuda"
	DeviceCPU  = "cpu"
)

// Tier is the recognition configuration selected for a machine.
type Tier struct {
	Device    string
	Profile   string
	Precision string
	BeamWidth int
	// MemoryGB is the accelerator memory the selection was based on.
	MemoryGB float64
	Reason   string
}

// Override pins parts of the tier. Empty fields fall back to the selected row.
type Override struct {
	Profile   string
	Precision string
	BeamWidth int
}

// IsZero reports whether the override pins nothing.
func (o *Override) IsZero() bool {
	return o == nil || (strings.TrimSpace(o.Profile) == "" && strings.TrimSpace(o.Precision) == "" && o.BeamWidth <= 0)
}

// Band is one row of the tier table.
type Band struct {
	MinMemoryGB float64
	Profile     string
	Precision   string
	BeamWidth   int
}

// Bands is ordered from most to least memory. Each row is at least as capable
// as the next in profile, precision, and beam width.
var Bands = []Band{
	{MinMemoryGB: 10, Profile: "large-v3", Precision: "float16", BeamWidth: 5},
	{MinMemoryGB: 6, Profile: "medium", Precision: "float16", BeamWidth: 5},
	{MinMemoryGB: 4, Profile: "small", Precision: "int8_float16", BeamWidth: 3},
	{MinMemoryGB: 2, Profile: "base", Precision: "int8_float16", BeamWidth: 2},
}

// CPUBand is used below every band and whenever the CPU is forced.
var CPUBand = Band{Profile: "base", Precision: "int8", BeamWidth: 1}

// SelectTier picks a tier for acceleratorMemoryGB (zero or negative means no
// accelerator). A manual override wins over everything, then forceCPU, then
// the first band whose threshold the memory meets.
func SelectTier(acceleratorMemoryGB float64, forceCPU bool, override *Override) Tier {
	tier := lookup(acceleratorMemoryGB, forceCPU)
	if override.IsZero() {
		return tier
	}
	if profile := strings.TrimSpace(override.Profile); profile != "" {
		tier.Profile = profile
	}
	if precision := strings.TrimSpace(override.Precision); precision != "" {
		tier.Precision = precision
	}
	if override.BeamWidth > 0 {
		tier.BeamWidth = override.BeamWidth
	}
	tier.Reason = "manual override; " + tier.Reason
	return tier
}

func lookup(memoryGB float64, forceCPU bool) Tier {
	if forceCPU {
		return fromBand(CPUBand, DeviceCPU, 0, "cpu forced")
	}
	if memoryGB <= 0 {
		return fromBand(CPUBand, DeviceCPU, 0, "no accelerator detected")
	}
	for _, band := range Bands {
		if memoryGB >= band.MinMemoryGB {
			return fromBand(band, DeviceCUDA, memoryGB, fmt.Sprintf("%.1f GB accelerator memory (>= %.0f GB band)", memoryGB, band.MinMemoryGB))
		}
	}
	return fromBand(CPUBand, DeviceCPU, memoryGB, fmt.Sprintf("%.1f GB accelerator memory is below every band", memoryGB))
}

func fromBand(band Band, device string, memoryGB float64, reason string) Tier {
	return Tier{
		Device:    device,
		Profile:   band.Profile,
		Precision: band.Precision,
		BeamWidth: band.BeamWidth,
		MemoryGB:  memoryGB,
		Reason:    reason,
	}
}

// PrecisionRank orders numeric precisions from cheapest to most exact.
func PrecisionRank(precision string) int {
	switch precision {
	case "int8":
		return 0
	case "int8_float16", "int8_float32":
		return 1
	case "float16", "bfloat16":
		return 2
	case "float32":
		return 3
	default:
		return -1
	}
}

// ProfileRank orders model profiles from cheapest to most accurate.
func ProfileRank(profile string) int {
	switch profile {
	case "tiny":
		return 0
	case "base":
		return 1
	case "small", "distil-small.en":
		return 2
	case "medium", "distil-medium.en":
		return 3
	case "large-v2", "distil-large-v3":
		return 4
	case "large-v3":
		return 5
	default:
		return -1
	}
}

// String renders the tier compactly, e.g. "medium/float16/beam5@cuda".
func (t Tier) String() string {
	return fmt.Sprintf("%s/%s/beam%d@%s", t.Profile, t.Precision, t.BeamWidth, t.Device)
}
