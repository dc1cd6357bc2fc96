package hardware_test

import (
	"testing"

	"vidscribe/internal/hardware"
)

func TestSelectTierUsesMemoryBands(t *testing.T) {
	tests := []struct {
		name     string
		memoryGB float64
		device   string
		profile  string
		beam     int
	}{
		{name: "large card", memoryGB: 24, device: hardware.DeviceCUDA, profile: "large-v3", beam: 5},
		{name: "exact threshold", memoryGB: 10, device: hardware.DeviceCUDA, profile: "large-v3", beam: 5},
		{name: "mid card", memoryGB: 8, device: hardware.DeviceCUDA, profile: "medium", beam: 5},
		{name: "small card", memoryGB: 4.5, device: hardware.DeviceCUDA, profile: "small", beam: 3},
		{name: "tiny card", memoryGB: 2, device: hardware.DeviceCUDA, profile: "base", beam: 2},
		{name: "below bands", memoryGB: 1, device: hardware.DeviceCPU, profile: "base", beam: 1},
		{name: "no accelerator", memoryGB: 0, device: hardware.DeviceCPU, profile: "base", beam: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tier := hardware.SelectTier(tt.memoryGB, false, nil)
			if tier.Device != tt.device || tier.Profile != tt.profile || tier.BeamWidth != tt.beam {
				t.Fatalf("SelectTier(%v) = %+v", tt.memoryGB, tier)
			}
			if tier.Reason == "" {
				t.Fatal("expected a reason")
			}
		})
	}
}

func TestSelectTierForcedCPUWins(t *testing.T) {
	tier := hardware.SelectTier(48, true, nil)
	if tier.Device != hardware.DeviceCPU || tier.Precision != hardware.CPUBand.Precision || tier.BeamWidth != hardware.CPUBand.BeamWidth {
		t.Fatalf("forced cpu ignored: %+v", tier)
	}
}

func TestSelectTierOverrideWins(t *testing.T) {
	override := &hardware.Override{Profile: "tiny", BeamWidth: 8}
	tier := hardware.SelectTier(24, false, override)
	if tier.Profile != "tiny" || tier.BeamWidth != 8 {
		t.Fatalf("override ignored: %+v", tier)
	}
	if tier.Precision != "float16" {
		t.Fatalf("unpinned precision should come from the band, got %q", tier.Precision)
	}

	cpu := hardware.SelectTier(24, true, &hardware.Override{Profile: "large-v3"})
	if cpu.Profile != "large-v3" || cpu.Device != hardware.DeviceCPU {
		t.Fatalf("override with forced cpu = %+v", cpu)
	}

	if got := hardware.SelectTier(24, false, &hardware.Override{}); got.Profile != "large-v3" {
		t.Fatalf("empty override should not change the tier: %+v", got)
	}
}

func TestBandsAreMonotonic(t *testing.T) {
	rows := append(append([]hardware.Band(nil), hardware.Bands...), hardware.CPUBand)
	for i := 1; i < len(rows); i++ {
		prev, cur := rows[i-1], rows[i]
		if i < len(hardware.Bands) && cur.MinMemoryGB >= prev.MinMemoryGB {
			t.Fatalf("band %d threshold %.1f not below %.1f", i, cur.MinMemoryGB, prev.MinMemoryGB)
		}
		if hardware.ProfileRank(cur.Profile) > hardware.ProfileRank(prev.Profile) {
			t.Fatalf("band %d profile %q more accurate than %q", i, cur.Profile, prev.Profile)
		}
		if hardware.PrecisionRank(cur.Precision) > hardware.PrecisionRank(prev.Precision) {
			t.Fatalf("band %d precision %q higher than %q", i, cur.Precision, prev.Precision)
		}
		if cur.BeamWidth > prev.BeamWidth {
			t.Fatalf("band %d beam %d wider than %d", i, cur.BeamWidth, prev.BeamWidth)
		}
	}
	for _, row := range rows {
		if hardware.ProfileRank(row.Profile) < 0 || hardware.PrecisionRank(row.Precision) < 0 {
			t.Fatalf("unranked row %+v", row)
		}
	}
}

func TestSelectTierMonotonicInMemory(t *testing.T) {
	prev := hardware.SelectTier(0, false, nil)
	for mem := 0.5; mem <= 32; mem += 0.5 {
		cur := hardware.SelectTier(mem, false, nil)
		if hardware.ProfileRank(cur.Profile) < hardware.ProfileRank(prev.Profile) ||
			hardware.PrecisionRank(cur.Precision) < hardware.PrecisionRank(prev.Precision) ||
			cur.BeamWidth < prev.BeamWidth {
			t.Fatalf("tier regressed at %.1f GB: %+v after %+v", mem, cur, prev)
		}
		prev = cur
	}
}
