package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"vidscribe/internal/hardware"
)

func newTierCommand(ctx *commandContext) *cobra.Command {
	var forceCPU bool
	var showTable bool

	cmd := &cobra.Command{
		Use:   "tier",
		Short: "Show the detected accelerator and selected recognition tier",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.ensureLogger()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			forced := forceCPU || cfg.Transcription.ForceCPU

			memoryGB := 0.0
			if !forced {
				acc, ok := hardware.NewDetector(hardware.WithLogger(logger)).Detect(cmd.Context())
				if ok {
					memoryGB = acc.MemoryGB
					fmt.Fprintf(out, "Accelerator: %s (%.1f GB, via %s)\n", acc.Name, acc.MemoryGB, acc.Source)
				} else {
					fmt.Fprintln(out, "Accelerator: none detected")
				}
			} else {
				fmt.Fprintln(out, "Accelerator: skipped (CPU forced)")
			}

			override := hardware.Override{
				Profile:   cfg.Transcription.Model,
				BeamWidth: cfg.Transcription.BeamSize,
			}
			tier := hardware.SelectTier(memoryGB, forced, &override)
			fmt.Fprintf(out, "Device:      %s\n", tier.Device)
			fmt.Fprintf(out, "Profile:     %s\n", tier.Profile)
			fmt.Fprintf(out, "Precision:   %s\n", tier.Precision)
			fmt.Fprintf(out, "Beam width:  %d\n", tier.BeamWidth)
			fmt.Fprintf(out, "Reason:      %s\n", tier.Reason)

			if showTable {
				detected := hardware.SelectTier(memoryGB, forced, &hardware.Override{})
				fmt.Fprintln(out, renderTierTable(detected))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&forceCPU, "cpu", false, "Select as if the CPU were forced")
	cmd.Flags().BoolVar(&showTable, "table", false, "Print the full tier table")
	return cmd
}

// renderTierTable lists every band and marks the one detection selects.
func renderTierTable(detected hardware.Tier) string {
	rows := make([][]string, 0, len(hardware.Bands)+1)
	for _, band := range hardware.Bands {
		rows = append(rows, tierRow(fmt.Sprintf(">= %.0f GB", band.MinMemoryGB), band,
			detected.Device != hardware.DeviceCPU && matchesBand(detected, band)))
	}
	rows = append(rows, tierRow("cpu", hardware.CPUBand, detected.Device == hardware.DeviceCPU))
	return renderTable(tierColumns, rows)
}

func tierRow(memory string, band hardware.Band, selected bool) []string {
	marker := ""
	if selected {
		marker = "selected"
	}
	return []string{memory, band.Profile, band.Precision, strconv.Itoa(band.BeamWidth), marker}
}

func matchesBand(t hardware.Tier, band hardware.Band) bool {
	return t.Profile == band.Profile && t.Precision == band.Precision && t.BeamWidth == band.BeamWidth
}
