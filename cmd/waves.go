package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/audiolibrelab/easyrec/internal/wavetable"
)

var wavesCmd = &cobra.Command{
	Use:   "waves",
	Short: "List the waves stored in the wavetable",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := newService(nil, false, nil)
		if err != nil {
			return err
		}
		defer svc.Close()

		waves := svc.Waves()
		fmt.Printf("Wavetable: %s (%d/%d slots used)\n\n", cfg.Wavetable.Directory, len(waves), wavetable.Capacity)
		if len(waves) == 0 {
			fmt.Println("No waves recorded yet")
			return nil
		}

		fmt.Printf("%-5s %-40s %10s %8s %6s\n", "SLOT", "NAME", "FRAMES", "SECONDS", "RATE")
		for _, w := range waves {
			fmt.Printf("%-5d %-40s %10d %8.2f %6d\n", w.Slot, w.Name, w.Frames, w.Seconds, w.SampleRate)
		}
		return nil
	},
}
