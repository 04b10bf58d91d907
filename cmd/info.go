package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/audiolibrelab/easyrec/internal/audio"
	"github.com/audiolibrelab/easyrec/internal/config"
	"github.com/audiolibrelab/easyrec/internal/host"
)

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show the resolved configuration and the graph latency",
	Long:  `Display the resolved configuration with inheritance indicators, the file paths in use and the latency the next take would be compensated with. Shows which values are inherited from default vs profile-specific.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		inh := cfg.Inheritance
		if inh == nil {
			inh = &config.InheritanceInfo{}
		}

		// Display file paths
		fmt.Printf("=== FILE PATHS ===\n")
		fmt.Printf("config: %s\n", cfgFile)
		fmt.Printf("wavetable: %s\n", cfg.Wavetable.Directory)
		fmt.Printf("state: %s\n", cfg.State.File)

		// Display resolved configuration with inheritance indicators
		fmt.Printf("\n=== RESOLVED CONFIGURATION (%s) ===\n", cfg.Profile)

		fmt.Printf("\n[Host]\n")
		fmt.Printf("sample_rate: %d %s\n", cfg.Host.SampleRate, getInheritanceIndicator(inh.Host.SampleRate))
		fmt.Printf("block_size: %d %s\n", cfg.Host.BlockSize, getInheritanceIndicator(inh.Host.BlockSize))
		fmt.Printf("bpm: %d, ticks_per_beat: %d\n", cfg.Host.BPM, cfg.Host.TicksPerBeat)
		fmt.Printf("delay_compensation: %t\n", cfg.Host.DelayCompensation)

		fmt.Printf("\n[Input]\n")
		fmt.Printf("backend: %s\n", cfg.Input.Backend)
		for i, src := range cfg.Input.Sources {
			fmt.Printf("%d. %s\n", i, src)
		}

		fmt.Printf("\n[Record]\n")
		fmt.Printf("auto_stop: %t %s\n", cfg.Record.AutoStop, getInheritanceIndicator(inh.Record.AutoStop))
		fmt.Printf("wavetable_slot: %d %s\n", cfg.Record.WavetableSlot, getInheritanceIndicator(inh.Record.WavetableSlot))
		fmt.Printf("overwrite: %t %s\n", cfg.Record.Overwrite, getInheritanceIndicator(inh.Record.Overwrite))

		fmt.Printf("\n[Nodes] %s\n", getInheritanceIndicator(inh.Nodes))
		for i, n := range cfg.Nodes {
			override := "none"
			if n.OverrideLatency != config.NoLatencyOverride {
				override = fmt.Sprintf("%d", n.OverrideLatency)
			}
			fmt.Printf("%d. %s latency=%d override=%s active=%t\n", i, n.Name, n.Latency, override, n.Active)
		}

		latency := audio.MaxLatency(host.NewGraph(cfg.Nodes), cfg.Host.DelayCompensation)
		fmt.Printf("\nmax_latency: %d samples\n", latency)

		return nil
	},
}

// getInheritanceIndicator returns a formatted indicator for inheritance status
func getInheritanceIndicator(status string) string {
	switch status {
	case "inherited":
		return "[inherited]"
	case "profile-specific":
		return "[profile-specific]"
	default:
		return "[default]"
	}
}

func init() {
	rootCmd.AddCommand(infoCmd)
}
