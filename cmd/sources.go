package cmd

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/audiolibrelab/easyrec/internal/host"
)

var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "List available audio sources",
	Long:  `List the PipeWire output ports that can be used as live input sources.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ports, err := host.NewPipeWire().ListOutputPorts(cmd.Context())
		if err != nil {
			return fmt.Errorf("failed to get PipeWire sources: %w", err)
		}

		fmt.Printf("🎵 Audio Sources (%s)\n", runtime.GOOS)
		fmt.Printf("═══════════════════════════════════════\n\n")

		fmt.Printf("📋 PIPEWIRE/JACK SOURCES (%d found):\n", len(ports))
		for i, port := range ports {
			fmt.Printf("  %d. %s\n", i+1, port)
		}

		fmt.Printf("\n💡 PipeWire Usage:\n")
		fmt.Printf("  • Format: \"Device: Audio (hw:X,Y):Z\" or \"Application:port\"\n")
		fmt.Printf("  • Example: \"Scarlett 2i2 USB: Audio (hw:1,0):0\"\n")
		fmt.Printf("  • Configure in input.sources with input.backend: pipewire\n\n")

		return nil
	},
}
