package cmd

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/audiolibrelab/easyrec/internal/play"
)

var playCmd = &cobra.Command{
	Use:   "play [slot]",
	Short: "Play a wave from the wavetable",
	Long: `Play the WAV file stored in a wavetable slot using an external player.
Will attempt to use VLC if available, then mpv, ffplay and aplay.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		slot, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid slot %q: %w", args[0], err)
		}

		svc, err := newService(nil, false, nil)
		if err != nil {
			return err
		}
		defer svc.Close()

		path, err := svc.WavePath(slot)
		if err != nil {
			return err
		}

		if err := play.New(os.Stdout).Play(cmd.Context(), path); err != nil {
			return fmt.Errorf("playback failed: %w", err)
		}
		return nil
	},
}
