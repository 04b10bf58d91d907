package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/audiolibrelab/easyrec/internal/audio"
)

var recordCmd = &cobra.Command{
	Use:   "record [input.wav]",
	Short: "Record a WAV file into the wavetable",
	Long: `Play the input file as the song while recording is armed. The song
starts at tick zero and stops at the end of the file, which ends the take
when auto stop is enabled. The trimmed take is written into the wavetable.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		inputPath := args[0]
		slog.Info("Record command started", "input", inputPath)

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		src, err := openInput(ctx, inputPath)
		if err != nil {
			return err
		}

		svc, err := newService(src, false, nil)
		if err != nil {
			return err
		}
		defer svc.Close()

		params, err := paramsFromFlags(cmd, svc.Params())
		if err != nil {
			return err
		}
		if err := svc.SetParams(params); err != nil {
			return err
		}

		if err := svc.SetMode(audio.ModeRecord); err != nil {
			return err
		}
		svc.Play()

		stats, err := svc.Run(ctx)
		if err != nil {
			return fmt.Errorf("recording failed: %w", err)
		}
		// a manual stop covers auto stop being disabled
		if err := svc.SetMode(audio.ModeStop); err != nil {
			return err
		}
		if err := svc.Close(); err != nil {
			return err
		}

		slog.Debug("Input rendered", "blocks", stats.Blocks, "frames", stats.Frames)
		if msg := svc.GetLastError(); msg != "" {
			return fmt.Errorf("export failed: %s", msg)
		}

		last := svc.Status().LastExport
		switch {
		case last == nil:
			fmt.Println("Nothing was recorded")
		case last.Skipped:
			fmt.Printf("Take %q was not written: %s\n", last.Name, last.Reason)
		default:
			fmt.Printf("Recorded %q into slot %d (%d frames, latency %d)\n", last.Name, last.Slot+1, last.Frames, last.Latency)
		}

		// Execute pipeline if specified
		return executePipeline(ctx, svc, 'r')
	},
}

// paramsFromFlags overrides p with the record flags the user set
func paramsFromFlags(cmd *cobra.Command, p audio.Params) (audio.Params, error) {
	flags := cmd.Flags()
	var err error
	if flags.Changed("slot") {
		if p.WavetableSlot, err = flags.GetInt("slot"); err != nil {
			return p, err
		}
	}
	if flags.Changed("overwrite") {
		if p.Overwrite, err = flags.GetBool("overwrite"); err != nil {
			return p, err
		}
	}
	if flags.Changed("auto-stop") {
		if p.AutoStop, err = flags.GetBool("auto-stop"); err != nil {
			return p, err
		}
	}
	return p, nil
}

func addParamFlags(cmd *cobra.Command) {
	cmd.Flags().IntP("slot", "s", 1, "wavetable slot, 1-200 (overrides config)")
	cmd.Flags().Bool("overwrite", true, "replace the slot instead of searching for the next free one (overrides config)")
	cmd.Flags().Bool("auto-stop", true, "stop recording when the song stops (overrides config)")
}

func init() {
	addParamFlags(recordCmd)
}
