package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/audiolibrelab/easyrec/internal/config"
	"github.com/audiolibrelab/easyrec/internal/host"
	"github.com/audiolibrelab/easyrec/internal/service"
)

var (
	cfg          *config.Config
	cfgFile      string
	pipeline     string
	profile      string
	verboseLevel int
)

var rootCmd = &cobra.Command{
	Use:   "easyrec",
	Short: "Song-synchronized recorder that writes takes into a wavetable",
	Long: `EasyRec records input audio while the song is playing and copies
each finished take into a slot of a 200-slot wavetable.

Recording is armed with the Record mode and starts on the first tick of the
song. Switching to Stop, or stopping the song with auto stop enabled, trims
the silence around the take and writes it into the configured slot.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Configure slog based on verbose level
		setupLogging(verboseLevel)

		// sources only talks to PipeWire
		if cmd.Name() == "sources" && cfgFile == "" {
			return nil
		}

		// Validate pipeline if provided
		if err := validatePipeline(); err != nil {
			return err
		}

		explicit := cfgFile != ""
		if !explicit {
			cfgFile = config.DefaultConfigPath()
		}

		if _, err := os.Stat(cfgFile); errors.Is(err, os.ErrNotExist) && !explicit && profile == "" {
			slog.Debug("No config file found, using built-in defaults", "path", cfgFile)
			cfg = config.Default()
			return nil
		}

		var err error
		cfg, err = config.LoadWithProfile(cfgFile, profile)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		return nil
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/easyrec.yaml)")
	rootCmd.PersistentFlags().StringVarP(&pipeline, "pipeline", "p", "", "pipeline steps: r=record, p=play (e.g., 'rp')")
	rootCmd.PersistentFlags().StringVar(&profile, "profile", "", "configuration profile to use (overrides active_config from file)")
	rootCmd.PersistentFlags().IntVarP(&verboseLevel, "verbose", "v", 0, "verbose level: 0=info, 1=debug, 2=ffmpeg output, 3=max tracing")

	// Add subcommands
	rootCmd.AddCommand(recordCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(wavesCmd)
	rootCmd.AddCommand(playCmd)
	rootCmd.AddCommand(prefixCmd)
	rootCmd.AddCommand(commandCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(sourcesCmd)
}

// setupLogging configures slog based on the verbose level
func setupLogging(level int) {
	var slogLevel slog.Level
	switch level {
	case 0:
		slogLevel = slog.LevelInfo
	case 1, 2, 3:
		// Level 2 and 3 both use Debug level for slog
		// Level 3 will additionally set environment variables
		slogLevel = slog.LevelDebug
	default:
		slogLevel = slog.LevelInfo
	}

	// Configure text handler for clean terminal output
	opts := &slog.HandlerOptions{
		Level: slogLevel,
	}
	handler := slog.NewTextHandler(os.Stderr, opts)
	logger := slog.New(handler)
	slog.SetDefault(logger)

	// Set environment variables for maximum tracing (level 3)
	if level >= 3 {
		os.Setenv("PIPEWIRE_DEBUG", "3")
		os.Setenv("FFMPEG_LOGLEVEL", "debug")
	}
}

// openInput opens a WAV file when path is set, otherwise the configured live
// backend. A nil source means the engine renders silence.
func openInput(ctx context.Context, path string) (host.Source, error) {
	if path != "" {
		src, err := host.OpenWAV(path)
		if err != nil {
			return nil, err
		}
		if src.SampleRate() != cfg.Host.SampleRate {
			slog.Info("Using the input file's sample rate", "file_rate", src.SampleRate(), "config_rate", cfg.Host.SampleRate)
			cfg.Host.SampleRate = src.SampleRate()
		}
		return src, nil
	}

	switch cfg.Input.Backend {
	case config.InputBackendPipeWire:
		src, err := host.StartPipeWire(ctx, cfg.Input.Sources, cfg.Host.SampleRate)
		if err != nil {
			return nil, err
		}
		return src, nil
	default:
		return nil, nil
	}
}

// newService wires the service for the current config
func newService(src host.Source, realtime bool, reg prometheus.Registerer) (*service.EasyRecService, error) {
	opts := service.Options{
		Realtime:   realtime,
		Registerer: reg,
	}
	if src != nil {
		opts.Source = src
	}
	svc, err := service.New(cfg, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create service: %w", err)
	}
	return svc, nil
}
