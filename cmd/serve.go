package cmd

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/audiolibrelab/easyrec/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the engine with an HTTP control API",
	Long: `Run the engine in real time on the configured input and expose it
over HTTP, so recording can be armed and stopped from any device on the same
network. Prometheus metrics are served on /metrics.

The server will display the local network URL for easy access from mobile devices.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		addr, _ := cmd.Flags().GetString("addr")
		inputPath, _ := cmd.Flags().GetString("input")

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		src, err := openInput(ctx, inputPath)
		if err != nil {
			return err
		}

		reg := prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)

		svc, err := newService(src, true, reg)
		if err != nil {
			return err
		}
		defer svc.Close()

		slog.Info("EasyRec server starting", "addr", addr, "profile", cfg.Profile, "input", cfg.Input.Backend)

		ctx, cancel := context.WithCancel(ctx)
		defer cancel()
		g, gctx := errgroup.WithContext(ctx)

		g.Go(func() error {
			return server.New(svc, addr, reg).Start(gctx)
		})
		g.Go(func() error {
			// the end of the input ends the session
			defer cancel()
			_, err := svc.Run(gctx)
			if err != nil && gctx.Err() != nil {
				return nil
			}
			return err
		})

		return g.Wait()
	},
}

func init() {
	serveCmd.Flags().String("addr", ":8080", "listen address for the control server")
	serveCmd.Flags().StringP("input", "i", "", "WAV file to play as the song instead of the live input")
}
