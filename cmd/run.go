package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/audiolibrelab/easyrec/internal/audio"
	"github.com/audiolibrelab/easyrec/internal/service"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run an interactive recording session",
	Long: `Run the engine in real time on the configured input and control it
from the keyboard:

  r  arm recording (Record)
  s  stop recording and copy the take to the wavetable (Stop)
  p  play the song from the start
  x  stop the song
  q  quit

Use --input to play a WAV file as the song instead of the live input.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		inputPath, _ := cmd.Flags().GetString("input")

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		src, err := openInput(ctx, inputPath)
		if err != nil {
			return err
		}

		svc, err := newService(src, true, nil)
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

		ctx, cancel := context.WithCancel(ctx)
		defer cancel()
		g, gctx := errgroup.WithContext(ctx)

		g.Go(func() error {
			defer cancel()
			_, err := svc.Run(gctx)
			if err != nil && gctx.Err() != nil {
				return nil
			}
			return err
		})

		// stdin is not closable, so the reader is left behind on exit
		go func() {
			readKeys(os.Stdin, svc, cancel)
		}()

		fmt.Println("Keys: r=record s=stop p=play x=stop song q=quit (Enter after each)")
		return g.Wait()
	},
}

// readKeys applies one command per input line until quit or EOF
func readKeys(in io.Reader, svc service.Service, quit func()) {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		if !applyKey(strings.TrimSpace(strings.ToLower(scanner.Text())), svc) {
			break
		}
	}
	quit()
}

// applyKey returns false on quit
func applyKey(key string, svc service.Service) bool {
	var err error
	switch key {
	case "r":
		err = svc.SetMode(audio.ModeRecord)
	case "s":
		err = svc.SetMode(audio.ModeStop)
	case "p":
		svc.Play()
	case "x":
		svc.StopSong()
	case "q":
		return false
	case "":
		return true
	default:
		fmt.Printf("Unknown key %q\n", key)
		return true
	}
	if err != nil {
		fmt.Printf("Error: %v\n", err)
	}

	st := svc.Status()
	fmt.Printf("mode=%s playing=%t tick=%d buffered=%d\n", st.Recorder.Mode, st.Playing, st.Tick, st.Recorder.BufferedFrames)
	return true
}

func init() {
	runCmd.Flags().StringP("input", "i", "", "WAV file to play as the song instead of the live input")
	addParamFlags(runCmd)
}
