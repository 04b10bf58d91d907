package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/audiolibrelab/easyrec/internal/play"
	"github.com/audiolibrelab/easyrec/internal/service"
)

func executePipeline(ctx context.Context, svc service.Service, startStep rune) error {
	if pipeline == "" {
		return nil
	}

	steps := []rune(strings.ToLower(pipeline))

	// Find the starting position in the pipeline
	startIndex := -1
	for i, step := range steps {
		if step == startStep {
			startIndex = i
			break
		}
	}

	if startIndex == -1 {
		return fmt.Errorf("step '%c' not found in pipeline '%s'", startStep, pipeline)
	}

	// Execute remaining steps in the pipeline
	for i := startIndex + 1; i < len(steps); i++ {
		step := steps[i]
		fmt.Printf("Pipeline: executing step '%c'...\n", step)

		switch step {
		case 'r':
			return fmt.Errorf("pipeline step 'r' must come first")

		case 'p':
			if err := playLastTake(ctx, svc); err != nil {
				return fmt.Errorf("pipeline play failed: %w", err)
			}
			fmt.Println("Pipeline: playback completed")

		default:
			return fmt.Errorf("unknown pipeline step: '%c' (valid: r=record, p=play)", step)
		}
	}

	return nil
}

func playLastTake(ctx context.Context, svc service.Service) error {
	last := svc.Status().LastExport
	if last == nil || last.Skipped {
		return fmt.Errorf("no take was written to the wavetable")
	}

	path, err := svc.WavePath(last.Slot + 1)
	if err != nil {
		return err
	}
	return play.New(os.Stdout).Play(ctx, path)
}

func validatePipeline() error {
	if pipeline == "" {
		return nil
	}

	validSteps := map[rune]bool{
		'r': true, // record
		'p': true, // play
	}

	steps := []rune(strings.ToLower(pipeline))
	for _, step := range steps {
		if !validSteps[step] {
			return fmt.Errorf("invalid pipeline step: '%c' (valid: r=record, p=play)", step)
		}
	}

	return nil
}
