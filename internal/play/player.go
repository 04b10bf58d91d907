package play

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
)

// players in order of preference
var players = []string{"vlc", "mpv", "ffplay", "aplay"}

// Player plays stored waves through the first audio player found on PATH
type Player struct {
	out      io.Writer
	lookPath func(string) (string, error)
}

func New(out io.Writer) *Player {
	if out == nil {
		out = io.Discard
	}
	return &Player{out: out, lookPath: exec.LookPath}
}

// Play blocks until the WAV file at path has been played or ctx is done
func (p *Player) Play(ctx context.Context, path string) error {
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("audio file not found: %s", path)
	}

	player, err := p.findAudioPlayer()
	if err != nil {
		return fmt.Errorf("no suitable audio player found: %w", err)
	}

	fmt.Fprintf(p.out, "Playing: %s\n", path)

	args := playerArgs(player, path)
	cmd := exec.CommandContext(ctx, player, args...)
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("playback failed with %s: %w", player, err)
	}

	fmt.Fprintln(p.out, "Playback completed")
	return nil
}

func playerArgs(player, path string) []string {
	switch player {
	case "vlc":
		return []string{"--play-and-exit", path}
	case "mpv":
		return []string{"--no-video", path}
	case "ffplay":
		return []string{"-nodisp", "-autoexit", path}
	default:
		// aplay reads the WAV header itself
		return []string{path}
	}
}

func (p *Player) findAudioPlayer() (string, error) {
	for _, player := range players {
		if _, err := p.lookPath(player); err == nil {
			return player, nil
		}
	}

	return "", fmt.Errorf("no audio player found (tried: %s)", strings.Join(players, ", "))
}
