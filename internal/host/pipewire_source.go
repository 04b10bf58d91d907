package host

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/audiolibrelab/easyrec/internal/sample"
)

// jackClientName is the JACK client ffmpeg registers for the live input
const jackClientName = "easyrec_input"

// bytesPerFrame is one stereo s16le frame
const bytesPerFrame = 4

// PipeWireSource captures live input from PipeWire ports. ffmpeg opens a JACK
// client through pw-jack and streams raw stereo PCM on stdout; the configured
// source ports are linked to the client once it appears.
type PipeWireSource struct {
	cmd    *exec.Cmd
	stdout io.ReadCloser
	reader *bufio.Reader
	buf    []byte
	logger *slog.Logger

	connectCancel context.CancelFunc
	wg            sync.WaitGroup

	mu     sync.Mutex
	stderr strings.Builder
	closed bool
}

// StartPipeWire launches the capture process and links sources to it in the
// background. One source records mono, two record stereo.
func StartPipeWire(ctx context.Context, sources []string, sampleRate int) (*PipeWireSource, error) {
	if len(sources) == 0 || len(sources) > 2 {
		return nil, fmt.Errorf("need 1 or 2 sources, got %d", len(sources))
	}

	args := ffmpegArgs(len(sources), sampleRate)
	cmd := exec.Command(args[0], args[1:]...)
	cmd.Env = append(os.Environ(),
		fmt.Sprintf("PIPEWIRE_QUANTUM=256/%d", sampleRate),
		fmt.Sprintf("PIPEWIRE_LATENCY=256/%d", sampleRate),
	)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stderr pipe: %w", err)
	}

	s := &PipeWireSource{
		cmd:    cmd,
		stdout: stdout,
		reader: bufio.NewReaderSize(stdout, 64*1024),
		logger: slog.Default().With("component", "pipewire_source"),
	}

	s.logger.Info("Starting PipeWire capture", "command", strings.Join(args, " "))
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start ffmpeg: %w", err)
	}

	s.wg.Add(1)
	go s.readStderr(stderr)

	connectCtx, cancel := context.WithCancel(ctx)
	s.connectCancel = cancel
	s.wg.Add(1)
	go s.connectSources(connectCtx, NewPipeWire(), sources)

	return s, nil
}

func ffmpegArgs(channels, sampleRate int) []string {
	return []string{
		"pw-jack", "ffmpeg",
		"-hide_banner", "-nostdin",
		"-f", "jack",
		"-channels", fmt.Sprintf("%d", channels),
		"-i", jackClientName,
		"-ar", fmt.Sprintf("%d", sampleRate),
		"-ac", "2",
		"-f", "s16le",
		"pipe:1",
	}
}

// connectSources links each source to its ffmpeg input port
func (s *PipeWireSource) connectSources(ctx context.Context, pw *PipeWire, sources []string) {
	defer s.wg.Done()

	for i, source := range sources {
		destPort := fmt.Sprintf("%s:input_%d", jackClientName, i+1)

		if err := pw.WaitForPort(ctx, destPort, 5*time.Second); err != nil {
			s.logger.Error("ffmpeg JACK port did not appear", "port", destPort, "error", err)
			continue
		}
		if err := pw.ConnectPortsWithRetry(ctx, source, destPort); err != nil {
			s.logger.Error("Failed to connect source", "source", source, "dest", destPort, "error", err)
			continue
		}
		s.logger.Info("Connected source", "source", source, "dest", destPort)
	}
}

func (s *PipeWireSource) readStderr(pipe io.Reader) {
	defer s.wg.Done()

	scanner := bufio.NewScanner(pipe)
	for scanner.Scan() {
		line := scanner.Text()
		s.mu.Lock()
		s.stderr.WriteString(line + "\n")
		s.mu.Unlock()
		s.logger.Debug("ffmpeg output", "line", line)
	}
}

// Live reports that reads are paced by the capture device
func (s *PipeWireSource) Live() bool {
	return true
}

// Read blocks until len(dst) frames were captured or the stream ends
func (s *PipeWireSource) Read(dst []sample.Frame) (int, error) {
	need := len(dst) * bytesPerFrame
	if cap(s.buf) < need {
		s.buf = make([]byte, need)
	}
	buf := s.buf[:need]

	read, err := io.ReadFull(s.reader, buf)
	n := decodeS16LE(dst, buf[:read-read%bytesPerFrame])
	if errors.Is(err, io.ErrUnexpectedEOF) {
		err = io.EOF
	}
	return n, err
}

// decodeS16LE converts interleaved stereo s16le bytes into frames
func decodeS16LE(dst []sample.Frame, data []byte) int {
	n := min(len(dst), len(data)/bytesPerFrame)
	for i := 0; i < n; i++ {
		off := i * bytesPerFrame
		dst[i] = sample.Frame{
			L: float32(int16(binary.LittleEndian.Uint16(data[off:]))),
			R: float32(int16(binary.LittleEndian.Uint16(data[off+2:]))),
		}
	}
	return n
}

// Close stops ffmpeg, interrupting it first so it can flush
func (s *PipeWireSource) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.connectCancel()

	if s.cmd.Process != nil {
		if err := s.cmd.Process.Signal(os.Interrupt); err != nil {
			s.logger.Debug("Failed to interrupt ffmpeg, killing", "error", err)
			s.cmd.Process.Kill()
		}
	}

	done := make(chan error, 1)
	go func() {
		// Wait closes the pipes once the process is gone
		s.wg.Wait()
		done <- s.cmd.Wait()
	}()

	select {
	case err := <-done:
		return s.exitError(err)
	case <-time.After(5 * time.Second):
		s.logger.Warn("ffmpeg did not exit within timeout, force killing")
		s.cmd.Process.Kill()
		<-done
		return nil
	}
}

func (s *PipeWireSource) exitError(err error) error {
	if err == nil {
		return nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		// 255 is ffmpeg's exit code after an interrupt
		if exitErr.ExitCode() == 255 {
			return nil
		}
		if state := exitErr.ProcessState.String(); state == "signal: interrupt" || state == "signal: killed" {
			return nil
		}
	}

	s.mu.Lock()
	output := s.stderr.String()
	s.mu.Unlock()
	s.logger.Debug("ffmpeg stderr", "output", output)
	return fmt.Errorf("ffmpeg process failed: %w", err)
}
