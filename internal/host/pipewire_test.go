package host

import (
	"encoding/binary"
	"strings"
	"testing"

	"github.com/audiolibrelab/easyrec/internal/sample"
)

func TestParsePorts(t *testing.T) {
	output := `Output ports:
system:capture_1
system:capture_2

Input ports:
  easyrec_input:input_1
`
	ports := parsePorts(output)
	want := []string{"system:capture_1", "system:capture_2", "easyrec_input:input_1"}
	if len(ports) != len(want) {
		t.Fatalf("Expected %d ports, got %d: %v", len(want), len(ports), ports)
	}
	for i := range want {
		if ports[i] != want[i] {
			t.Errorf("port[%d] = %q, expected %q", i, ports[i], want[i])
		}
	}
}

func TestValidatePort_Success(t *testing.T) {
	mockPorts := []string{"Chrome:output_FL", "system:capture_1"}

	if err := validatePortInList("system:capture_1", mockPorts); err != nil {
		t.Errorf("Expected no error for valid single port, got: %v", err)
	}
}

func TestValidatePort_NotFound(t *testing.T) {
	err := validatePortInList("nonexistent:port", []string{"Chrome:output_FL"})
	if err == nil {
		t.Fatal("Expected error for nonexistent port")
	}
	if !strings.Contains(err.Error(), "port not found") {
		t.Errorf("Expected 'port not found' error, got: %v", err)
	}
}

func TestValidatePort_DuplicateDetection(t *testing.T) {
	mockPorts := []string{
		"Chrome:output_FL",
		"Chrome:output_FL",   // True duplicate - same name appears twice
		"Chrome-2:output_FL", // Different instance - NOT a duplicate
	}

	err := validatePortInList("Chrome:output_FL", mockPorts)
	if err == nil {
		t.Fatal("Expected error for duplicate sources")
	}
	if !strings.Contains(err.Error(), "duplicate sources detected") {
		t.Errorf("Expected 'duplicate sources detected' error, got: %v", err)
	}
}

func TestFindPortDuplicates(t *testing.T) {
	mockPorts := []string{
		"Firefox:output_FL",
		"Firefox:output_FL",
		"Firefox (1):output_FL", // Different instance - NOT a duplicate
		"Chrome:output_FL",
	}

	if got := findPortDuplicates("Firefox:output_FL", mockPorts); len(got) != 2 {
		t.Errorf("Expected 2 duplicates, got %d: %v", len(got), got)
	}
	if got := findPortDuplicates("Chrome:output_FL", mockPorts); len(got) != 1 {
		t.Errorf("Expected only itself, got %d: %v", len(got), got)
	}
}

func TestIsEphemeralPort(t *testing.T) {
	tests := map[string]bool{
		"Firefox:output_FL":           true,
		"spotify:output_FR":           true,
		"system:capture_1":            false,
		"alsa_input.usb-Focusrite:FL": false,
	}
	for port, want := range tests {
		if got := isEphemeralPort(port); got != want {
			t.Errorf("isEphemeralPort(%q) = %v, expected %v", port, got, want)
		}
	}
}

func TestFFmpegArgs(t *testing.T) {
	args := strings.Join(ffmpegArgs(1, 48000), " ")

	for _, want := range []string{"pw-jack ffmpeg", "-f jack", "-channels 1", "-i easyrec_input", "-ar 48000", "-ac 2", "-f s16le", "pipe:1"} {
		if !strings.Contains(args, want) {
			t.Errorf("Expected %q in ffmpeg args: %s", want, args)
		}
	}
}

func TestDecodeS16LE(t *testing.T) {
	values := []int16{32767, -32768, 0, 1234, -1}
	data := make([]byte, 0, len(values)*2)
	for _, v := range values {
		data = binary.LittleEndian.AppendUint16(data, uint16(v))
	}

	dst := make([]sample.Frame, 4)
	n := decodeS16LE(dst, data)

	// the trailing half frame is ignored
	if n != 2 {
		t.Fatalf("Expected 2 frames, got %d", n)
	}
	if dst[0] != (sample.Frame{L: 32767, R: -32768}) {
		t.Errorf("frame 0 = %+v", dst[0])
	}
	if dst[1] != (sample.Frame{L: 0, R: 1234}) {
		t.Errorf("frame 1 = %+v", dst[1])
	}
}
