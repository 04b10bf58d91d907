package host

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"
)

// PipeWire manages PipeWire/JACK port operations through pw-link
type PipeWire struct {
	logger *slog.Logger
}

// NewPipeWire creates a new PipeWire instance
func NewPipeWire() *PipeWire {
	return &PipeWire{logger: slog.Default().With("component", "pipewire")}
}

// ListPorts returns all available JACK ports via PipeWire
func (pw *PipeWire) ListPorts(ctx context.Context) ([]string, error) {
	output, err := exec.CommandContext(ctx, "pw-link", "-io").Output()
	if err != nil {
		return nil, fmt.Errorf("failed to list PipeWire ports: %w", err)
	}
	return parsePorts(string(output)), nil
}

// ListOutputPorts returns the ports that can feed the recorder
func (pw *PipeWire) ListOutputPorts(ctx context.Context) ([]string, error) {
	output, err := exec.CommandContext(ctx, "pw-link", "-o").Output()
	if err != nil {
		return nil, fmt.Errorf("failed to list PipeWire output ports: %w", err)
	}
	return parsePorts(string(output)), nil
}

func parsePorts(output string) []string {
	var ports []string
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if line != "" && !strings.HasPrefix(line, "Input ports:") && !strings.HasPrefix(line, "Output ports:") {
			ports = append(ports, line)
		}
	}
	return ports
}

// ValidatePort checks that a port exists exactly once
func (pw *PipeWire) ValidatePort(ctx context.Context, portName string) error {
	if portName == "" || portName == "disabled" {
		return nil
	}

	allPorts, err := pw.ListPorts(ctx)
	if err != nil {
		return fmt.Errorf("failed to check port %s: %w", portName, err)
	}
	return validatePortInList(portName, allPorts)
}

func validatePortInList(portName string, allPorts []string) error {
	duplicates := findPortDuplicates(portName, allPorts)
	switch {
	case len(duplicates) == 0:
		return fmt.Errorf("port not found: %s", portName)
	case len(duplicates) > 1:
		return fmt.Errorf("duplicate sources detected for '%s': %v. Please close conflicting applications", portName, duplicates)
	}
	return nil
}

// findPortDuplicates finds all ports with exactly the same name
func findPortDuplicates(portName string, allPorts []string) []string {
	var duplicates []string
	for _, port := range allPorts {
		if port == portName {
			duplicates = append(duplicates, port)
		}
	}
	return duplicates
}

// WaitForPort polls until portName appears or timeout expires
func (pw *PipeWire) WaitForPort(ctx context.Context, portName string, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		if err := pw.ValidatePort(ctx, portName); err == nil {
			pw.logger.Debug("JACK port found", "port", portName)
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("timeout waiting for JACK port: %s", portName)
		case <-ticker.C:
		}
	}
}

// ConnectPortsWithRetry connects two JACK ports, waiting longer for application ports
func (pw *PipeWire) ConnectPortsWithRetry(ctx context.Context, sourcePort, destPort string) error {
	maxRetries := 5
	retryDelay := 500 * time.Millisecond
	if isEphemeralPort(sourcePort) {
		// Browsers and streaming apps may take longer to appear
		maxRetries = 15
		retryDelay = 1 * time.Second
	}
	pw.logger.Debug("Connecting ports", "source", sourcePort, "dest", destPort, "retries", maxRetries)

	for attempt := 1; attempt <= maxRetries; attempt++ {
		err := pw.connectPorts(ctx, sourcePort, destPort)
		if err == nil {
			pw.logger.Debug("Successfully connected ports", "source", sourcePort, "dest", destPort, "attempt", attempt)
			return nil
		}
		pw.logger.Debug("Connection attempt failed", "source", sourcePort, "dest", destPort, "attempt", attempt, "error", err)

		if attempt < maxRetries {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(retryDelay):
			}
		}
	}

	return fmt.Errorf("failed to connect %s to %s after %d attempts", sourcePort, destPort, maxRetries)
}

func (pw *PipeWire) connectPorts(ctx context.Context, sourcePort, destPort string) error {
	output, err := exec.CommandContext(ctx, "pw-link", sourcePort, destPort).CombinedOutput()
	if err != nil {
		return fmt.Errorf("failed to connect ports: %w (output: %s)", err, strings.TrimSpace(string(output)))
	}
	return nil
}

// DisconnectPorts disconnects two JACK ports
func (pw *PipeWire) DisconnectPorts(ctx context.Context, sourcePort, destPort string) error {
	output, err := exec.CommandContext(ctx, "pw-link", "-d", sourcePort, destPort).CombinedOutput()
	if err != nil {
		return fmt.Errorf("failed to disconnect ports: %w (output: %s)", err, strings.TrimSpace(string(output)))
	}

	pw.logger.Debug("Disconnected ports successfully", "source", sourcePort, "dest", destPort)
	return nil
}

// isEphemeralPort determines if a port belongs to an application that may appear late
func isEphemeralPort(portName string) bool {
	lowerPort := strings.ToLower(portName)

	ephemeralApps := []string{
		"chrome", "firefox", "spotify", "discord", "steam",
		"vlc", "mpv", "zoom", "teams", "slack", "wire",
	}

	for _, app := range ephemeralApps {
		if strings.Contains(lowerPort, app) {
			return true
		}
	}
	return false
}
