// Package state holds the user-editable machine state that is saved with a session.
package state

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"gopkg.in/yaml.v3"
)

// DefaultText is the name prefix of a fresh machine
const DefaultText = "EasyRec"

// invalidFileNameChars are rejected by at least one supported filesystem
const invalidFileNameChars = `"<>|:*?\/`

// MachineState is persisted between sessions
type MachineState struct {
	Text string `yaml:"text"`
}

// New returns the state of a fresh machine
func New() *MachineState {
	return &MachineState{Text: DefaultText}
}

// SetText stores text with invalid file name characters replaced
func (s *MachineState) SetText(text string) {
	s.Text = Sanitize(text)
}

// Sanitize replaces characters that cannot appear in a file name with '_'
func Sanitize(text string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsControl(r) || strings.ContainsRune(invalidFileNameChars, r) {
			return '_'
		}
		return r
	}, text)
}

// Load reads the state file. A missing file yields the default state.
func Load(path string) (*MachineState, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return New(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read state file %s: %w", path, err)
	}

	s := New()
	if err := yaml.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("failed to parse state file %s: %w", path, err)
	}
	s.SetText(s.Text)
	return s, nil
}

// Save writes the state file, creating its directory
func (s *MachineState) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}

	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write state file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to replace state file: %w", err)
	}
	return nil
}
