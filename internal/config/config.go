package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

const (
	InputBackendWAV      = "wav"
	InputBackendPipeWire = "pipewire"

	// MaxWavetableSlot is the highest 1-based slot a profile may target
	MaxWavetableSlot = 200
)

type DefinitionsConfig struct {
	Nodes []NodeDefinition `mapstructure:"nodes" yaml:"nodes"`
}

// NodeDefinition describes a processing node of the host graph
type NodeDefinition struct {
	ID      string `mapstructure:"id" yaml:"id"`
	Name    string `mapstructure:"name" yaml:"name"`
	Latency int    `mapstructure:"latency" yaml:"latency"`
}

// NodeReference places a defined node in a profile's graph
type NodeReference struct {
	Ref             string `mapstructure:"ref" yaml:"ref"`
	OverrideLatency *int   `mapstructure:"override_latency,omitempty" yaml:"override_latency,omitempty"`
	Bypassed        bool   `mapstructure:"bypassed" yaml:"bypassed"`
}

type RootConfig struct {
	ActiveConfig string                    `mapstructure:"active_config" yaml:"active_config"`
	Host         *HostSection              `mapstructure:"host,omitempty" yaml:"host,omitempty"`
	Input        *InputConfig              `mapstructure:"input,omitempty" yaml:"input,omitempty"`
	Wavetable    *WavetableConfig          `mapstructure:"wavetable,omitempty" yaml:"wavetable,omitempty"`
	Export       *ExportConfig             `mapstructure:"export,omitempty" yaml:"export,omitempty"`
	State        *StateConfig              `mapstructure:"state,omitempty" yaml:"state,omitempty"`
	Definitions  *DefinitionsConfig        `mapstructure:"definitions,omitempty" yaml:"definitions,omitempty"`
	Configs      map[string]*ConfigProfile `mapstructure:"configs" yaml:"configs"`
}

// Config is a resolved profile with the global sections applied
type Config struct {
	Profile   string          `mapstructure:"-" yaml:"profile"`
	Host      HostConfig      `mapstructure:"host" yaml:"host"`
	Input     InputConfig     `mapstructure:"input" yaml:"input"`
	Wavetable WavetableConfig `mapstructure:"wavetable" yaml:"wavetable"`
	Export    ExportConfig    `mapstructure:"export" yaml:"export"`
	State     StateConfig     `mapstructure:"state" yaml:"state"`
	Record    RecordConfig    `mapstructure:"record" yaml:"record"`
	Nodes     []Node          `mapstructure:"nodes" yaml:"nodes"`

	// Internal field to track inheritance information for config show
	Inheritance *InheritanceInfo `mapstructure:"-" yaml:"-"`
}

type ConfigProfile struct {
	Host   HostOverrides   `mapstructure:"host" yaml:"host"`
	Record RecordOverrides `mapstructure:"record" yaml:"record"`
	Nodes  []NodeReference `mapstructure:"nodes" yaml:"nodes"`
}

type InheritanceInfo struct {
	Host struct {
		SampleRate string // "inherited" or "profile-specific"
		BlockSize  string
	}
	Record struct {
		AutoStop      string
		WavetableSlot string
		Overwrite     string
	}
	Nodes string
}

type HostConfig struct {
	SampleRate        int  `mapstructure:"sample_rate" yaml:"sample_rate"`
	DelayCompensation bool `mapstructure:"delay_compensation" yaml:"delay_compensation"`
	BPM               int  `mapstructure:"bpm" yaml:"bpm"`
	TicksPerBeat      int  `mapstructure:"ticks_per_beat" yaml:"ticks_per_beat"`
	BlockSize         int  `mapstructure:"block_size" yaml:"block_size"`
}

// HostSection is the global host block; unset fields keep the built-in defaults
type HostSection struct {
	SampleRate        int   `mapstructure:"sample_rate" yaml:"sample_rate"`
	DelayCompensation *bool `mapstructure:"delay_compensation,omitempty" yaml:"delay_compensation,omitempty"`
	BPM               int   `mapstructure:"bpm" yaml:"bpm"`
	TicksPerBeat      int   `mapstructure:"ticks_per_beat" yaml:"ticks_per_beat"`
	BlockSize         int   `mapstructure:"block_size" yaml:"block_size"`
}

// HostOverrides are the host settings a profile may replace
type HostOverrides struct {
	SampleRate int `mapstructure:"sample_rate" yaml:"sample_rate"`
	BlockSize  int `mapstructure:"block_size" yaml:"block_size"`
}

type InputConfig struct {
	Backend string   `mapstructure:"backend" yaml:"backend"` // "wav", "pipewire"
	Sources []string `mapstructure:"sources" yaml:"sources"` // PipeWire ports: mono=[source], stereo=[left,right]
}

type WavetableConfig struct {
	Directory string `mapstructure:"directory" yaml:"directory"`
}

type ExportConfig struct {
	QueueSize int `mapstructure:"queue_size" yaml:"queue_size"`
}

type StateConfig struct {
	File string `mapstructure:"file" yaml:"file"`
}

// RecordConfig holds the initial recorder parameters
type RecordConfig struct {
	AutoStop      bool `mapstructure:"auto_stop" yaml:"auto_stop"`
	WavetableSlot int  `mapstructure:"wavetable_slot" yaml:"wavetable_slot"` // 1-based
	Overwrite     bool `mapstructure:"overwrite" yaml:"overwrite"`
}

// RecordOverrides leaves unset fields to the default profile
type RecordOverrides struct {
	AutoStop      *bool `mapstructure:"auto_stop,omitempty" yaml:"auto_stop,omitempty"`
	WavetableSlot int   `mapstructure:"wavetable_slot" yaml:"wavetable_slot"`
	Overwrite     *bool `mapstructure:"overwrite,omitempty" yaml:"overwrite,omitempty"`
}

// Node is a resolved graph node
type Node struct {
	Name            string `mapstructure:"name" yaml:"name"`
	Latency         int    `mapstructure:"latency" yaml:"latency"`
	OverrideLatency int    `mapstructure:"override_latency" yaml:"override_latency"` // -1 = unset
	Active          bool   `mapstructure:"active" yaml:"active"`
}

// NoLatencyOverride marks a node without override
const NoLatencyOverride = -1

var defaultConfig = Config{
	Host: HostConfig{
		SampleRate:        44100,
		DelayCompensation: true,
		BPM:               120,
		TicksPerBeat:      4,
		BlockSize:         256,
	},
	Input: InputConfig{
		Backend: InputBackendWAV,
	},
	Wavetable: WavetableConfig{
		Directory: filepath.Join(os.Getenv("HOME"), "Audio", "EasyRec", "wavetable"),
	},
	Export: ExportConfig{
		QueueSize: 4,
	},
	State: StateConfig{
		File: filepath.Join(os.Getenv("HOME"), ".config", "easyrec", "state.yaml"),
	},
	Record: RecordConfig{
		AutoStop:      true,
		WavetableSlot: 1,
		Overwrite:     true,
	},
}

// DefaultConfigPath returns the config file used when --config is not given
func DefaultConfigPath() string {
	return os.ExpandEnv("$HOME/.config/easyrec.yaml")
}

// Default returns the built-in configuration used without a config file
func Default() *Config {
	c := defaultConfig
	c.Profile = "default"
	c.Input.Sources = append([]string(nil), defaultConfig.Input.Sources...)
	return &c
}

func LoadWithProfile(configFile, profile string) (*Config, error) {
	if configFile == "" {
		return nil, fmt.Errorf("no config file specified, use --config flag")
	}

	// Validate configuration format first
	rootConfig, err := ValidateConfigurationFormat(configFile)
	if err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	// Determine which config to use
	configName := profile
	if configName == "" {
		configName = rootConfig.ActiveConfig
	}
	if configName == "" {
		configName = "default"
	}

	selectedProfile, exists := rootConfig.Configs[configName]
	if !exists {
		return nil, fmt.Errorf("configuration profile '%s' not found", configName)
	}
	if selectedProfile == nil {
		selectedProfile = &ConfigProfile{}
	}

	// Built-in defaults form the base of every profile
	base := Default()
	applyGlobals(base, rootConfig)

	selectedConfig, err := convertProfileToConfig(selectedProfile, rootConfig.Definitions)
	if err != nil {
		return nil, fmt.Errorf("error resolving configuration profile '%s': %w", configName, err)
	}

	// Merge with default profile if it exists and we're not already using default
	if configName != "default" {
		if defaultProfile, exists := rootConfig.Configs["default"]; exists && defaultProfile != nil {
			defaultResolved, err := convertProfileToConfig(defaultProfile, rootConfig.Definitions)
			if err != nil {
				return nil, fmt.Errorf("error resolving default configuration: %w", err)
			}
			base = mergeConfigs(base, defaultResolved, defaultProfile)
		}
	}
	selectedConfig = mergeConfigs(base, selectedConfig, selectedProfile)
	selectedConfig.Profile = configName

	selectedConfig.Wavetable.Directory = expandPath(selectedConfig.Wavetable.Directory)
	selectedConfig.State.File = expandPath(selectedConfig.State.File)

	if err := validateResolved(selectedConfig); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return selectedConfig, nil
}

// applyGlobals copies the non-profile sections over the built-in defaults
func applyGlobals(c *Config, root *RootConfig) {
	if root.Host != nil {
		if root.Host.SampleRate != 0 {
			c.Host.SampleRate = root.Host.SampleRate
		}
		if root.Host.BPM != 0 {
			c.Host.BPM = root.Host.BPM
		}
		if root.Host.TicksPerBeat != 0 {
			c.Host.TicksPerBeat = root.Host.TicksPerBeat
		}
		if root.Host.BlockSize != 0 {
			c.Host.BlockSize = root.Host.BlockSize
		}
		if root.Host.DelayCompensation != nil {
			c.Host.DelayCompensation = *root.Host.DelayCompensation
		}
	}
	if root.Input != nil {
		if root.Input.Backend != "" {
			c.Input.Backend = strings.ToLower(root.Input.Backend)
		}
		if len(root.Input.Sources) > 0 {
			c.Input.Sources = root.Input.Sources
		}
	}
	if root.Wavetable != nil && root.Wavetable.Directory != "" {
		c.Wavetable.Directory = root.Wavetable.Directory
	}
	if root.Export != nil && root.Export.QueueSize != 0 {
		c.Export.QueueSize = root.Export.QueueSize
	}
	if root.State != nil && root.State.File != "" {
		c.State.File = root.State.File
	}
}

// UpdateActiveConfig updates the active_config field in the config file
func UpdateActiveConfig(configFile, newActiveConfig string) error {
	if configFile == "" {
		return fmt.Errorf("no config file specified")
	}

	// Create a new viper instance to avoid interfering with the global one
	v := viper.New()
	v.SetConfigFile(configFile)

	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("error reading config file %s: %w", configFile, err)
	}

	v.Set("active_config", newActiveConfig)

	if err := v.WriteConfig(); err != nil {
		return fmt.Errorf("error writing config file %s: %w", configFile, err)
	}

	return nil
}

// convertProfileToConfig converts a ConfigProfile to Config by resolving node references.
// Record fields a profile leaves unset stay at their zero value; mergeConfigs
// consults the profile to tell them apart from explicit values.
func convertProfileToConfig(profile *ConfigProfile, definitions *DefinitionsConfig) (*Config, error) {
	if profile == nil {
		return nil, fmt.Errorf("profile cannot be nil")
	}

	config := &Config{
		Host: HostConfig{
			SampleRate: profile.Host.SampleRate,
			BlockSize:  profile.Host.BlockSize,
		},
		Record: RecordConfig{
			WavetableSlot: profile.Record.WavetableSlot,
		},
	}
	if profile.Record.AutoStop != nil {
		config.Record.AutoStop = *profile.Record.AutoStop
	}
	if profile.Record.Overwrite != nil {
		config.Record.Overwrite = *profile.Record.Overwrite
	}

	for i, nodeRef := range profile.Nodes {
		if nodeRef.Ref == "" {
			return nil, fmt.Errorf("nodes[%d]: 'ref' is required", i)
		}

		definition := findNodeDefinition(definitions, nodeRef.Ref)
		if definition == nil {
			return nil, fmt.Errorf("nodes[%d]: reference '%s' not found in definitions", i, nodeRef.Ref)
		}

		node := Node{
			Name:            definition.Name,
			Latency:         definition.Latency,
			OverrideLatency: NoLatencyOverride,
			Active:          !nodeRef.Bypassed,
		}
		if node.Name == "" {
			node.Name = definition.ID
		}
		if nodeRef.OverrideLatency != nil {
			node.OverrideLatency = *nodeRef.OverrideLatency
		}

		config.Nodes = append(config.Nodes, node)
	}

	return config, nil
}

func findNodeDefinition(definitions *DefinitionsConfig, id string) *NodeDefinition {
	if definitions == nil {
		return nil
	}
	for i := range definitions.Nodes {
		if definitions.Nodes[i].ID == id {
			return &definitions.Nodes[i]
		}
	}
	return nil
}

// mergeConfigs implements the "Selection & Fallback" inheritance model:
// - Nodes: a profile listing nodes replaces the base graph, otherwise the base graph is kept
// - Record and host settings: use the profile value or fall back to base
// The raw profile tells explicit booleans apart from unset ones.
func mergeConfigs(base, profile *Config, raw *ConfigProfile) *Config {
	result := &Config{Inheritance: &InheritanceInfo{}}

	if base != nil {
		result.Profile = base.Profile
		result.Host = base.Host
		result.Input = base.Input
		result.Wavetable = base.Wavetable
		result.Export = base.Export
		result.State = base.State
		result.Record = base.Record
		result.Nodes = append([]Node(nil), base.Nodes...)

		// Mark as inherited by default
		result.Inheritance.Host.SampleRate = "inherited"
		result.Inheritance.Host.BlockSize = "inherited"
		result.Inheritance.Record.AutoStop = "inherited"
		result.Inheritance.Record.WavetableSlot = "inherited"
		result.Inheritance.Record.Overwrite = "inherited"
		result.Inheritance.Nodes = "inherited"
	}

	if profile == nil {
		return result
	}

	if profile.Host.SampleRate != 0 {
		result.Host.SampleRate = profile.Host.SampleRate
		result.Inheritance.Host.SampleRate = "profile-specific"
	}
	if profile.Host.BlockSize != 0 {
		result.Host.BlockSize = profile.Host.BlockSize
		result.Inheritance.Host.BlockSize = "profile-specific"
	}

	if profile.Record.WavetableSlot != 0 {
		result.Record.WavetableSlot = profile.Record.WavetableSlot
		result.Inheritance.Record.WavetableSlot = "profile-specific"
	}
	if raw == nil || raw.Record.AutoStop != nil {
		result.Record.AutoStop = profile.Record.AutoStop
		result.Inheritance.Record.AutoStop = "profile-specific"
	}
	if raw == nil || raw.Record.Overwrite != nil {
		result.Record.Overwrite = profile.Record.Overwrite
		result.Inheritance.Record.Overwrite = "profile-specific"
	}

	if len(profile.Nodes) > 0 {
		result.Nodes = append([]Node(nil), profile.Nodes...)
		result.Inheritance.Nodes = "profile-specific"
	}

	return result
}

func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		homeDir, _ := os.UserHomeDir()
		return filepath.Join(homeDir, path[2:])
	}
	return path
}

// isValidAudioSource checks if a source name is valid for JACK/PipeWire
func isValidAudioSource(source string) bool {
	source = strings.TrimSpace(source)

	// Empty or disabled sources are handled elsewhere
	if source == "" || source == "disabled" {
		return true
	}

	if strings.Contains(source, ":") {
		// Device names may contain colons themselves, so the port is after the last one
		lastColonIndex := strings.LastIndex(source, ":")
		deviceName := strings.TrimSpace(source[:lastColonIndex])
		port := strings.TrimSpace(source[lastColonIndex+1:])

		return len(deviceName) > 0 && len(port) > 0
	}

	// Device name without colon (not recommended for JACK/PipeWire)
	return len(source) > 0
}

// validateResolved checks the merged configuration
func validateResolved(config *Config) error {
	if config.Host.SampleRate <= 0 {
		return fmt.Errorf("host.sample_rate must be > 0, got: %d", config.Host.SampleRate)
	}
	if config.Host.BPM <= 0 {
		return fmt.Errorf("host.bpm must be > 0, got: %d", config.Host.BPM)
	}
	if config.Host.TicksPerBeat <= 0 {
		return fmt.Errorf("host.ticks_per_beat must be > 0, got: %d", config.Host.TicksPerBeat)
	}
	if config.Host.BlockSize <= 0 {
		return fmt.Errorf("host.block_size must be > 0, got: %d", config.Host.BlockSize)
	}
	if config.Export.QueueSize <= 0 {
		return fmt.Errorf("export.queue_size must be > 0, got: %d", config.Export.QueueSize)
	}
	if config.Record.WavetableSlot < 1 || config.Record.WavetableSlot > MaxWavetableSlot {
		return fmt.Errorf("record.wavetable_slot must be between 1 and %d, got: %d", MaxWavetableSlot, config.Record.WavetableSlot)
	}
	return validateInput(config.Input)
}

// validateInput ensures the input backend is known and its sources are valid PipeWire ports
func validateInput(input InputConfig) error {
	switch input.Backend {
	case InputBackendWAV:
		return nil
	case InputBackendPipeWire:
	default:
		return fmt.Errorf("input.backend must be '%s' or '%s', got: %s", InputBackendWAV, InputBackendPipeWire, input.Backend)
	}

	if len(input.Sources) == 0 || len(input.Sources) > 2 {
		return fmt.Errorf("input.sources must have 1 (mono) or 2 (stereo) sources, got %d", len(input.Sources))
	}
	for j, source := range input.Sources {
		if source == "" || source == "disabled" || !isValidAudioSource(source) {
			return fmt.Errorf("input.sources[%d] must be a valid audio source (JACK port), got: %q", j, source)
		}
	}
	return nil
}

// ValidateConfigurationFormat validates the configuration file format and returns parsed config
func ValidateConfigurationFormat(configFile string) (*RootConfig, error) {
	v := viper.New()
	v.SetConfigFile(configFile)

	// Set environment variable prefix
	v.SetEnvPrefix("EASYREC")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file %s: %w", configFile, err)
	}

	var rootConfig RootConfig
	if err := v.Unmarshal(&rootConfig); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if len(rootConfig.Configs) == 0 {
		return nil, fmt.Errorf("configs section is required")
	}

	if err := validateDefinitions(rootConfig.Definitions); err != nil {
		return nil, fmt.Errorf("invalid definitions: %w", err)
	}

	for configName, configProfile := range rootConfig.Configs {
		if configProfile == nil {
			continue
		}
		if err := validateProfile(configProfile, rootConfig.Definitions); err != nil {
			return nil, fmt.Errorf("invalid config '%s': %w", configName, err)
		}
	}

	return &rootConfig, nil
}

// validateDefinitions validates the optional definitions section
func validateDefinitions(definitions *DefinitionsConfig) error {
	if definitions == nil {
		return nil
	}

	seenIDs := make(map[string]bool)
	for i, def := range definitions.Nodes {
		prefix := fmt.Sprintf("definitions.nodes[%d]", i)
		if def.ID == "" {
			return fmt.Errorf("%s: 'id' is required", prefix)
		}
		if seenIDs[def.ID] {
			return fmt.Errorf("%s: duplicate ID '%s'", prefix, def.ID)
		}
		seenIDs[def.ID] = true

		if def.Latency < 0 {
			return fmt.Errorf("%s: 'latency' must be >= 0, got: %d", prefix, def.Latency)
		}
	}

	return nil
}

// validateProfile validates record overrides and node references of a profile
func validateProfile(profile *ConfigProfile, definitions *DefinitionsConfig) error {
	slot := profile.Record.WavetableSlot
	if slot != 0 && (slot < 1 || slot > MaxWavetableSlot) {
		return fmt.Errorf("record.wavetable_slot must be between 1 and %d, got %d", MaxWavetableSlot, slot)
	}
	if profile.Host.SampleRate < 0 {
		return fmt.Errorf("host.sample_rate must be >= 0, got %d", profile.Host.SampleRate)
	}
	if profile.Host.BlockSize < 0 {
		return fmt.Errorf("host.block_size must be >= 0, got %d", profile.Host.BlockSize)
	}

	for i, nodeRef := range profile.Nodes {
		prefix := fmt.Sprintf("nodes[%d]", i)

		if nodeRef.Ref == "" {
			return fmt.Errorf("%s: 'ref' is required", prefix)
		}
		if findNodeDefinition(definitions, nodeRef.Ref) == nil {
			return fmt.Errorf("%s: references undefined node definition '%s'", prefix, nodeRef.Ref)
		}
		if nodeRef.OverrideLatency != nil && *nodeRef.OverrideLatency < 0 {
			return fmt.Errorf("%s: override_latency must be >= 0, got %d", prefix, *nodeRef.OverrideLatency)
		}
	}

	return nil
}
