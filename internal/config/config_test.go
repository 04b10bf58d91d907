package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func boolPtr(b bool) *bool { return &b }

func TestMergeConfigs_SelectionAndFallback(t *testing.T) {
	base := Default()
	base.Nodes = []Node{
		{Name: "reverb", Latency: 512, OverrideLatency: NoLatencyOverride, Active: true},
		{Name: "limiter", Latency: 64, OverrideLatency: NoLatencyOverride, Active: true},
	}

	raw := &ConfigProfile{
		Host:   HostOverrides{SampleRate: 48000},
		Record: RecordOverrides{WavetableSlot: 10, Overwrite: boolPtr(false)},
	}
	profile, err := convertProfileToConfig(raw, nil)
	if err != nil {
		t.Fatalf("convertProfileToConfig failed: %v", err)
	}

	result := mergeConfigs(base, profile, raw)

	if result.Host.SampleRate != 48000 {
		t.Errorf("Expected sample rate 48000, got %d", result.Host.SampleRate)
	}
	if result.Host.BlockSize != base.Host.BlockSize {
		t.Errorf("Expected inherited block size %d, got %d", base.Host.BlockSize, result.Host.BlockSize)
	}
	if result.Record.WavetableSlot != 10 {
		t.Errorf("Expected wavetable slot 10, got %d", result.Record.WavetableSlot)
	}
	if result.Record.Overwrite {
		t.Error("Expected overwrite false from profile")
	}
	if !result.Record.AutoStop {
		t.Error("Expected auto stop inherited as true")
	}

	// No nodes listed: the base graph is kept
	if len(result.Nodes) != 2 {
		t.Errorf("Expected 2 inherited nodes, got %d", len(result.Nodes))
	}

	info := result.Inheritance
	if info == nil {
		t.Fatal("Expected inheritance info")
	}
	if info.Host.SampleRate != "profile-specific" || info.Host.BlockSize != "inherited" {
		t.Errorf("Unexpected host inheritance: %+v", info.Host)
	}
	if info.Record.AutoStop != "inherited" || info.Record.Overwrite != "profile-specific" || info.Record.WavetableSlot != "profile-specific" {
		t.Errorf("Unexpected record inheritance: %+v", info.Record)
	}
	if info.Nodes != "inherited" {
		t.Errorf("Expected nodes inherited, got %s", info.Nodes)
	}
}

func TestMergeConfigs_ProfileNodesReplaceBase(t *testing.T) {
	base := Default()
	base.Nodes = []Node{{Name: "reverb", Latency: 512, OverrideLatency: NoLatencyOverride, Active: true}}

	profile := &Config{
		Nodes: []Node{{Name: "delay", Latency: 0, OverrideLatency: 256, Active: true}},
	}

	result := mergeConfigs(base, profile, &ConfigProfile{})

	if len(result.Nodes) != 1 || result.Nodes[0].Name != "delay" {
		t.Errorf("Expected only the profile node, got %+v", result.Nodes)
	}
	if result.Inheritance.Nodes != "profile-specific" {
		t.Errorf("Expected nodes profile-specific, got %s", result.Inheritance.Nodes)
	}
}

func TestMergeConfigs_NilProfile(t *testing.T) {
	base := Default()
	result := mergeConfigs(base, nil, nil)

	if result.Record != base.Record {
		t.Errorf("Expected base record settings, got %+v", result.Record)
	}
}

func TestConvertProfileToConfig_ResolvesNodes(t *testing.T) {
	definitions := &DefinitionsConfig{
		Nodes: []NodeDefinition{
			{ID: "verb", Name: "Reverb", Latency: 512},
			{ID: "lim", Latency: 64},
		},
	}
	override := 128
	profile := &ConfigProfile{
		Record: RecordOverrides{AutoStop: boolPtr(false)},
		Nodes: []NodeReference{
			{Ref: "verb", Bypassed: true},
			{Ref: "lim", OverrideLatency: &override},
		},
	}

	config, err := convertProfileToConfig(profile, definitions)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if len(config.Nodes) != 2 {
		t.Fatalf("Expected 2 nodes, got %d", len(config.Nodes))
	}
	verb := config.Nodes[0]
	if verb.Name != "Reverb" || verb.Active || verb.OverrideLatency != NoLatencyOverride || verb.Latency != 512 {
		t.Errorf("Reverb node incorrect: %+v", verb)
	}
	lim := config.Nodes[1]
	if lim.Name != "lim" || !lim.Active || lim.OverrideLatency != 128 {
		t.Errorf("Limiter node incorrect: %+v", lim)
	}
	if config.Record.AutoStop {
		t.Error("Expected auto stop false")
	}
}

func TestConvertProfileToConfig_MissingReference(t *testing.T) {
	profile := &ConfigProfile{Nodes: []NodeReference{{Ref: "missing"}}}

	_, err := convertProfileToConfig(profile, &DefinitionsConfig{})
	if err == nil {
		t.Fatal("Expected error for missing reference")
	}
	if !strings.Contains(err.Error(), "not found in definitions") {
		t.Errorf("Unexpected error: %v", err)
	}
}

func TestConvertProfileToConfig_NilProfile(t *testing.T) {
	if _, err := convertProfileToConfig(nil, nil); err == nil {
		t.Error("Expected error for nil profile")
	}
}

func TestExpandPath(t *testing.T) {
	homeDir, _ := os.UserHomeDir()

	tests := []struct {
		input    string
		expected string
	}{
		{"~/Audio/EasyRec", filepath.Join(homeDir, "Audio", "EasyRec")},
		{"/absolute/path", "/absolute/path"},
		{"relative/path", "relative/path"},
		{"~", "~"}, // Should not expand bare tilde
	}

	for _, test := range tests {
		result := expandPath(test.input)
		if result != test.expected {
			t.Errorf("expandPath(%q) = %q, expected %q", test.input, result, test.expected)
		}
	}
}

func TestIsValidAudioSource(t *testing.T) {
	tests := []struct {
		source string
		valid  bool
	}{
		{"system:capture_1", true},
		{"alsa_input.usb-Focusrite:capture_FL", true},
		{"Device: With: Colons:capture_1", true},
		{":capture_1", false},
		{"system:", false},
		{"plain-device", true},
		{"disabled", true},
	}

	for _, test := range tests {
		if got := isValidAudioSource(test.source); got != test.valid {
			t.Errorf("isValidAudioSource(%q) = %v, expected %v", test.source, got, test.valid)
		}
	}
}

func TestLoadWithProfile_GlobalsAndDefaultProfile(t *testing.T) {
	configContent := `
active_config: studio
host:
    sample_rate: 48000
    delay_compensation: false
    bpm: 126
    block_size: 128
input:
    backend: PipeWire
    sources: ["system:capture_1", "system:capture_2"]
wavetable:
    directory: /tmp/easyrec/wavetable
export:
    queue_size: 8
definitions:
    nodes:
        - id: reverb
          name: Reverb
          latency: 512
        - id: limiter
          latency: 64
configs:
    default:
        record:
            auto_stop: false
            wavetable_slot: 3
        nodes:
            - ref: reverb
    studio:
        record:
            wavetable_slot: 10
            overwrite: false
        nodes:
            - ref: limiter
              override_latency: 128
`
	configFile := createTempConfig(t, configContent)

	cfg, err := LoadWithProfile(configFile, "")
	if err != nil {
		t.Fatalf("Failed to load configuration: %v", err)
	}

	if cfg.Profile != "studio" {
		t.Errorf("Expected active profile 'studio', got '%s'", cfg.Profile)
	}
	if cfg.Host.SampleRate != 48000 || cfg.Host.BPM != 126 || cfg.Host.BlockSize != 128 {
		t.Errorf("Host globals not applied: %+v", cfg.Host)
	}
	if cfg.Host.TicksPerBeat != 4 {
		t.Errorf("Expected default ticks per beat 4, got %d", cfg.Host.TicksPerBeat)
	}
	if cfg.Host.DelayCompensation {
		t.Error("Expected delay compensation disabled")
	}
	if cfg.Input.Backend != InputBackendPipeWire || len(cfg.Input.Sources) != 2 {
		t.Errorf("Input not applied: %+v", cfg.Input)
	}
	if cfg.Wavetable.Directory != "/tmp/easyrec/wavetable" {
		t.Errorf("Expected wavetable directory from globals, got %s", cfg.Wavetable.Directory)
	}
	if cfg.Export.QueueSize != 8 {
		t.Errorf("Expected queue size 8, got %d", cfg.Export.QueueSize)
	}

	// auto_stop comes from the default profile, the rest from studio
	want := RecordConfig{AutoStop: false, WavetableSlot: 10, Overwrite: false}
	if cfg.Record != want {
		t.Errorf("Expected record %+v, got %+v", want, cfg.Record)
	}

	if len(cfg.Nodes) != 1 || cfg.Nodes[0].Name != "limiter" || cfg.Nodes[0].OverrideLatency != 128 {
		t.Errorf("Expected the studio graph, got %+v", cfg.Nodes)
	}
}

func TestLoadWithProfile_ExplicitProfileAndDefaults(t *testing.T) {
	configContent := `
active_config: studio
configs:
    default:
    studio:
        record:
            wavetable_slot: 10
`
	configFile := createTempConfig(t, configContent)

	cfg, err := LoadWithProfile(configFile, "default")
	if err != nil {
		t.Fatalf("Failed to load configuration: %v", err)
	}

	if cfg.Profile != "default" {
		t.Errorf("Expected profile 'default', got '%s'", cfg.Profile)
	}
	if cfg.Record != defaultConfig.Record {
		t.Errorf("Expected built-in record defaults, got %+v", cfg.Record)
	}
	if cfg.Host != defaultConfig.Host {
		t.Errorf("Expected built-in host defaults, got %+v", cfg.Host)
	}
	if cfg.Input.Backend != InputBackendWAV {
		t.Errorf("Expected wav input backend, got %s", cfg.Input.Backend)
	}
}

func TestLoadWithProfile_Errors(t *testing.T) {
	if _, err := LoadWithProfile("", ""); err == nil {
		t.Error("Expected error without config file")
	}

	configFile := createTempConfig(t, `
configs:
    default:
        record:
            wavetable_slot: 2
`)
	_, err := LoadWithProfile(configFile, "missing")
	if err == nil || !strings.Contains(err.Error(), "'missing' not found") {
		t.Errorf("Expected missing profile error, got: %v", err)
	}
}

func TestLoadWithProfile_PipeWireNeedsSources(t *testing.T) {
	configFile := createTempConfig(t, `
input:
    backend: pipewire
configs:
    default:
`)
	_, err := LoadWithProfile(configFile, "")
	if err == nil || !strings.Contains(err.Error(), "input.sources") {
		t.Errorf("Expected input sources error, got: %v", err)
	}
}

func TestUpdateActiveConfig(t *testing.T) {
	configFile := createTempConfig(t, `
active_config: default
configs:
    default:
    studio:
        record:
            wavetable_slot: 10
`)

	if err := UpdateActiveConfig(configFile, "studio"); err != nil {
		t.Fatalf("UpdateActiveConfig failed: %v", err)
	}

	cfg, err := LoadWithProfile(configFile, "")
	if err != nil {
		t.Fatalf("Failed to reload configuration: %v", err)
	}
	if cfg.Profile != "studio" || cfg.Record.WavetableSlot != 10 {
		t.Errorf("Expected studio profile after update, got %s slot %d", cfg.Profile, cfg.Record.WavetableSlot)
	}

	if err := UpdateActiveConfig("", "studio"); err == nil {
		t.Error("Expected error without config file")
	}
}
