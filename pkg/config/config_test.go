// pkg/config/config_test.go
package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opd-ai/go-lakefleet/pkg/geom"
)

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()
	require.NotNil(t, config)

	require.NoError(t, config.Validate())
	assert.Equal(t, 100*time.Millisecond, config.Fleet.SpawnDelayMin.Std())
	assert.Equal(t, 500*time.Millisecond, config.Fleet.SpawnDelayMax.Std())
	assert.True(t, config.Scheduler.BroadPhase)
	assert.Empty(t, config.Region.Vertices, "default region is a random lake")
	assert.Equal(t, 1.0/60.0, config.TimeStep())
	assert.Equal(t, 600, config.Server.RateLimit)
}

func TestLoadConfig_Success(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "test_config.json")

	want := DefaultConfig()
	want.Fleet.MinAgents = 5
	want.Fleet.MaxAgents = 12
	want.Fleet.SpawnDelayMax = Duration(2 * time.Second)
	want.Region.Vertices = []geom.Vector2D{{X: -5, Y: 0}, {X: 0, Y: 4}, {X: 5, Y: 0}, {X: 0, Y: -4}}
	want.Scheduler.BroadPhase = false
	want.Server.ListenAddr = ":9090"
	want.Server.RateLimit = 0

	require.NoError(t, SaveConfig(want, configPath))

	got, err := LoadConfig(configPath)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestLoadConfig_PartialFileKeepsDefaults(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "partial.json")
	partial := `{"fleet": {"minAgents": 1, "maxAgents": 2, "speedMin": 1, "speedMax": 1, "agentWidth": 0.5,
		"spawnDelayMin": "0s", "spawnDelayMax": "1s", "minTrajectoryLength": 1, "trajectoryAttempts": 3}}`
	require.NoError(t, os.WriteFile(configPath, []byte(partial), 0o644))

	config, err := LoadConfig(configPath)
	require.NoError(t, err)

	assert.Equal(t, 2, config.Fleet.MaxAgents)
	assert.Equal(t, time.Second, config.Fleet.SpawnDelayMax.Std())
	assert.Equal(t, DefaultConfig().Simulation, config.Simulation)
	assert.Equal(t, DefaultConfig().Server, config.Server)
}

func TestLoadConfig_Errors(t *testing.T) {
	tempDir := t.TempDir()
	invalidPath := filepath.Join(tempDir, "invalid.json")
	require.NoError(t, os.WriteFile(invalidPath, []byte(`{"fleet": invalid}`), 0o644))
	badDurationPath := filepath.Join(tempDir, "duration.json")
	require.NoError(t, os.WriteFile(badDurationPath, []byte(`{"server": {"readTimeout": "soon"}}`), 0o644))

	tests := []struct {
		name     string
		path     string
		expected string
	}{
		{"missing file", filepath.Join(tempDir, "missing.json"), "failed to read config file"},
		{"invalid json", invalidPath, "failed to parse config file"},
		{"invalid duration", badDurationPath, "invalid duration"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config, err := LoadConfig(tt.path)
			require.Error(t, err)
			assert.Nil(t, config)
			assert.Contains(t, err.Error(), tt.expected)
		})
	}
}

func TestSaveConfig_InvalidPath(t *testing.T) {
	err := SaveConfig(DefaultConfig(), filepath.Join(t.TempDir(), "missing", "dir", "config.json"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to write config file")
}

func TestDuration_JSON(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected time.Duration
	}{
		{"string", `"250ms"`, 250 * time.Millisecond},
		{"compound", `"1m30s"`, 90 * time.Second},
		{"nanoseconds", `1000`, time.Microsecond},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var d Duration
			require.NoError(t, json.Unmarshal([]byte(tt.input), &d))
			assert.Equal(t, tt.expected, d.Std())
		})
	}

	data, err := json.Marshal(Duration(1500 * time.Millisecond))
	require.NoError(t, err)
	assert.Equal(t, `"1.5s"`, string(data))

	var d Duration
	assert.Error(t, json.Unmarshal([]byte(`true`), &d), "boolean duration")
}
