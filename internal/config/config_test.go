package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chriserin/ftrp/internal/correlator"
	"github.com/chriserin/ftrp/internal/reporting"
)

func load(t *testing.T, values map[string]interface{}) (*Config, error) {
	t.Helper()
	v := viper.New()
	SetDefaults(v)
	for k, val := range values {
		v.Set(k, val)
	}
	return New(v)
}

func TestNew_Defaults(t *testing.T) {
	cfg, err := load(t, nil)
	require.NoError(t, err)

	assert.Equal(t, "ftrp", cfg.Launch.Name)
	assert.Nil(t, cfg.Launch.SkippedIssue)
	assert.Equal(t, correlator.StepShape{}, cfg.Shape())
	assert.Equal(t, 10, cfg.Reporting.IOPoolSize)
	assert.Equal(t, ".ftrp/ftrp.db", cfg.Store.Path)
	assert.Equal(t, "console", cfg.Log.Format)
}

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name    string
		values  map[string]interface{}
		wantErr string
	}{
		{"empty name", map[string]interface{}{"launch.name": " "}, "launch.name is required"},
		{"bad mode", map[string]interface{}{"launch.mode": "LOUD"}, "launch.mode"},
		{"bad shape", map[string]interface{}{"reporting.shape": "tree"}, "reporting.shape"},
		{"zero pool", map[string]interface{}{"reporting.io_pool_size": 0}, "io_pool_size"},
		{"bad log format", map[string]interface{}{"log.format": "xml"}, "log.format"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := load(t, tt.values)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLaunchRequest(t *testing.T) {
	cfg, err := load(t, map[string]interface{}{
		"launch.name":          "nightly",
		"launch.mode":          "debug",
		"launch.attributes":    "team:core;smoke",
		"launch.rerun":         true,
		"launch.rerun_of":      "abc",
		"launch.skipped_issue": false,
		"reporting.shape":      "scenario",
	})
	require.NoError(t, err)
	assert.Equal(t, correlator.ScenarioShape{}, cfg.Shape())

	rq := cfg.LaunchRequest("1.0.0")
	assert.Equal(t, "nightly", rq.Name)
	assert.Equal(t, reporting.ModeDebug, rq.Mode)
	assert.True(t, rq.Rerun)
	assert.Equal(t, "abc", rq.RerunOf)
	assert.Equal(t, reporting.Attribute{Key: "team", Value: "core"}, rq.Attributes[0])
	assert.Equal(t, reporting.Attribute{Value: "smoke"}, rq.Attributes[1])
	assert.Contains(t, rq.Attributes, reporting.Attribute{Key: "skippedIssue", Value: "false", System: true})
}

func TestNewViper_FileAndEnv(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "ftrp.yaml")
	require.NoError(t, os.WriteFile(file, []byte("launch:\n  name: from-file\nreporting:\n  shape: scenario\n"), 0o644))
	t.Setenv("FTRP_REPORTING_SHAPE", "step")

	v, err := NewViper(file)
	require.NoError(t, err)
	cfg, err := New(v)
	require.NoError(t, err)

	assert.Equal(t, "from-file", cfg.Launch.Name)
	assert.Equal(t, "step", cfg.Reporting.Shape, "environment wins over file")
}

func TestNewViper_MissingExplicitFile(t *testing.T) {
	_, err := NewViper(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
