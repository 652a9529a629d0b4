package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Azure/azure-cli-sub020/internal/engine"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "https://management.azure.com", cfg.Endpoint)
	assert.Equal(t, "2021-04-01", cfg.APIVersion)
	assert.Equal(t, AuthNone, cfg.Auth)
	assert.Empty(t, cfg.Database)

	assert.Equal(t, time.Hour, cfg.Wait.Timeout)
	assert.Equal(t, 30*time.Second, cfg.Wait.Interval)
	assert.Equal(t, 60*time.Second, cfg.Wait.MaxInterval)
	assert.Equal(t, 1.5, cfg.Wait.Multiplier)
	assert.Equal(t, 0.2, cfg.Wait.Jitter)
	assert.Zero(t, cfg.Wait.MaxPolls)
	assert.Equal(t, 60*time.Second, cfg.Wait.FetchTimeout)
	assert.Equal(t, 3, cfg.Wait.MaxRetries)

	assert.Equal(t, engine.DefaultStatusPaths, cfg.Status.Paths)
	assert.Equal(t, engine.DefaultSucceeded, cfg.Status.Succeeded)
	assert.Equal(t, engine.DefaultInProgress, cfg.Status.InProgress)
	assert.Equal(t, engine.DefaultFailed, cfg.Status.Failed)
}

func TestDefault_MatchesEngineDefaults(t *testing.T) {
	opts, err := Default().EngineOptions()
	require.NoError(t, err)

	want := engine.DefaultOptions()
	assert.Equal(t, want.Timeout, opts.Timeout)
	assert.Equal(t, want.Backoff, opts.Backoff)
	assert.Equal(t, want.FetchTimeout, opts.FetchTimeout)
	assert.Equal(t, want.MaxPolls, opts.MaxPolls)
	assert.Len(t, opts.Conventions.StatusPaths, len(engine.DefaultStatusPaths))
}

func TestLoad_CUEFile(t *testing.T) {
	cfg, err := Load(filepath.Join("testdata", "azwait.cue"))
	require.NoError(t, err)

	assert.Equal(t, "https://management.usgovcloudapi.net", cfg.Endpoint)
	assert.Equal(t, "2022-09-01", cfg.APIVersion)
	assert.Equal(t, AuthCLI, cfg.Auth)
	assert.Equal(t, 2*time.Hour, cfg.Wait.Timeout)
	assert.Equal(t, 15*time.Second, cfg.Wait.Interval)
	assert.Zero(t, cfg.Wait.Jitter)
	// Untouched fields keep their defaults.
	assert.Equal(t, 60*time.Second, cfg.Wait.MaxInterval)
	assert.Equal(t, []string{"Failed", "Canceled", "Deprovisioned"}, cfg.Status.Failed)
	assert.Equal(t, []string{"Succeeded"}, cfg.Status.Succeeded)
}

func TestParse_JSON(t *testing.T) {
	cfg, err := Parse("cfg.json", []byte(`{"wait": {"interval": 0.5, "max_polls": 20}}`))
	require.NoError(t, err)

	assert.Equal(t, 500*time.Millisecond, cfg.Wait.Interval)
	assert.Equal(t, 20, cfg.Wait.MaxPolls)
}

func TestLoad_UnknownFieldHasPosition(t *testing.T) {
	_, err := Load(filepath.Join("testdata", "unknown_field.json"))
	require.Error(t, err)

	var ce *ConfigError
	require.ErrorAs(t, err, &ce)
	assert.Contains(t, ce.Message, "not allowed")
	require.True(t, ce.Pos.IsValid())
	assert.Contains(t, ce.Pos.Filename(), "unknown_field.json")
	assert.Equal(t, 3, ce.Pos.Line())
}

func TestParse_NestedErrorPointsAtField(t *testing.T) {
	src := "wait: {\n\tinterval: 5\n\tintervall: 10\n\ttimeout: -3\n}\n"

	_, err := Parse("nested.cue", []byte(src))
	require.Error(t, err)

	var ce *ConfigError
	require.ErrorAs(t, err, &ce)
	require.True(t, ce.Pos.IsValid())
	assert.Equal(t, "nested.cue", ce.Pos.Filename())
	assert.Greater(t, ce.Pos.Line(), 1)
	assert.True(t, strings.HasPrefix(ce.Field, "wait."), ce.Field)
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{"jitter out of range", `wait: jitter: 1.5`},
		{"negative timeout", `wait: timeout: -1`},
		{"zero interval", `wait: interval: 0`},
		{"multiplier below one", `wait: multiplier: 0.5`},
		{"bad endpoint", `endpoint: "management.azure.com"`},
		{"bad auth", `auth: "password"`},
		{"empty api version", `api_version: ""`},
		{"empty succeeded", `status: succeeded: []`},
		{"syntax", `wait: {`},
		{"wrong type", `wait: max_polls: "ten"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse("bad.cue", []byte(tt.src))
			require.Error(t, err)

			var ce *ConfigError
			assert.ErrorAs(t, err, &ce)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.cue"))

	var ce *ConfigError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "file", ce.Field)
}

func TestLoad_EmptyPathIsDefault(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestEngineOptions(t *testing.T) {
	cfg, err := Parse("", []byte(`
		wait: {timeout: 0, interval: 2, max_interval: 8, multiplier: 2, jitter: 0.1, max_polls: 5, fetch_timeout: 10}
		status: {paths: ["properties.state"], succeeded: ["Ready"], in_progress: [], failed: ["Broken"]}
	`))
	require.NoError(t, err)

	opts, err := cfg.EngineOptions()
	require.NoError(t, err)

	assert.Zero(t, opts.Timeout)
	assert.Equal(t, engine.BackoffPolicy{
		Interval:    2 * time.Second,
		MaxInterval: 8 * time.Second,
		Multiplier:  2,
		Jitter:      0.1,
	}, opts.Backoff)
	assert.Equal(t, 5, opts.MaxPolls)
	assert.Equal(t, 10*time.Second, opts.FetchTimeout)
	assert.Equal(t, engine.StatusSucceeded, opts.Conventions.Classify("READY"))
	assert.Equal(t, engine.StatusFailed, opts.Conventions.Classify("Broken"))
}

func TestEngineOptions_InvalidStatusPath(t *testing.T) {
	cfg := Default()
	cfg.Status.Paths = []string{"properties.["}

	_, err := cfg.EngineOptions()
	var ce *ConfigError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "status", ce.Field)
}

func TestDatabasePath(t *testing.T) {
	cfg := Default()
	cfg.Database = "/tmp/journal.db"
	p, err := cfg.DatabasePath()
	require.NoError(t, err)
	assert.Equal(t, "/tmp/journal.db", p)

	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("HOME", t.TempDir())
	cfg.Database = ""
	p, err = cfg.DatabasePath()
	require.NoError(t, err)
	assert.Equal(t, "journal.db", filepath.Base(p))
	assert.Equal(t, "azwait", filepath.Base(filepath.Dir(p)))
}

func TestConfigErrorFormat(t *testing.T) {
	err := &ConfigError{Field: "wait.jitter", Message: "out of range"}
	assert.Equal(t, "wait.jitter: out of range", err.Error())
}

func TestSchemaIsEmbedded(t *testing.T) {
	onDisk, err := os.ReadFile("schema.cue")
	require.NoError(t, err)
	assert.Equal(t, onDisk, schemaCUE)
}
