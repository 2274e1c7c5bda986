package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mticknor/syncforge/pkg/syncforge/config"
)

func TestDefault(t *testing.T) {
	s := config.Default()

	assert.Equal(t, 30*time.Second, s.CheckInterval.Std())
	assert.Equal(t, 5*time.Second, s.ProbeTimeout.Std())
	assert.Equal(t, "1.1.1.1:53", s.DialAddress)
	assert.Equal(t, config.DefaultProbeURLs(), s.ProbeURLs)
	assert.Equal(t, 300*time.Second, s.FlushInterval.Std())
	assert.Equal(t, 100, s.BatchSize)
	assert.Equal(t, 3, s.MaxRetries)
	assert.Equal(t, "./data/sync_queue.json", s.QueuePath)
	assert.Equal(t, config.BackendFile, s.QueueBackend)
	assert.Equal(t, 5*time.Second, s.DeliveryTimeout.Std())
	require.NoError(t, s.Validate())
}

func TestApplyDefaults_ClampsCheckInterval(t *testing.T) {
	tests := []struct {
		name  string
		given time.Duration
		want  time.Duration
	}{
		{"below minimum", time.Second, 5 * time.Second},
		{"at minimum", 5 * time.Second, 5 * time.Second},
		{"in range", 45 * time.Second, 45 * time.Second},
		{"at maximum", 300 * time.Second, 300 * time.Second},
		{"above maximum", 600 * time.Second, 300 * time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := config.Settings{CheckInterval: config.Duration(tt.given)}
			s.ApplyDefaults()
			assert.Equal(t, tt.want, s.CheckInterval.Std())
		})
	}
}

func TestFromYAML(t *testing.T) {
	s, err := config.FromYAML([]byte(`
check_interval: 45s
probe_timeout: 2s
batch_size: 25
max_retries: 5
queue_backend: sqlite
queue_path: /var/lib/syncforge/queue.db
sync_url: https://sync.example.com
`))
	require.NoError(t, err)

	assert.Equal(t, 45*time.Second, s.CheckInterval.Std())
	assert.Equal(t, 2*time.Second, s.ProbeTimeout.Std())
	assert.Equal(t, 25, s.BatchSize)
	assert.Equal(t, 5, s.MaxRetries)
	assert.Equal(t, config.BackendSQLite, s.QueueBackend)
	assert.Equal(t, "https://sync.example.com", s.SyncURL)

	// Unset fields still get defaults.
	assert.Equal(t, 300*time.Second, s.FlushInterval.Std())
	assert.Equal(t, config.DefaultProbeURLs(), s.ProbeURLs)
}

func TestFromYAML_NumericSeconds(t *testing.T) {
	s, err := config.FromYAML([]byte("check_interval: 60\nflush_interval: 120\n"))
	require.NoError(t, err)
	assert.Equal(t, 60*time.Second, s.CheckInterval.Std())
	assert.Equal(t, 120*time.Second, s.FlushInterval.Std())
}

func TestFromYAML_BadDuration(t *testing.T) {
	_, err := config.FromYAML([]byte("check_interval: soon\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse duration")
}

func TestFromJSON(t *testing.T) {
	s, err := config.FromJSON([]byte(`{
		"check_interval": "10s",
		"flush_interval": 90,
		"probe_urls": ["https://probe.example.com"]
	}`))
	require.NoError(t, err)

	assert.Equal(t, 10*time.Second, s.CheckInterval.Std())
	assert.Equal(t, 90*time.Second, s.FlushInterval.Std())
	assert.Equal(t, []string{"https://probe.example.com"}, s.ProbeURLs)
}

func TestFromFile(t *testing.T) {
	dir := t.TempDir()

	yamlPath := filepath.Join(dir, "syncforge.yaml")
	require.NoError(t, os.WriteFile(yamlPath, []byte("batch_size: 7\n"), 0o644))
	s, err := config.FromFile(yamlPath)
	require.NoError(t, err)
	assert.Equal(t, 7, s.BatchSize)

	jsonPath := filepath.Join(dir, "syncforge.json")
	require.NoError(t, os.WriteFile(jsonPath, []byte(`{"batch_size": 9}`), 0o644))
	s, err = config.FromFile(jsonPath)
	require.NoError(t, err)
	assert.Equal(t, 9, s.BatchSize)

	tomlPath := filepath.Join(dir, "syncforge.toml")
	require.NoError(t, os.WriteFile(tomlPath, []byte("batch_size = 9"), 0o644))
	_, err = config.FromFile(tomlPath)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported config file extension")
}

func TestValidate(t *testing.T) {
	t.Run("unknown backend", func(t *testing.T) {
		_, err := config.FromYAML([]byte("queue_backend: redis\n"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unknown queue backend")
	})

	t.Run("empty probe url", func(t *testing.T) {
		_, err := config.FromYAML([]byte("probe_urls: [\"https://a.example.com\", \"\"]\n"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "empty URL")
	})

	t.Run("oversized probe timeout", func(t *testing.T) {
		_, err := config.FromYAML([]byte("probe_timeout: 60s\n"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "probe_timeout")
	})
}

func TestDuration_MarshalRoundtrip(t *testing.T) {
	d := config.Duration(90 * time.Second)
	out, err := d.MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, `"1m30s"`, string(out))

	var back config.Duration
	require.NoError(t, back.UnmarshalJSON(out))
	assert.Equal(t, d, back)
}
