package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	c := DefaultConfig()
	assert.True(t, c.GetCapture())
	assert.False(t, c.GetCaptureTee())
	assert.True(t, c.GetDescriptions())
	assert.Equal(t, 1, c.Verbosity)
	assert.Equal(t, "failure", c.Notify.On)
	assert.True(t, c.IsDefault())
}

func TestNilPointerGetters(t *testing.T) {
	c := &Config{}
	assert.True(t, c.GetCapture())
	assert.False(t, c.GetNoColor())
	assert.True(t, c.GetDescriptions())
}

func TestFindAndLoadConfig(t *testing.T) {
	t.Run("no file returns defaults", func(t *testing.T) {
		c, err := FindAndLoadConfig(t.TempDir())
		require.NoError(t, err)
		assert.True(t, c.IsDefault())
	})

	t.Run("yaml file", func(t *testing.T) {
		dir := t.TempDir()
		data := `
capture: false
verbosity: 2
reporters: [junit, tap]
durations: 5
notify:
  on: always
  slackWebhook: https://hooks.example/x
metrics:
  format: prometheus
`
		require.NoError(t, os.WriteFile(filepath.Join(dir, ".tally.yaml"), []byte(data), 0644))

		c, err := FindAndLoadConfig(dir)
		require.NoError(t, err)
		assert.False(t, c.GetCapture())
		assert.True(t, c.GetDescriptions(), "unset keys keep defaults")
		assert.Equal(t, 2, c.Verbosity)
		assert.Equal(t, []string{"junit", "tap"}, c.Reporters)
		assert.Equal(t, 5, c.Durations)
		assert.Equal(t, "always", c.Notify.On)
		assert.Equal(t, "https://hooks.example/x", c.Notify.SlackWebhook)
		assert.Equal(t, "prometheus", c.Metrics.Format)
		assert.False(t, c.IsDefault())
	})

	t.Run("invalid yaml", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "tally.yaml")
		require.NoError(t, os.WriteFile(path, []byte("capture: [oops"), 0644))
		_, err := LoadConfig(path)
		assert.Error(t, err)
	})

	t.Run("missing explicit path", func(t *testing.T) {
		_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
		assert.Error(t, err)
	})
}

func TestMerge(t *testing.T) {
	base := DefaultConfig()
	merged := base.Merge(&Config{
		CaptureTee: BoolPtr(true),
		Durations:  3,
		Reporters:  []string{"json"},
		Notify:     NotifyConfig{TeamsWebhook: "https://teams.example"},
	})

	assert.True(t, merged.GetCapture())
	assert.True(t, merged.GetCaptureTee())
	assert.Equal(t, 3, merged.Durations)
	assert.Equal(t, []string{"json"}, merged.Reporters)
	assert.Equal(t, "failure", merged.Notify.On)
	assert.Equal(t, "https://teams.example", merged.Notify.TeamsWebhook)
	assert.False(t, base.GetCaptureTee(), "merge does not mutate the receiver")

	assert.Same(t, base, base.Merge(nil))
}

func TestNoCaptureFromEnv(t *testing.T) {
	tests := []struct {
		value string
		want  bool
	}{
		{"", false},
		{"0", false},
		{"false", false},
		{"1", true},
		{"true", true},
		{"yes", true},
	}
	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			getenv := func(key string) string {
				if key == NoCaptureEnv {
					return tt.value
				}
				return ""
			}
			assert.Equal(t, tt.want, NoCaptureFromEnv(getenv))
			assert.Equal(t, !tt.want, DefaultConfig().ApplyEnv(getenv).GetCapture())
		})
	}
}

func TestSaveConfigRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".tally.yaml")
	c := DefaultConfig()
	c.History = "runs.db"
	require.NoError(t, c.SaveConfig(path))

	loaded, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "runs.db", loaded.History)
	assert.True(t, loaded.GetCapture())
}
