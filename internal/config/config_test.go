package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadCreatesDefaultsOnFirstRun(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conf", "config.yaml")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:8080", cfg.Listen)
	assert.Equal(t, "week", cfg.DefaultView)
	assert.Equal(t, "events", cfg.API.Endpoint)
	assert.Equal(t, 15*time.Second, cfg.API.Timeout)
	assert.Equal(t, "#ef4444", cfg.CategoryColors["exam"])

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	again, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, again)
}

func TestLoadNormalizesPartialFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
listen: ":9000"
api:
  base_url: "https://portal.example.ac.uk/api/"
  endpoint: bogus
  timeout: 3s
default_view: Month
refresh: ""
category_colors:
  lecture: "#000000"
basic_auth:
  username: ""
  password_hash: ""
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9000", cfg.Listen)
	assert.Equal(t, "https://portal.example.ac.uk/api", cfg.API.BaseURL)
	assert.Equal(t, "events", cfg.API.Endpoint)
	assert.Equal(t, 3*time.Second, cfg.API.Timeout)
	assert.Equal(t, "month", cfg.DefaultView)
	assert.Equal(t, "", cfg.RefreshCron)
	assert.Equal(t, "#000000", cfg.CategoryColors["lecture"])
	assert.Equal(t, "#3b82f6", cfg.CategoryColors["meeting"])
	assert.Nil(t, cfg.BasicAuth)
	assert.Equal(t, "console", cfg.Log.Format)
}

func TestLoadRejectsInvalidSettings(t *testing.T) {
	cases := map[string]string{
		"cron":       "refresh: \"every tuesday\"\n",
		"color":      "category_colors:\n  exam: \"red-ish\"\n",
		"basic auth": "basic_auth:\n  username: admin\n",
		"yaml":       "listen: [\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.yaml")
			require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
			_, err := Load(path)
			assert.Error(t, err)
		})
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	cfg := DefaultConfig()
	cfg.API.Endpoint = "sync"
	cfg.DefaultView = "year"
	cfg.BasicAuth = &BasicAuthConfig{Username: "admin", PasswordHash: "$2a$10$abcdefghijklmnopqrstuv"}
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp file must not be left behind")
}

func TestSaveRejectsEmptyInput(t *testing.T) {
	assert.Error(t, Save("", DefaultConfig()))
	assert.Error(t, Save(filepath.Join(t.TempDir(), "c.yaml"), nil))
}

func TestNormalizeDefaultView(t *testing.T) {
	cases := map[string]string{
		"YEAR":    "year",
		" month ": "month",
		"Week":    "week",
		"decade":  "week",
		"":        "week",
	}
	for in, want := range cases {
		cfg := DefaultConfig()
		cfg.DefaultView = in
		cfg.Normalize()
		assert.Equal(t, want, cfg.DefaultView, "default_view %q", in)
	}
}
