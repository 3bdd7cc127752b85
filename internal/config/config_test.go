package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := Default()

	assert.Equal(t, 5, cfg.Crawl.Concurrency)
	assert.Equal(t, 3, cfg.Crawl.RetryTimes)
	assert.True(t, cfg.Crawl.Recursive)
	assert.Equal(t, "localhost", cfg.Aria2.Host)
	assert.Equal(t, 6800, cfg.Aria2.Port)
	assert.Equal(t, "/jsonrpc", cfg.Aria2.Path)
	assert.False(t, cfg.Aria2.Secure)
	assert.Equal(t, 30*time.Second, cfg.API.Timeout)
	assert.NoError(t, cfg.Validate())
}

func TestLoadFromYAML(t *testing.T) {
	yamlContent := `
api:
  base_url: "https://idx.example/0:"
  timeout: 5s
crawl:
  concurrency: 8
  exclude: ["\\.tmp$"]
aria2:
  port: 16800
  secure: true
`
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte(yamlContent), 0644))

	cfg, err := LoadFromFile(configPath)
	require.NoError(t, err)

	assert.Equal(t, "https://idx.example/0:", cfg.API.BaseURL)
	assert.Equal(t, 5*time.Second, cfg.API.Timeout)
	assert.Equal(t, 8, cfg.Crawl.Concurrency)
	assert.Equal(t, 3, cfg.Crawl.RetryTimes, "unset keys keep defaults")
	assert.Equal(t, []string{`\.tmp$`}, cfg.Crawl.Exclude)
	assert.Equal(t, 16800, cfg.Aria2.Port)
	assert.True(t, cfg.Aria2.Secure)
	assert.Equal(t, "localhost", cfg.Aria2.Host)
}

func TestLoadMissingFileGivesDefaults(t *testing.T) {
	cfg, err := LoadFromFile(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadInvalidYAML(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("crawl: [oops"), 0644))
	_, err := LoadFromFile(configPath)
	assert.Error(t, err)
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := Default()
	require.NoError(t, cfg.Set("api.base_url", "https://idx.example/1:"))
	require.NoError(t, cfg.Set("aria2.token", "s3cret"))
	require.NoError(t, cfg.Set("crawl.exclude", `a, b ,`))
	require.NoError(t, cfg.Save(path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	loaded, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
	assert.Equal(t, []string{"a", "b"}, loaded.Crawl.Exclude)
}

func TestSetRejectsNonNumbers(t *testing.T) {
	cfg := Default()
	err := cfg.Set("aria2.port", "abc")
	assert.True(t, errors.Is(err, ErrInvalidValue))
	assert.Equal(t, 6800, cfg.Aria2.Port, "failed set leaves the value unchanged")

	assert.ErrorIs(t, cfg.Set("crawl.concurrency", "NaN"), ErrInvalidValue)
	assert.ErrorIs(t, cfg.Set("aria2.secure", "maybe"), ErrInvalidValue)
	assert.ErrorIs(t, cfg.Set("api.timeout", "soon"), ErrInvalidValue)
	assert.ErrorIs(t, cfg.Set("nope", "1"), ErrUnknownKey)

	require.NoError(t, cfg.Set("crawl.retry_times", " 7 "))
	assert.Equal(t, 7, cfg.Crawl.RetryTimes)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("ARIA2_RPC_HOST", "nas.local")
	t.Setenv("ARIA2_RPC_PORT", "6801")
	t.Setenv("ARIA2_RPC_SECURE", "true")
	t.Setenv("DOWNLOAD_FETCH_CONCURRENCY", "9")
	t.Setenv("DOWNLOAD_FETCH_RETRY_TIMES", "0")
	t.Setenv("DREDGE_API_URL", "http://idx.local/0:")

	cfg := Default()
	require.NoError(t, cfg.LoadFromEnv())
	assert.Equal(t, "nas.local", cfg.Aria2.Host)
	assert.Equal(t, 6801, cfg.Aria2.Port)
	assert.True(t, cfg.Aria2.Secure)
	assert.Equal(t, 9, cfg.Crawl.Concurrency)
	assert.Equal(t, 0, cfg.Crawl.RetryTimes)
	assert.Equal(t, "http://idx.local/0:", cfg.API.BaseURL)

	t.Setenv("ARIA2_RPC_PORT", "port")
	assert.ErrorIs(t, cfg.LoadFromEnv(), ErrInvalidValue)
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name string
		key  string
		val  string
	}{
		{"ftp base url", "api.base_url", "ftp://idx.example"},
		{"negative concurrency", "crawl.concurrency", "-1"},
		{"negative retries", "crawl.retry_times", "-1"},
		{"port zero", "aria2.port", "0"},
		{"port too big", "aria2.port", "70000"},
		{"negative retention", "snapshot.retention", "-2"},
		{"bad log level", "log_level", "loud"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			require.NoError(t, cfg.Set(tc.key, tc.val))
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestRequireAPIAndMixedContent(t *testing.T) {
	cfg := Default()
	assert.Error(t, cfg.RequireAPI())
	assert.False(t, cfg.MixedContentWarning())

	cfg.API.BaseURL = "https://idx.example/0:"
	assert.NoError(t, cfg.RequireAPI())
	assert.True(t, cfg.MixedContentWarning())

	cfg.Aria2.Secure = true
	assert.False(t, cfg.MixedContentWarning())
}

func TestKeysSorted(t *testing.T) {
	keys := Keys()
	assert.Contains(t, keys, "aria2.port")
	assert.IsIncreasing(t, keys)
}
