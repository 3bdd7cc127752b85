package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrInvalidValue is returned when a setting cannot be parsed.
var ErrInvalidValue = errors.New("config: invalid value")

// ErrUnknownKey is returned by Set for keys that do not exist.
var ErrUnknownKey = errors.New("config: unknown key")

// Config is the persisted dredge configuration.
type Config struct {
	API      APIConfig      `yaml:"api"`
	Crawl    CrawlConfig    `yaml:"crawl"`
	Aria2    Aria2Config    `yaml:"aria2"`
	Snapshot SnapshotConfig `yaml:"snapshot"`
	LogLevel string         `yaml:"log_level"`
}

// APIConfig locates the index listing API.
type APIConfig struct {
	BaseURL  string        `yaml:"base_url"`
	RootID   string        `yaml:"root_id"`
	Password string        `yaml:"password"`
	Timeout  time.Duration `yaml:"timeout"`
}

// CrawlConfig holds crawl defaults.
type CrawlConfig struct {
	Concurrency int      `yaml:"concurrency"`
	RetryTimes  int      `yaml:"retry_times"`
	Recursive   bool     `yaml:"recursive"`
	Exclude     []string `yaml:"exclude,omitempty"`
	MaxErrors   int      `yaml:"max_errors"`
}

// Aria2Config locates the aria2 RPC endpoint.
type Aria2Config struct {
	Host         string `yaml:"host"`
	Port         int    `yaml:"port"`
	Secure       bool   `yaml:"secure"`
	Path         string `yaml:"path"`
	Token        string `yaml:"token"`
	DownloadPath string `yaml:"download_path"`
}

// SnapshotConfig controls where snapshots go.
type SnapshotConfig struct {
	Dir       string `yaml:"dir"`
	Retention int    `yaml:"retention"`
}

// Default returns a Config with sensible defaults.
func Default() Config {
	return Config{
		API: APIConfig{
			Timeout: 30 * time.Second,
		},
		Crawl: CrawlConfig{
			Concurrency: 5,
			RetryTimes:  3,
			Recursive:   true,
		},
		Aria2: Aria2Config{
			Host: "localhost",
			Port: 6800,
			Path: "/jsonrpc",
		},
		Snapshot: SnapshotConfig{
			Dir:       "./data",
			Retention: 5,
		},
		LogLevel: "info",
	}
}

// Path returns the default config file location.
func Path() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("locate config dir: %w", err)
	}
	return filepath.Join(dir, "dredge", "config.yaml"), nil
}

// LoadFromFile loads configuration from a YAML file on top of the defaults.
// A missing file yields the defaults.
func LoadFromFile(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config file: %w", err)
	}
	return cfg, nil
}

// Save writes the configuration to path, replacing it atomically.
func (c Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".config-*.yaml")
	if err != nil {
		return fmt.Errorf("create temp config: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write config: %w", err)
	}
	if err := tmp.Chmod(0600); err != nil {
		tmp.Close()
		return fmt.Errorf("chmod config: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close config: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replace config: %w", err)
	}
	return nil
}

// envKeys maps environment variables to the dotted keys they override.
var envKeys = map[string]string{
	"ARIA2_RPC_HOST":             "aria2.host",
	"ARIA2_RPC_PORT":             "aria2.port",
	"ARIA2_RPC_SECURE":           "aria2.secure",
	"ARIA2_RPC_PATH":             "aria2.path",
	"ARIA2_RPC_TOKEN":            "aria2.token",
	"ARIA2_DOWNLOAD_PATH":        "aria2.download_path",
	"DOWNLOAD_FETCH_CONCURRENCY": "crawl.concurrency",
	"DOWNLOAD_FETCH_RETRY_TIMES": "crawl.retry_times",
	"DREDGE_API_URL":             "api.base_url",
	"DREDGE_ROOT_ID":             "api.root_id",
	"DREDGE_API_PASSWORD":        "api.password",
	"DREDGE_LOG_LEVEL":           "log_level",
}

// LoadFromEnv applies environment overrides.
func (c *Config) LoadFromEnv() error {
	names := make([]string, 0, len(envKeys))
	for name := range envKeys {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		v, ok := os.LookupEnv(name)
		if !ok || v == "" {
			continue
		}
		if err := c.Set(envKeys[name], v); err != nil {
			return fmt.Errorf("parse %s: %w", name, err)
		}
	}
	return nil
}

type setter func(c *Config, v string) error

func stringSetter(field func(c *Config) *string) setter {
	return func(c *Config, v string) error {
		*field(c) = v
		return nil
	}
}

func intSetter(field func(c *Config) *int) setter {
	return func(c *Config, v string) error {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%w: %q is not a number", ErrInvalidValue, v)
		}
		*field(c) = n
		return nil
	}
}

func boolSetter(field func(c *Config) *bool) setter {
	return func(c *Config, v string) error {
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%w: %q is not a boolean", ErrInvalidValue, v)
		}
		*field(c) = b
		return nil
	}
}

var setters = map[string]setter{
	"api.base_url": stringSetter(func(c *Config) *string { return &c.API.BaseURL }),
	"api.root_id":  stringSetter(func(c *Config) *string { return &c.API.RootID }),
	"api.password": stringSetter(func(c *Config) *string { return &c.API.Password }),
	"api.timeout": func(c *Config, v string) error {
		d, err := time.ParseDuration(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%w: %q is not a duration", ErrInvalidValue, v)
		}
		c.API.Timeout = d
		return nil
	},
	"crawl.concurrency": intSetter(func(c *Config) *int { return &c.Crawl.Concurrency }),
	"crawl.retry_times": intSetter(func(c *Config) *int { return &c.Crawl.RetryTimes }),
	"crawl.recursive":   boolSetter(func(c *Config) *bool { return &c.Crawl.Recursive }),
	"crawl.max_errors":  intSetter(func(c *Config) *int { return &c.Crawl.MaxErrors }),
	"crawl.exclude": func(c *Config, v string) error {
		c.Crawl.Exclude = nil
		for _, p := range strings.Split(v, ",") {
			if p = strings.TrimSpace(p); p != "" {
				c.Crawl.Exclude = append(c.Crawl.Exclude, p)
			}
		}
		return nil
	},
	"aria2.host":          stringSetter(func(c *Config) *string { return &c.Aria2.Host }),
	"aria2.port":          intSetter(func(c *Config) *int { return &c.Aria2.Port }),
	"aria2.secure":        boolSetter(func(c *Config) *bool { return &c.Aria2.Secure }),
	"aria2.path":          stringSetter(func(c *Config) *string { return &c.Aria2.Path }),
	"aria2.token":         stringSetter(func(c *Config) *string { return &c.Aria2.Token }),
	"aria2.download_path": stringSetter(func(c *Config) *string { return &c.Aria2.DownloadPath }),
	"snapshot.dir":        stringSetter(func(c *Config) *string { return &c.Snapshot.Dir }),
	"snapshot.retention":  intSetter(func(c *Config) *int { return &c.Snapshot.Retention }),
	"log_level":           stringSetter(func(c *Config) *string { return &c.LogLevel }),
}

// Keys returns every settable key, sorted.
func Keys() []string {
	keys := make([]string, 0, len(setters))
	for k := range setters {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Set updates one dotted key from its string form. The config is left
// unchanged when the value does not parse.
func (c *Config) Set(key, value string) error {
	set, ok := setters[key]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownKey, key)
	}
	return set(c, value)
}

// Validate checks the values that do not depend on the command being run.
func (c *Config) Validate() error {
	if c.API.BaseURL != "" {
		u, err := url.Parse(c.API.BaseURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("config: api.base_url must be an http(s) URL, got %q", c.API.BaseURL)
		}
	}
	if c.Crawl.Concurrency < 0 {
		return errors.New("config: crawl.concurrency must not be negative")
	}
	if c.Crawl.RetryTimes < 0 {
		return errors.New("config: crawl.retry_times must not be negative")
	}
	if c.Crawl.MaxErrors < 0 {
		return errors.New("config: crawl.max_errors must not be negative")
	}
	if c.Aria2.Port < 1 || c.Aria2.Port > 65535 {
		return fmt.Errorf("config: aria2.port must be in 1..65535, got %d", c.Aria2.Port)
	}
	if c.Snapshot.Retention < 0 {
		return errors.New("config: snapshot.retention must not be negative")
	}
	switch strings.ToLower(c.LogLevel) {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("config: unknown log_level %q", c.LogLevel)
	}
	return nil
}

// RequireAPI reports an error when no index API is configured.
func (c *Config) RequireAPI() error {
	if c.API.BaseURL == "" {
		return errors.New("config: api.base_url is required (set it with `dredge config set api.base_url <url>` or DREDGE_API_URL)")
	}
	return nil
}

// MixedContentWarning reports whether the index API is served over https
// while the aria2 RPC is not. Browsers and some proxies refuse that mix.
func (c *Config) MixedContentWarning() bool {
	return strings.HasPrefix(strings.ToLower(c.API.BaseURL), "https://") && !c.Aria2.Secure
}
