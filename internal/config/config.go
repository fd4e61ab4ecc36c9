package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/lucasb-eyer/go-colorful"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"campuscal/internal/model"
)

// NOTE: YAML-based load/save, including first-run config creation and 0600
// permissions. The display timezone is fixed (Europe/London) and is not a
// config field.

// APIConfig points at the portal's calendar service.
type APIConfig struct {
	// BaseURL is the service root, e.g. "https://portal.example.ac.uk/api".
	BaseURL string `yaml:"base_url" json:"base_url"`
	// Endpoint selects /calendar/events ("events") or /calendar/sync ("sync").
	Endpoint string `yaml:"endpoint" json:"endpoint"`
	// Timeout bounds a single fetch, e.g. "15s".
	Timeout time.Duration `yaml:"timeout" json:"timeout"`
}

// LogConfig controls the process logger.
type LogConfig struct {
	Level  string `yaml:"level" json:"level"`
	Format string `yaml:"format" json:"format"`
}

// BasicAuthConfig holds HTTP Basic Auth credentials for the Web UI/API.
// PasswordHash is a bcrypt hash (see `campuscal hash-password`).
type BasicAuthConfig struct {
	Username     string `yaml:"username" json:"username"`
	PasswordHash string `yaml:"password_hash" json:"password_hash"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address for the Web UI and API.
	Listen string `yaml:"listen" json:"listen"`

	API APIConfig `yaml:"api" json:"api"`

	// TokenPath is where the bearer token from `campuscal login` is kept.
	TokenPath string `yaml:"token_path" json:"token_path"`

	// DefaultView is the granularity shown on start: week, month or year.
	DefaultView string `yaml:"default_view" json:"default_view"`

	// RefreshCron is a standard 5-field cron schedule for re-fetching the
	// current view. An empty value disables scheduled refresh.
	RefreshCron string `yaml:"refresh" json:"refresh"`

	Log LogConfig `yaml:"log" json:"log"`

	// CategoryColors maps an event category to a hex color for the HTML view.
	CategoryColors map[string]string `yaml:"category_colors" json:"category_colors"`

	// BasicAuth, if non-nil, enables HTTP Basic Authentication on all endpoints
	// except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

var defaultColors = map[string]string{
	string(model.CategoryMeeting):  "#3b82f6",
	string(model.CategoryReminder): "#f59e0b",
	string(model.CategoryTask):     "#10b981",
	string(model.CategorySocial):   "#ec4899",
	string(model.CategoryLecture):  "#8b5cf6",
	string(model.CategoryExam):     "#ef4444",
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	cfg := &Config{
		Listen: "127.0.0.1:8080",
		API: APIConfig{
			BaseURL:  "http://127.0.0.1:8000",
			Endpoint: "events",
			Timeout:  15 * time.Second,
		},
		TokenPath:   defaultTokenPath(),
		DefaultView: string(model.GranularityWeek),
		RefreshCron: "*/15 * * * *",
		Log:         LogConfig{Level: "info", Format: "console"},
	}
	cfg.CategoryColors = copyColors(defaultColors)
	return cfg
}

func defaultTokenPath() string {
	dir, err := os.UserConfigDir()
	if err != nil || dir == "" {
		return ".campuscal-token"
	}
	return filepath.Join(dir, "campuscal", "token")
}

func copyColors(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// Normalize fills in missing/zero values with sensible defaults so that
// partially-filled configs still behave correctly. Invalid enumerations fall
// back to their defaults; an invalid refresh schedule is reported by Validate.
func (c *Config) Normalize() {
	if c.Listen == "" {
		c.Listen = "127.0.0.1:8080"
	}
	c.API.BaseURL = strings.TrimRight(strings.TrimSpace(c.API.BaseURL), "/")
	switch c.API.Endpoint {
	case "events", "sync":
	default:
		c.API.Endpoint = "events"
	}
	if c.API.Timeout <= 0 {
		c.API.Timeout = 15 * time.Second
	}
	if c.TokenPath == "" {
		c.TokenPath = defaultTokenPath()
	}
	if g, err := model.ParseGranularity(c.DefaultView); err != nil {
		c.DefaultView = string(model.GranularityWeek)
	} else {
		c.DefaultView = string(g)
	}
	c.RefreshCron = strings.TrimSpace(c.RefreshCron)
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format != "json" {
		c.Log.Format = "console"
	}
	if c.CategoryColors == nil {
		c.CategoryColors = map[string]string{}
	}
	for k, v := range defaultColors {
		if _, ok := c.CategoryColors[k]; !ok {
			c.CategoryColors[k] = v
		}
	}
	if c.BasicAuth != nil && c.BasicAuth.Username == "" && c.BasicAuth.PasswordHash == "" {
		c.BasicAuth = nil
	}
}

// Validate reports settings Normalize cannot repair.
func (c *Config) Validate() error {
	var errs []error
	if c.RefreshCron != "" {
		if _, err := cron.ParseStandard(c.RefreshCron); err != nil {
			errs = append(errs, fmt.Errorf("refresh %q: %w", c.RefreshCron, err))
		}
	}
	for cat, hex := range c.CategoryColors {
		if _, err := colorful.Hex(hex); err != nil {
			errs = append(errs, fmt.Errorf("category_colors.%s %q: %w", cat, hex, err))
		}
	}
	if c.BasicAuth != nil && (c.BasicAuth.Username == "" || c.BasicAuth.PasswordHash == "") {
		errs = append(errs, errors.New("basic_auth needs both username and password_hash"))
	}
	return errors.Join(errs...)
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist, a default config is written with 0600
//     perms and returned.
//   - Otherwise the YAML is read, normalized and validated.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				// Even if save fails, return cfg with error so caller can decide.
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return &cfg, nil
}

// Save writes cfg to path atomically (temp file + rename) with 0600 perms,
// creating the parent directory (0700) if needed.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".campuscal-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

// Save delegates to the package-level Save.
func (c *Config) Save(path string) error {
	return Save(path, c)
}
