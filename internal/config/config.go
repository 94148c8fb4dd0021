package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"taskcal/internal/fsutil"
)

// VaultConfig describes where tasks are discovered.
type VaultConfig struct {
	// Path is the root directory of Markdown notes.
	Path string `yaml:"path" json:"path"`
	// IgnoreCompleted drops checked-off items ("- [x]").
	IgnoreCompleted bool `yaml:"ignore_completed" json:"ignore_completed"`
}

// CalendarConfig controls the VCALENDAR headers and event defaults.
type CalendarConfig struct {
	Name   string `yaml:"name" json:"name"`
	ProdID string `yaml:"prodid" json:"prodid"`
	// DefaultLocation is written for tasks without a location.
	DefaultLocation string `yaml:"default_location" json:"default_location"`
	// Verify re-parses the output with an independent parser before publishing.
	Verify bool `yaml:"verify" json:"verify"`
}

// FileSinkConfig writes the calendar to a local file.
type FileSinkConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Path    string `yaml:"path" json:"path"`
}

// CalDAVSinkConfig PUTs the calendar to a CalDAV collection resource.
type CalDAVSinkConfig struct {
	Enabled  bool   `yaml:"enabled" json:"enabled"`
	URL      string `yaml:"url" json:"url"`
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// GistSinkConfig updates one file of a GitHub Gist.
type GistSinkConfig struct {
	Enabled  bool   `yaml:"enabled" json:"enabled"`
	GistID   string `yaml:"gist_id" json:"gist_id"`
	Filename string `yaml:"filename" json:"filename"`
	Token    string `yaml:"token" json:"token"`
}

// BasicAuthConfig holds HTTP Basic Auth credentials for the feed server.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address of `taskcal serve`.
	Listen string `yaml:"listen" json:"listen"`

	// Timezone is the IANA zone in which note dates and "9:30" tokens are
	// read. Empty means the system zone.
	Timezone string `yaml:"timezone" json:"timezone"`

	// RefreshCron is a standard 5-field cron schedule for `watch` / `serve`.
	RefreshCron string `yaml:"refresh" json:"refresh"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level" json:"log_level"`

	// CacheDir holds downloaded feeds for `import`.
	CacheDir string `yaml:"cache_dir" json:"cache_dir"`

	Vault    VaultConfig    `yaml:"vault" json:"vault"`
	Calendar CalendarConfig `yaml:"calendar" json:"calendar"`

	File   FileSinkConfig   `yaml:"file" json:"file"`
	CalDAV CalDAVSinkConfig `yaml:"caldav" json:"caldav"`
	Gist   GistSinkConfig   `yaml:"gist" json:"gist"`

	// BasicAuth, if non-nil, protects every endpoint except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

const (
	defaultListen   = "127.0.0.1:8080"
	defaultCron     = "*/15 * * * *"
	defaultLogLevel = "info"
	defaultCacheDir = "./var/ics-cache"
	defaultCalName  = "Tasks"
	defaultProdID   = "-//taskcal//EN"
	defaultLocation = "ONLINE"
	defaultFilePath = "./tasks.ics"
	defaultGistFile = "tasks.ics"
)

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:      defaultListen,
		RefreshCron: defaultCron,
		LogLevel:    defaultLogLevel,
		CacheDir:    defaultCacheDir,
		Vault: VaultConfig{
			Path:            ".",
			IgnoreCompleted: true,
		},
		Calendar: CalendarConfig{
			Name:            defaultCalName,
			ProdID:          defaultProdID,
			DefaultLocation: defaultLocation,
			Verify:          true,
		},
		File: FileSinkConfig{
			Enabled: true,
			Path:    defaultFilePath,
		},
		Gist: GistSinkConfig{
			Filename: defaultGistFile,
		},
	}
}

// Normalize fills in missing/zero values so that partially-filled configs
// still behave correctly.
func (c *Config) Normalize() {
	if c.Listen == "" {
		c.Listen = defaultListen
	}
	if c.RefreshCron == "" {
		c.RefreshCron = defaultCron
	}
	if c.LogLevel == "" {
		c.LogLevel = defaultLogLevel
	}
	if c.CacheDir == "" {
		c.CacheDir = defaultCacheDir
	}
	if c.Vault.Path == "" {
		c.Vault.Path = "."
	}
	if c.Calendar.Name == "" {
		c.Calendar.Name = defaultCalName
	}
	if c.Calendar.ProdID == "" {
		c.Calendar.ProdID = defaultProdID
	}
	if c.File.Path == "" {
		c.File.Path = defaultFilePath
	}
	if c.Gist.Filename == "" {
		c.Gist.Filename = defaultGistFile
	}
}

// Validate reports settings that cannot work at runtime.
func (c *Config) Validate() error {
	var errs []error
	if _, err := cron.ParseStandard(c.RefreshCron); err != nil {
		errs = append(errs, fmt.Errorf("refresh: %w", err))
	}
	if _, err := c.Location(); err != nil {
		errs = append(errs, fmt.Errorf("timezone: %w", err))
	}
	if c.CalDAV.Enabled && c.CalDAV.URL == "" {
		errs = append(errs, errors.New("caldav: url is required when enabled"))
	}
	if c.Gist.Enabled && (c.Gist.GistID == "" || c.Gist.Token == "") {
		errs = append(errs, errors.New("gist: gist_id and token are required when enabled"))
	}
	return errors.Join(errs...)
}

// Location resolves Timezone, defaulting to time.Local.
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.Local, nil
	}
	return time.LoadLocation(c.Timezone)
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist, a default config is written there with
//     0600 perms and returned.
//   - Otherwise the YAML is decoded and normalized.
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

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	cfg.Normalize()

	return cfg, nil
}

// Save writes cfg to path atomically (temp file + rename) with 0600 perms,
// creating the parent directory with 0700 if needed.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return fsutil.WriteFileAtomic(path, data)
}

// Save is a convenience method delegating to the package-level Save.
func (c *Config) Save(path string) error {
	return Save(path, c)
}
