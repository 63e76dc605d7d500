package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Camera sources understood by Camera.Source.
const (
	SourceBrowser = "browser"
	SourceHTTP    = "http"
	SourceDir     = "dir"
)

// Config holds all configuration loaded from config.yaml and the environment.
type Config struct {
	HTTPAddr             string   `yaml:"http_addr"              json:"-"`
	DBPath               string   `yaml:"db_path"                json:"-"`
	LogLevel             string   `yaml:"log_level"              json:"-"`
	AllowedOrigins       []string `yaml:"allowed_origins"        json:"allowed_origins"`
	HistoryRetentionDays int      `yaml:"history_retention_days" json:"history_retention_days"`
	PurgeSchedule        string   `yaml:"purge_schedule"         json:"purge_schedule"`
	Scanner              Scanner  `yaml:"scanner"                json:"scanner"`
	Camera               Camera   `yaml:"camera"                 json:"camera"`
	Airtable             Airtable `yaml:"airtable"               json:"airtable"`
}

// Scanner holds the scan session tuning knobs.
type Scanner struct {
	Decoder        string        `yaml:"decoder"         json:"decoder"`
	FrameInterval  time.Duration `yaml:"frame_interval"  json:"frame_interval"`
	Cooldown       time.Duration `yaml:"cooldown"        json:"cooldown"`
	AcquireTimeout time.Duration `yaml:"acquire_timeout" json:"acquire_timeout"`
	LookupDelay    time.Duration `yaml:"lookup_delay"    json:"lookup_delay"`
	MaxFrameWidth  int           `yaml:"max_frame_width" json:"max_frame_width"`
}

// Camera selects where frames come from.
type Camera struct {
	Source  string         `yaml:"source"  json:"source"`
	Facing  string         `yaml:"facing"  json:"facing"`
	Dir     string         `yaml:"dir"     json:"dir,omitempty"`
	Devices []CameraDevice `yaml:"devices" json:"devices,omitempty"`
}

// CameraDevice is one network camera reachable over HTTP.
type CameraDevice struct {
	Name   string `yaml:"name"   json:"name"`
	URL    string `yaml:"url"    json:"-"`
	Facing string `yaml:"facing" json:"facing"`
}

// Airtable configures the primary lookup table and an optional fallback.
type Airtable struct {
	BaseURL  string         `yaml:"base_url"  json:"-"`
	BaseID   string         `yaml:"base_id"   json:"-"`
	Table    string         `yaml:"table"     json:"table"`
	Field    string         `yaml:"field"     json:"field"`
	Timeout  time.Duration  `yaml:"timeout"   json:"timeout"`
	CacheTTL time.Duration  `yaml:"cache_ttl" json:"cache_ttl"`
	Fallback *AirtableTable `yaml:"fallback"  json:"fallback,omitempty"`

	// APIKey is only ever read from the environment.
	APIKey string `yaml:"-" json:"-"`
}

// AirtableTable names a secondary table queried when the primary has no record.
type AirtableTable struct {
	BaseID string `yaml:"base_id" json:"-"`
	Table  string `yaml:"table"   json:"table"`
	Field  string `yaml:"field"   json:"field"`
}

// applyDefaults fills zero/empty fields with sensible defaults.
func (c *Config) applyDefaults() {
	if c.HTTPAddr == "" {
		c.HTTPAddr = ":8080"
	}
	if c.DBPath == "" {
		c.DBPath = "shelfscan.db"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if len(c.AllowedOrigins) == 0 {
		c.AllowedOrigins = []string{"*"}
	}
	if c.HistoryRetentionDays == 0 {
		c.HistoryRetentionDays = 30
	}
	if c.PurgeSchedule == "" {
		c.PurgeSchedule = "0 3 * * *"
	}
	if c.Scanner.Decoder == "" {
		c.Scanner.Decoder = "multi"
	}
	if c.Scanner.FrameInterval == 0 {
		c.Scanner.FrameInterval = 33 * time.Millisecond
	}
	if c.Scanner.Cooldown == 0 {
		c.Scanner.Cooldown = 400 * time.Millisecond
	}
	if c.Scanner.AcquireTimeout == 0 {
		c.Scanner.AcquireTimeout = 10 * time.Second
	}
	if c.Scanner.LookupDelay == 0 {
		c.Scanner.LookupDelay = 500 * time.Millisecond
	}
	if c.Scanner.MaxFrameWidth == 0 {
		c.Scanner.MaxFrameWidth = 1280
	}
	if c.Camera.Source == "" {
		c.Camera.Source = SourceBrowser
	}
	if c.Camera.Facing == "" {
		c.Camera.Facing = "environment"
	}
	if c.Airtable.BaseURL == "" {
		c.Airtable.BaseURL = "https://api.airtable.com/v0"
	}
	if c.Airtable.Table == "" {
		c.Airtable.Table = "Inventory"
	}
	if c.Airtable.Field == "" {
		c.Airtable.Field = "BARCODE"
	}
	if c.Airtable.Timeout == 0 {
		c.Airtable.Timeout = 15 * time.Second
	}
	if c.Airtable.CacheTTL == 0 {
		c.Airtable.CacheTTL = time.Hour
	}
	if fb := c.Airtable.Fallback; fb != nil {
		if fb.BaseID == "" {
			fb.BaseID = c.Airtable.BaseID
		}
		if fb.Field == "" {
			fb.Field = c.Airtable.Field
		}
	}
}

// applyEnv overlays values from the process environment. The Airtable key has
// no YAML field at all so it can never end up in a committed config file.
func (c *Config) applyEnv() {
	set := func(dst *string, key string) {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			*dst = v
		}
	}
	set(&c.Airtable.APIKey, "AIRTABLE_API_KEY")
	set(&c.Airtable.BaseID, "AIRTABLE_BASE_ID")
	set(&c.Airtable.Table, "AIRTABLE_TABLE_NAME")
	set(&c.Airtable.BaseURL, "AIRTABLE_API_BASE_URL")
	set(&c.HTTPAddr, "SHELFSCAN_HTTP_ADDR")
	set(&c.DBPath, "SHELFSCAN_DB_PATH")
	set(&c.LogLevel, "SHELFSCAN_LOG_LEVEL")
}

// Load reads and parses the YAML config file at path, then applies environment
// overrides and defaults. If the file does not exist, Load returns a default
// Config so the server can start from environment variables alone.
func Load(path string) (*Config, error) {
	var cfg Config

	f, err := os.Open(path)
	switch {
	case os.IsNotExist(err):
	case err != nil:
		return nil, fmt.Errorf("open config %q: %w", path, err)
	default:
		defer f.Close()
		dec := yaml.NewDecoder(f)
		dec.KnownFields(true)
		if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("parse config %q: %w", path, err)
		}
	}

	cfg.applyEnv()
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %q: %w", path, err)
	}
	return &cfg, nil
}

// Validate reports the first setting that cannot be used as given.
func (c *Config) Validate() error {
	switch c.Camera.Source {
	case SourceBrowser:
	case SourceHTTP:
		if len(c.Camera.Devices) == 0 {
			return errors.New("camera.source http needs at least one camera.devices entry")
		}
		for i, d := range c.Camera.Devices {
			if d.URL == "" {
				return fmt.Errorf("camera.devices[%d]: url is required", i)
			}
		}
	case SourceDir:
		if c.Camera.Dir == "" {
			return errors.New("camera.source dir needs camera.dir")
		}
	default:
		return fmt.Errorf("unknown camera.source %q", c.Camera.Source)
	}
	switch c.Camera.Facing {
	case "environment", "user", "any":
	default:
		return fmt.Errorf("unknown camera.facing %q", c.Camera.Facing)
	}
	if c.Scanner.FrameInterval < 0 || c.Scanner.Cooldown < 0 || c.Scanner.LookupDelay < 0 {
		return errors.New("scanner durations must not be negative")
	}
	if c.HistoryRetentionDays < 0 {
		return errors.New("history_retention_days must not be negative")
	}
	// Field names are placed inside {...} in the lookup formula, which has
	// no escape for braces.
	if strings.ContainsAny(c.Airtable.Field, "{}") {
		return fmt.Errorf("airtable.field %q must not contain braces", c.Airtable.Field)
	}
	if fb := c.Airtable.Fallback; fb != nil && strings.ContainsAny(fb.Field, "{}") {
		return fmt.Errorf("airtable.fallback.field %q must not contain braces", fb.Field)
	}
	return nil
}

// LookupConfigured reports whether enough Airtable settings are present to
// query the remote table.
func (c *Config) LookupConfigured() bool {
	return c.Airtable.APIKey != "" && c.Airtable.BaseID != "" && c.Airtable.Table != ""
}
