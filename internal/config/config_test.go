package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/eargollo/shelfscan/internal/config"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad_DefaultsApplied(t *testing.T) {
	path := writeConfig(t, "http_addr: \":9000\"\n")

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HTTPAddr != ":9000" {
		t.Errorf("HTTPAddr: got %q, want :9000", cfg.HTTPAddr)
	}
	if cfg.Scanner.Cooldown != 400*time.Millisecond {
		t.Errorf("Cooldown: got %v, want 400ms", cfg.Scanner.Cooldown)
	}
	if cfg.Camera.Facing != "environment" {
		t.Errorf("Facing: got %q, want environment", cfg.Camera.Facing)
	}
	if cfg.Airtable.Field != "BARCODE" {
		t.Errorf("Field: got %q, want BARCODE", cfg.Airtable.Field)
	}
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := config.Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Camera.Source != config.SourceBrowser {
		t.Errorf("Source: got %q, want %q", cfg.Camera.Source, config.SourceBrowser)
	}
}

func TestLoad_DurationsAndFallback(t *testing.T) {
	path := writeConfig(t, `
scanner:
  cooldown: 2s
  frame_interval: 50ms
airtable:
  base_id: appPrimary
  fallback:
    table: Archive
`)
	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Scanner.Cooldown != 2*time.Second {
		t.Errorf("Cooldown: got %v, want 2s", cfg.Scanner.Cooldown)
	}
	if cfg.Scanner.FrameInterval != 50*time.Millisecond {
		t.Errorf("FrameInterval: got %v, want 50ms", cfg.Scanner.FrameInterval)
	}
	fb := cfg.Airtable.Fallback
	if fb == nil || fb.BaseID != "appPrimary" || fb.Field != "BARCODE" {
		t.Errorf("fallback not defaulted from primary: %+v", fb)
	}
}

func TestLoad_UnknownFieldRejected(t *testing.T) {
	path := writeConfig(t, "api_key: secret\n")
	if _, err := config.Load(path); err == nil {
		t.Error("expected error for unknown field")
	}
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	t.Setenv("AIRTABLE_API_KEY", "patTest")
	t.Setenv("AIRTABLE_BASE_ID", "appEnv")
	t.Setenv("AIRTABLE_TABLE_NAME", "Stock")

	cfg, err := config.Load(writeConfig(t, "airtable:\n  base_id: appFile\n"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Airtable.APIKey != "patTest" {
		t.Errorf("APIKey not read from environment")
	}
	if cfg.Airtable.BaseID != "appEnv" || cfg.Airtable.Table != "Stock" {
		t.Errorf("env overrides not applied: %+v", cfg.Airtable)
	}
	if !cfg.LookupConfigured() {
		t.Error("expected LookupConfigured")
	}
}

func TestValidate(t *testing.T) {
	cases := map[string]string{
		"unknown source":          "camera:\n  source: usb\n",
		"http no device":          "camera:\n  source: http\n",
		"dir no path":             "camera:\n  source: dir\n",
		"bad facing":              "camera:\n  facing: left\n",
		"negative":                "scanner:\n  cooldown: -1s\n",
		"brace in field":          "airtable:\n  field: \"BAR}CODE\"\n",
		"brace in fallback field": "airtable:\n  fallback:\n    table: Archive\n    field: \"{X\"\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := config.Load(writeConfig(t, body)); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}
