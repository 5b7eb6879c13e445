package server

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"
	_ "time/tzdata"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("TIMEZONE", "")
	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.BindAddr != DefaultBindAddr || cfg.Port != DefaultPort || cfg.DataDir != DefaultDataDir || cfg.LogLevel != DefaultLogLevel {
		t.Fatalf("unexpected defaults: %#v", cfg)
	}
	if cfg.Database.Driver != DriverSQLite || !cfg.Database.WAL {
		t.Fatalf("unexpected database defaults: %#v", cfg.Database)
	}
	if !reflect.DeepEqual(cfg.Buttons, []int{1, 2, 3, 4}) {
		t.Fatalf("unexpected default buttons %v", cfg.Buttons)
	}
	timeout, err := cfg.LockTimeoutDuration()
	if err != nil || timeout != 5*time.Second {
		t.Fatalf("LockTimeoutDuration() = %v, %v", timeout, err)
	}
	loc, err := cfg.Location()
	if err != nil || loc.String() != "Europe/Lisbon" {
		t.Fatalf("Location() = %v, %v", loc, err)
	}
}

func TestLoadConfigFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := []byte(`bind: 127.0.0.2
port: 9500
dataDir: /tmp/tallyd-data
logLevel: debug
lockTimeout: 750ms
timezone: UTC
buttons: [1, 2, 5]
database:
  driver: postgres
  url: postgres://tally@localhost/tally
api:
  token: " secret "
`)
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatalf("write config file: %v", err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.BindAddr != "127.0.0.2" || cfg.Port != 9500 || cfg.DataDir != "/tmp/tallyd-data" || cfg.LogLevel != "debug" {
		t.Fatalf("unexpected file config: %#v", cfg)
	}
	if cfg.Database.Driver != DriverPostgres || cfg.Database.URL != "postgres://tally@localhost/tally" {
		t.Fatalf("unexpected database config: %#v", cfg.Database)
	}
	if cfg.API.Token != "secret" {
		t.Fatalf("expected trimmed token, got %q", cfg.API.Token)
	}
	if !reflect.DeepEqual(cfg.Buttons, []int{1, 2, 5}) {
		t.Fatalf("unexpected buttons %v", cfg.Buttons)
	}
	if d, _ := cfg.LockTimeoutDuration(); d != 750*time.Millisecond {
		t.Fatalf("unexpected lock timeout %s", d)
	}
}

func TestLoadConfigEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := []byte("bind: 127.0.0.2\nport: 9500\ndataDir: /tmp/tallyd-data\nlogLevel: info\n")
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatalf("write config file: %v", err)
	}

	t.Setenv("TALLYD_BIND", "127.0.0.3")
	t.Setenv("TALLYD_PORT", "9700")
	t.Setenv("TALLYD_DATA_DIR", "/tmp/override")
	t.Setenv("TALLYD_LOG_LEVEL", "warn")
	t.Setenv("TALLYD_DB_PATH", "/tmp/override/clicks.sqlite")
	t.Setenv("TALLYD_DB_WAL", "false")
	t.Setenv("TALLYD_LOCK_TIMEOUT", "2s")
	t.Setenv("TIMEZONE", "America/New_York")
	t.Setenv("TALLYD_BUTTONS", "3, 4")
	t.Setenv("TALLYD_API_TOKEN", "env-token")
	t.Setenv("TALLYD_API_READ_TOKEN", "env-read-token")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.BindAddr != "127.0.0.3" || cfg.Port != 9700 || cfg.DataDir != "/tmp/override" || cfg.LogLevel != "warn" || cfg.Database.Path != "/tmp/override/clicks.sqlite" || cfg.Database.WAL {
		t.Fatalf("unexpected overridden config: %#v", cfg)
	}
	if cfg.LockTimeout != "2s" || cfg.Timezone != "America/New_York" || cfg.API.Token != "env-token" || cfg.API.ReadToken != "env-read-token" {
		t.Fatalf("unexpected overridden config: %#v", cfg)
	}
	if !reflect.DeepEqual(cfg.Buttons, []int{3, 4}) {
		t.Fatalf("unexpected buttons %v", cfg.Buttons)
	}

	t.Setenv("TALLYD_TIMEZONE", "UTC")
	cfg, err = LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.Timezone != "UTC" {
		t.Fatalf("expected TALLYD_TIMEZONE to win over TIMEZONE, got %q", cfg.Timezone)
	}
}

func TestLoadConfigInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("bind 127.0.0.1\n"), 0o644); err != nil {
		t.Fatalf("write config file: %v", err)
	}

	_, err := LoadConfig(path)
	if err == nil {
		t.Fatalf("expected parse error")
	}
	if !strings.Contains(err.Error(), "parse config file") {
		t.Fatalf("expected parse config error, got %v", err)
	}
}

func TestLoadConfigInvalidEnvValues(t *testing.T) {
	for _, tc := range []struct {
		key   string
		value string
	}{
		{"TALLYD_PORT", "not-a-number"},
		{"TALLYD_DB_WAL", "not-a-bool"},
		{"TALLYD_BUTTONS", "1,x"},
	} {
		t.Run(tc.key, func(t *testing.T) {
			t.Setenv(tc.key, tc.value)
			_, err := LoadConfig("")
			if err == nil {
				t.Fatalf("expected parse error")
			}
			if !strings.Contains(err.Error(), tc.key) {
				t.Fatalf("expected env var mention in error, got %v", err)
			}
		})
	}
}

func TestConfigValidateErrors(t *testing.T) {
	valid := DefaultConfig()
	valid.DataDir = "/tmp/x"

	mutate := []func(*Config){
		func(c *Config) { c.BindAddr = "" },
		func(c *Config) { c.Port = -1 },
		func(c *Config) { c.Port = 70000 },
		func(c *Config) { c.DataDir = "" },
		func(c *Config) { c.LogLevel = "bad" },
		func(c *Config) { c.Database.Driver = "mysql" },
		func(c *Config) { c.Database.Driver = DriverPostgres },
		func(c *Config) { c.LockTimeout = "soon" },
		func(c *Config) { c.LockTimeout = "-1s" },
		func(c *Config) { c.Timezone = "Mars/Olympus" },
		func(c *Config) { c.Buttons = []int{1, 0} },
		func(c *Config) { c.Buttons = []int{2, 2} },
		func(c *Config) { c.ChartAccent = "amber" },
		func(c *Config) { c.API = APIConfig{ReadToken: "wall"} },
		func(c *Config) { c.API = APIConfig{Token: "same", ReadToken: "same"} },
	}
	if err := valid.Validate(); err != nil {
		t.Fatalf("Validate() on defaults error = %v", err)
	}
	for i, fn := range mutate {
		cfg := valid
		cfg.Buttons = append([]int(nil), valid.Buttons...)
		fn(&cfg)
		if err := cfg.Validate(); err == nil {
			t.Fatalf("case %d: expected validation error", i)
		}
	}
}
