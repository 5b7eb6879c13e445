package server

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/benedict2310/tally/internal/chart"
)

const (
	DefaultBindAddr    = "127.0.0.1"
	DefaultPort        = 9400
	DefaultDataDir     = "/var/lib/tallyd"
	DefaultLogLevel    = "info"
	DefaultLockTimeout = "5s"
	DefaultTimezone    = "Europe/Lisbon"

	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

type Config struct {
	BindAddr    string         `yaml:"bind"`
	Port        int            `yaml:"port"`
	DataDir     string         `yaml:"dataDir"`
	LogLevel    string         `yaml:"logLevel"`
	Database    DatabaseConfig `yaml:"database"`
	LockTimeout string         `yaml:"lockTimeout"`
	Timezone    string         `yaml:"timezone"`
	Buttons     []int          `yaml:"buttons"`
	API         APIConfig      `yaml:"api,omitempty"`
	ChartAccent string         `yaml:"chartAccent,omitempty"`
}

type DatabaseConfig struct {
	Driver string `yaml:"driver"`
	// Path overrides <dataDir>/db.sqlite for the sqlite driver.
	Path string `yaml:"path,omitempty"`
	URL  string `yaml:"url,omitempty"`
	WAL  bool   `yaml:"wal"`
}

// APIConfig holds the bearer tokens for /api/v1. Token grants everything;
// ReadToken only grants GET and HEAD, for dashboards that must not press.
type APIConfig struct {
	Token     string `yaml:"token,omitempty"`
	ReadToken string `yaml:"readToken,omitempty"`
}

func DefaultConfig() Config {
	return Config{
		BindAddr: DefaultBindAddr,
		Port:     DefaultPort,
		DataDir:  DefaultDataDir,
		LogLevel: DefaultLogLevel,
		Database: DatabaseConfig{
			Driver: DriverSQLite,
			WAL:    true,
		},
		LockTimeout: DefaultLockTimeout,
		Timezone:    DefaultTimezone,
		Buttons:     []int{1, 2, 3, 4},
	}
}

func LoadConfig(configPath string) (Config, error) {
	cfg := DefaultConfig()

	if strings.TrimSpace(configPath) != "" {
		b, err := os.ReadFile(configPath)
		if err != nil {
			return cfg, fmt.Errorf("read config file %s: %w", configPath, err)
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config file %s: %w", configPath, err)
		}
	}
	cfg.API.Token = strings.TrimSpace(cfg.API.Token)
	cfg.API.ReadToken = strings.TrimSpace(cfg.API.ReadToken)
	cfg.Database.Driver = strings.ToLower(strings.TrimSpace(cfg.Database.Driver))

	if v := strings.TrimSpace(os.Getenv("TALLYD_BIND")); v != "" {
		cfg.BindAddr = v
	}
	if v := strings.TrimSpace(os.Getenv("TALLYD_PORT")); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return cfg, fmt.Errorf("parse TALLYD_PORT=%q: %w", v, err)
		}
		cfg.Port = port
	}
	if v := strings.TrimSpace(os.Getenv("TALLYD_DATA_DIR")); v != "" {
		cfg.DataDir = v
	}
	if v := strings.TrimSpace(os.Getenv("TALLYD_LOG_LEVEL")); v != "" {
		cfg.LogLevel = strings.ToLower(v)
	}
	if v := strings.TrimSpace(os.Getenv("TALLYD_DB_DRIVER")); v != "" {
		cfg.Database.Driver = strings.ToLower(v)
	}
	if v := strings.TrimSpace(os.Getenv("TALLYD_DB_PATH")); v != "" {
		cfg.Database.Path = v
	}
	if v := strings.TrimSpace(os.Getenv("TALLYD_DB_URL")); v != "" {
		cfg.Database.URL = v
	}
	if v := strings.TrimSpace(os.Getenv("TALLYD_DB_WAL")); v != "" {
		parsed, err := strconv.ParseBool(v)
		if err != nil {
			return cfg, fmt.Errorf("parse TALLYD_DB_WAL=%q: %w", v, err)
		}
		cfg.Database.WAL = parsed
	}
	if v := strings.TrimSpace(os.Getenv("TALLYD_LOCK_TIMEOUT")); v != "" {
		cfg.LockTimeout = v
	}
	// TIMEZONE is what earlier deployments set.
	if v := strings.TrimSpace(os.Getenv("TIMEZONE")); v != "" {
		cfg.Timezone = v
	}
	if v := strings.TrimSpace(os.Getenv("TALLYD_TIMEZONE")); v != "" {
		cfg.Timezone = v
	}
	if v := strings.TrimSpace(os.Getenv("TALLYD_BUTTONS")); v != "" {
		buttons, err := parseButtonList(v)
		if err != nil {
			return cfg, fmt.Errorf("parse TALLYD_BUTTONS=%q: %w", v, err)
		}
		cfg.Buttons = buttons
	}
	if v := strings.TrimSpace(os.Getenv("TALLYD_API_TOKEN")); v != "" {
		cfg.API.Token = v
	}
	if v := strings.TrimSpace(os.Getenv("TALLYD_API_READ_TOKEN")); v != "" {
		cfg.API.ReadToken = v
	}
	if v := strings.TrimSpace(os.Getenv("TALLYD_CHART_ACCENT")); v != "" {
		cfg.ChartAccent = v
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}

	return cfg, nil
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.BindAddr) == "" {
		return fmt.Errorf("bind address is required")
	}
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("port must be in range 0..65535")
	}
	if strings.TrimSpace(c.DataDir) == "" {
		return fmt.Errorf("data directory is required")
	}
	if _, err := parseLogLevel(c.LogLevel); err != nil {
		return err
	}
	switch c.Database.Driver {
	case DriverSQLite, "":
	case DriverPostgres:
		if strings.TrimSpace(c.Database.URL) == "" {
			return fmt.Errorf("database.url is required for the postgres driver")
		}
	default:
		return fmt.Errorf("invalid database driver %q (expected sqlite|postgres)", c.Database.Driver)
	}
	if _, err := c.LockTimeoutDuration(); err != nil {
		return err
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	if c.API.ReadToken != "" {
		if c.API.Token == "" {
			return fmt.Errorf("api.readToken requires api.token; without it the API is open")
		}
		if c.API.ReadToken == c.API.Token {
			return fmt.Errorf("api.readToken must differ from api.token")
		}
	}
	if c.ChartAccent != "" && !chart.ValidAccent(c.ChartAccent) {
		return fmt.Errorf("invalid chartAccent %q (expected #rgb or #rrggbb)", c.ChartAccent)
	}
	seen := map[int]bool{}
	for _, id := range c.Buttons {
		if id <= 0 {
			return fmt.Errorf("button id %d must be positive", id)
		}
		if seen[id] {
			return fmt.Errorf("button id %d is listed twice", id)
		}
		seen[id] = true
	}
	return nil
}

func (c Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.BindAddr, c.Port)
}

func (c Config) LockTimeoutDuration() (time.Duration, error) {
	raw := strings.TrimSpace(c.LockTimeout)
	if raw == "" {
		raw = DefaultLockTimeout
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("parse lockTimeout %q: %w", c.LockTimeout, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("lockTimeout must be > 0")
	}
	return d, nil
}

// Location is the timezone that decides which calendar day a click belongs to.
func (c Config) Location() (*time.Location, error) {
	name := strings.TrimSpace(c.Timezone)
	if name == "" {
		name = DefaultTimezone
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", name, err)
	}
	return loc, nil
}

func parseButtonList(v string) ([]int, error) {
	var out []int
	for _, part := range strings.Split(v, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.Atoi(part)
		if err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no button ids")
	}
	return out, nil
}
