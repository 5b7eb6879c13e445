package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	defaultConfigRelativePath = ".tally/config.yaml"

	// Files carrying a bearer token are never written wider than this.
	tokenFileMode fs.FileMode = 0o600
)

// DefaultPath returns ~/.tally/config.yaml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err == nil && strings.TrimSpace(home) == "" {
		err = errors.New("empty path")
	}
	if err != nil {
		return "", fmt.Errorf("resolve user home directory: %w", err)
	}
	return filepath.Join(home, defaultConfigRelativePath), nil
}

// ResolvePath picks the --config flag, then TALLYCTL_CONFIG, then the default.
func ResolvePath(explicit string) (string, error) {
	for _, candidate := range []string{explicit, os.Getenv(EnvConfigPath)} {
		if path := strings.TrimSpace(candidate); path != "" {
			return path, nil
		}
	}
	return DefaultPath()
}

// Load resolves the config path and loads it. The path is returned even on
// error so callers can name the file they tried.
func Load(explicitPath string) (Config, string, error) {
	path, err := ResolvePath(explicitPath)
	if err != nil {
		return Config{}, "", err
	}
	cfg, err := LoadFromPath(path)
	return cfg, path, err
}

// LoadFromPath reads, strictly decodes and validates a tallyctl config file.
func LoadFromPath(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("config file not found at %s (create it or set %s)", path, EnvConfigPath)
	}
	if err != nil {
		return Config{}, fmt.Errorf("read config file %s: %w", path, err)
	}

	cfg, err := decodeConfig(b)
	if err != nil {
		return Config{}, fmt.Errorf("parse config file %s: %w", path, err)
	}
	if err := checkAPIVersion(cfg.APIVersion); err != nil {
		return Config{}, fmt.Errorf("config file %s: %w", path, err)
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("validate config file %s: %w", path, err)
	}
	return cfg, nil
}

// decodeConfig rejects unknown keys so a misspelled "current_context" or
// "tokn" fails loudly instead of silently dropping the value. An empty file
// decodes to an empty config.
func decodeConfig(b []byte) (Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, err
	}
	return cfg, nil
}

func checkAPIVersion(v string) error {
	v = strings.TrimSpace(v)
	if v == "" || v == DefaultAPIVersion {
		return nil
	}
	return fmt.Errorf("unsupported apiVersion %q (expected %s)", v, DefaultAPIVersion)
}

// Save validates cfg and atomically replaces the file at path. Existing
// permissions are kept unless a context stores a token, in which case the
// file is tightened to owner-only.
func Save(path string, cfg Config) error {
	path = strings.TrimSpace(path)
	if path == "" {
		return fmt.Errorf("config path is required")
	}

	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("validate config file %s: %w", path, err)
	}

	data, err := yaml.Marshal(&cfg)
	if err != nil {
		return fmt.Errorf("marshal config file %s: %w", path, err)
	}

	perm, err := savePerm(path, cfg.hasTokens())
	if err != nil {
		return err
	}
	return writeFileAtomic(path, data, perm)
}

func savePerm(path string, secret bool) (fs.FileMode, error) {
	info, err := os.Stat(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return tokenFileMode, nil
	case err != nil:
		return 0, fmt.Errorf("stat config file %s: %w", path, err)
	}
	perm := info.Mode().Perm()
	if secret {
		perm &= tokenFileMode
	}
	return perm, nil
}

func writeFileAtomic(path string, data []byte, perm fs.FileMode) (err error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create config directory %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".config-*.yaml")
	if err != nil {
		return fmt.Errorf("create temp config in %s: %w", dir, err)
	}
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	if err := tmp.Chmod(perm); err != nil {
		return fmt.Errorf("chmod temp config %s: %w", tmp.Name(), err)
	}
	if _, err := tmp.Write(data); err != nil {
		return fmt.Errorf("write temp config %s: %w", tmp.Name(), err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp config %s: %w", tmp.Name(), err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replace config file %s: %w", path, err)
	}
	return nil
}
