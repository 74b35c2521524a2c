package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
)

type Config struct {
	Database DatabaseConfig `toml:"database"`
	Server   ServerConfig   `toml:"server"`
	Views    ViewsConfig    `toml:"views"`
	Feed     FeedConfig     `toml:"feed"`
	Auth     AuthConfig     `toml:"auth"`
	Logging  LoggingConfig  `toml:"logging"`
}

type DatabaseConfig struct {
	Path string `toml:"path"`
}

type ServerConfig struct {
	Bind        string `toml:"bind"`
	APIEndpoint string `toml:"api_endpoint"`
}

type ViewsConfig struct {
	// RootName is the name of the implicit top-level view.
	RootName string `toml:"root_name"`
}

type FeedConfig struct {
	// Limit caps builds per exported feed. Zero means unlimited.
	Limit int `toml:"limit"`
}

type AuthConfig struct {
	// DefaultScope gates views without a dedicated scope.
	DefaultScope string `toml:"default_scope"`
}

type LoggingConfig struct {
	Level   string        `toml:"level"`
	DevFile DevFileConfig `toml:"dev_file"`
}

type DevFileConfig struct {
	Enabled bool   `toml:"enabled"`
	Dir     string `toml:"dir"`
}

func Default(dbPath string) Config {
	return Config{
		Database: DatabaseConfig{
			Path: dbPath,
		},
		Server: ServerConfig{
			Bind:        "127.0.0.1:8080",
			APIEndpoint: "/api/v1",
		},
		Views: ViewsConfig{
			RootName: "all",
		},
		Feed: FeedConfig{
			Limit: 50,
		},
		Auth: AuthConfig{
			DefaultScope: "global",
		},
		Logging: LoggingConfig{
			Level: "info",
			DevFile: DevFileConfig{
				Enabled: true,
				Dir:     "",
			},
		},
	}
}

func Load(path string, defaults Config) (Config, error) {
	cfg := defaults
	if strings.TrimSpace(path) == "" {
		return cfg, nil
	}

	content, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	if len(content) == 0 {
		return cfg, nil
	}

	if err := toml.Unmarshal(content, &cfg); err != nil {
		return Config{}, fmt.Errorf("decode toml: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.Database.Path) == "" {
		return errors.New("database path is required")
	}
	if strings.TrimSpace(c.Views.RootName) == "" {
		return errors.New("views.root_name is required")
	}
	if strings.ContainsAny(c.Views.RootName, "/\\") {
		return fmt.Errorf("views.root_name must not contain separators: %q", c.Views.RootName)
	}
	if c.Feed.Limit < 0 {
		return errors.New("feed.limit must be >= 0")
	}
	if strings.TrimSpace(c.Auth.DefaultScope) == "" {
		return errors.New("auth.default_scope is required")
	}
	return nil
}

func EnsureConfigDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
