// Package config loads the daemon configuration from YAML, with
// environment-variable expansion for secrets.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/chanops/contentflow/channel"
	"github.com/chanops/contentflow/llm"
)

// Store backends for checkpoints and articles.
const (
	BackendMemory   = "memory"
	BackendSQLite   = "sqlite"
	BackendMySQL    = "mysql"
	BackendPostgres = "postgres"
)

// Config is the full daemon configuration.
type Config struct {
	Server struct {
		Addr string `yaml:"addr"`
	} `yaml:"server"`

	Store struct {
		// Backend selects the checkpoint store: memory, sqlite,
		// mysql, or postgres.
		Backend string `yaml:"backend"`
		// Path is the database file for the sqlite backend.
		Path string `yaml:"path"`
		// DSN is the connection string for mysql/postgres backends.
		DSN string `yaml:"dsn"`
	} `yaml:"store"`

	Articles struct {
		// Backend selects the article store: memory or postgres.
		Backend string `yaml:"backend"`
		DSN     string `yaml:"dsn"`
	} `yaml:"articles"`

	Engine struct {
		// MaxSteps bounds node executions per run. 0 disables the
		// guard, restoring unbounded retry loops.
		MaxSteps int `yaml:"max_steps"`
	} `yaml:"engine"`

	Log struct {
		Level string `yaml:"level"`
		JSON  bool   `yaml:"json"`
	} `yaml:"log"`

	Tracing struct {
		Enabled bool `yaml:"enabled"`
	} `yaml:"tracing"`

	Endpoints []llm.Endpoint    `yaml:"endpoints"`
	Channels  []channel.Channel `yaml:"channels"`
}

// Default returns a config suitable for local development.
func Default() Config {
	var cfg Config
	cfg.Server.Addr = ":8080"
	cfg.Store.Backend = BackendMemory
	cfg.Articles.Backend = BackendMemory
	cfg.Engine.MaxSteps = 50
	cfg.Log.Level = "info"
	return cfg
}

// Load reads and parses the YAML file at path. Values like
// ${OPENAI_API_KEY} are expanded from the environment before parsing,
// so credentials stay out of the file itself.
func Load(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("reading config: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(raw))), &cfg); err != nil {
		return Config{}, fmt.Errorf("parsing config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	switch c.Store.Backend {
	case BackendMemory:
	case BackendSQLite:
		if c.Store.Path == "" {
			return fmt.Errorf("store: sqlite backend requires a path")
		}
	case BackendMySQL, BackendPostgres:
		if c.Store.DSN == "" {
			return fmt.Errorf("store: %s backend requires a dsn", c.Store.Backend)
		}
	default:
		return fmt.Errorf("store: unknown backend %q", c.Store.Backend)
	}

	switch c.Articles.Backend {
	case BackendMemory:
	case BackendPostgres:
		if c.Articles.DSN == "" {
			return fmt.Errorf("articles: postgres backend requires a dsn")
		}
	default:
		return fmt.Errorf("articles: unknown backend %q", c.Articles.Backend)
	}

	for i, ep := range c.Endpoints {
		if ep.ID == "" {
			return fmt.Errorf("endpoints[%d]: id is required", i)
		}
	}
	return nil
}
