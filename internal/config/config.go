// Package config loads server settings from defaults, an optional config
// file and SGST_-prefixed environment variables, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/pedro17pedroo/SGST-sub001/internal/server/gate"
	"github.com/pedro17pedroo/SGST-sub001/internal/server/notify"
	"github.com/pedro17pedroo/SGST-sub001/internal/server/store"
)

const (
	// EnvPrefix prefixes every environment override, e.g. SGST_SERVER_PORT.
	EnvPrefix = "SGST"
	// FileName is the config file looked up in the working directory when no
	// explicit path is given.
	FileName = "sgst"
)

// Config is the fully resolved server configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Catalogue CatalogueConfig `mapstructure:"catalogue"`
	Policy    PolicyConfig    `mapstructure:"policy"`
	Gate      GateConfig      `mapstructure:"gate"`
	Store     StoreConfig     `mapstructure:"store"`
	Notify    NotifyConfig    `mapstructure:"notify"`
	Log       LogConfig       `mapstructure:"log"`
}

type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	APIPrefix       string        `mapstructure:"api_prefix"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// Addr returns the listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf(":%d", s.Port)
}

type CatalogueConfig struct {
	// Path points at a YAML catalogue. Empty means the compiled-in table.
	Path string `mapstructure:"path"`
}

type PolicyConfig struct {
	TransitiveDisable bool `mapstructure:"transitive_disable"`
}

type GateConfig struct {
	AlwaysAllow []string `mapstructure:"always_allow"`
}

// GateAllowList returns the prefixes the route gate always lets through. The
// module administration endpoints under server.api_prefix are always on it.
func (c *Config) GateAllowList() []string {
	allow := c.Gate.AlwaysAllow
	if len(allow) == 0 {
		allow = gate.DefaultAlwaysAllow
	}
	admin := strings.TrimSuffix(c.Server.APIPrefix, "/") + "/modules"
	if slices.Contains(allow, admin) {
		return slices.Clone(allow)
	}
	return append(slices.Clone(allow), admin)
}

type StoreConfig struct {
	Backend    string      `mapstructure:"backend"`
	SQLitePath string      `mapstructure:"sqlite_path"`
	Neo4j      Neo4jConfig `mapstructure:"neo4j"`
}

type Neo4jConfig struct {
	URI      string `mapstructure:"uri"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
}

// StoreOptions converts the store section into store.Config.
func (s StoreConfig) StoreOptions() store.Config {
	return store.Config{
		Backend:    s.Backend,
		SQLitePath: s.SQLitePath,
		Neo4j: store.Neo4jConfig{
			URI:      s.Neo4j.URI,
			Username: s.Neo4j.Username,
			Password: s.Neo4j.Password,
			Database: s.Neo4j.Database,
		},
	}
}

type NotifyConfig struct {
	// Webhooks receive a POST for every persisted module toggle.
	Webhooks []string      `mapstructure:"webhooks"`
	Timeout  time.Duration `mapstructure:"timeout"`
	Backoff  time.Duration `mapstructure:"backoff"`
}

// NotifierOptions converts the notify section into notify.Config.
func (n NotifyConfig) NotifierOptions() notify.Config {
	return notify.Config{
		Webhooks: n.Webhooks,
		Timeout:  n.Timeout,
		Backoff:  n.Backoff,
	}
}

type LogConfig struct {
	Level string `mapstructure:"level"`
	JSON  bool   `mapstructure:"json"`
}

// Default returns the configuration used when nothing overrides it.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Port:            8080,
			APIPrefix:       "/api",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 5 * time.Second,
		},
		Gate: GateConfig{
			AlwaysAllow: append([]string{}, gate.DefaultAlwaysAllow...),
		},
		Store: StoreConfig{
			Backend:    store.BackendSQLite,
			SQLitePath: "sgst.db",
			Neo4j: Neo4jConfig{
				URI:      "neo4j://localhost:7687",
				Username: "neo4j",
				Database: "neo4j",
			},
		},
		Notify: NotifyConfig{
			Webhooks: []string{},
			Timeout:  10 * time.Second,
			Backoff:  time.Second,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load resolves the configuration. If path is empty, ./sgst.{yaml,json,toml}
// is read when present; an explicit path must exist.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v, Default())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	} else {
		v.SetConfigName(FileName)
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("reading config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if cfg.Notify.Webhooks == nil {
		cfg.Notify.Webhooks = []string{}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper, d Config) {
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.api_prefix", d.Server.APIPrefix)
	v.SetDefault("server.read_timeout", d.Server.ReadTimeout)
	v.SetDefault("server.write_timeout", d.Server.WriteTimeout)
	v.SetDefault("server.idle_timeout", d.Server.IdleTimeout)
	v.SetDefault("server.shutdown_timeout", d.Server.ShutdownTimeout)
	v.SetDefault("catalogue.path", d.Catalogue.Path)
	v.SetDefault("policy.transitive_disable", d.Policy.TransitiveDisable)
	v.SetDefault("gate.always_allow", d.Gate.AlwaysAllow)
	v.SetDefault("store.backend", d.Store.Backend)
	v.SetDefault("store.sqlite_path", d.Store.SQLitePath)
	v.SetDefault("store.neo4j.uri", d.Store.Neo4j.URI)
	v.SetDefault("store.neo4j.username", d.Store.Neo4j.Username)
	v.SetDefault("store.neo4j.password", d.Store.Neo4j.Password)
	v.SetDefault("store.neo4j.database", d.Store.Neo4j.Database)
	v.SetDefault("notify.webhooks", d.Notify.Webhooks)
	v.SetDefault("notify.timeout", d.Notify.Timeout)
	v.SetDefault("notify.backoff", d.Notify.Backoff)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.json", d.Log.JSON)
}

// Validate rejects settings the server cannot start with.
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	if !strings.HasPrefix(c.Server.APIPrefix, "/") {
		errs = append(errs, fmt.Errorf("server.api_prefix %q must start with /", c.Server.APIPrefix))
	}
	for _, u := range c.Notify.Webhooks {
		if !strings.HasPrefix(u, "http://") && !strings.HasPrefix(u, "https://") {
			errs = append(errs, fmt.Errorf("notify.webhooks: %q is not an http(s) URL", u))
		}
	}
	switch c.Store.Backend {
	case store.BackendSQLite, store.BackendNeo4j, store.BackendMemory:
	default:
		errs = append(errs, fmt.Errorf("store.backend %q: want sqlite, neo4j or memory", c.Store.Backend))
	}
	return errors.Join(errs...)
}
