// Package config loads the request-cache YAML configuration file.
//
//	origin: https://api.example.com
//	port: 8080
//	cache:
//	  defaultTtl: 10m
//	  maxTotalSize: 52428800
//	  maxEntries: 1000
//	  cleanupInterval: 1m
//	  eviction: lru
//	rules:
//	  - prefix: /api/services
//	    strategy: stale-while-revalidate
//	    ttl: 15m
//	transform:
//	  - prefix: /api/static
//	    default: max-age=3600
//	persistence:
//	  backend: sqlite
//	  file: cache.db
//	admin:
//	  port: 8081
package config

import (
	"os"
	"time"

	"github.com/always-cache/request-cache/cache"
	transformer "github.com/always-cache/request-cache/pkg/response-transformer"
	"github.com/always-cache/request-cache/pkg/strategy"

	"github.com/jmgilman/go/errors"
	"gopkg.in/yaml.v3"
)

// Persistence backends.
const (
	BackendNone   = "none"
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
)

type Config struct {
	// URL of the origin server.
	Origin string `yaml:"origin"`
	// Hostname to use for HTTP requests and TLS negotiation.
	Host  string         `yaml:"host"`
	Port  int            `yaml:"port"`
	Cache cache.Config   `yaml:"cache"`
	Rules strategy.Rules `yaml:"rules"`
	// Header rewrites applied to origin responses before they are stored.
	Transform transformer.Rules `yaml:"transform"`
	// Identical notifications within this window are logged once.
	NotifyWindow        time.Duration `yaml:"notifyWindow"`
	DisableInvalidation bool          `yaml:"disableInvalidation"`
	Persistence         Persistence   `yaml:"persistence"`
	Admin               Admin         `yaml:"admin"`
}

type Persistence struct {
	Backend string `yaml:"backend"`
	// SQLite db file; "memory" for an in-memory db.
	File     string `yaml:"file"`
	RedisURL string `yaml:"redisUrl"`
	RedisKey string `yaml:"redisKey"`
}

type Admin struct {
	// Zero disables the admin API.
	Port int `yaml:"port"`
}

// Default returns the configuration used for everything the file does not set.
func Default() Config {
	return Config{
		Port:         8080,
		Cache:        cache.DefaultConfig(),
		NotifyWindow: time.Minute,
		Persistence: Persistence{
			Backend: BackendSQLite,
			File:    "cache.db",
		},
		Admin: Admin{Port: 8081},
	}
}

// Load reads the given file on top of the defaults.
func Load(filename string) (Config, error) {
	config := Default()
	configBytes, err := os.ReadFile(filename)
	if err != nil {
		return config, errors.Wrapf(err, errors.CodeNotFound, "could not read config file %s", filename)
	}
	if err := yaml.Unmarshal(configBytes, &config); err != nil {
		return config, errors.Wrapf(err, errors.CodeInvalidConfig, "could not parse config file %s", filename)
	}
	return config, config.Validate()
}

func (c Config) Validate() error {
	if err := c.Cache.Validate(); err != nil {
		return err
	}
	if c.Port <= 0 {
		return errors.Newf(errors.CodeInvalidConfig, "invalid port %d", c.Port)
	}
	if c.Admin.Port < 0 || (c.Admin.Port != 0 && c.Admin.Port == c.Port) {
		return errors.Newf(errors.CodeInvalidConfig, "invalid admin port %d", c.Admin.Port)
	}
	for _, rule := range c.Rules {
		if rule.Strategy == nil && rule.TTL <= 0 {
			return errors.Newf(errors.CodeInvalidConfig, "rule for %q sets neither strategy nor ttl", rule.Prefix)
		}
	}
	switch c.Persistence.Backend {
	case "", BackendNone, BackendSQLite:
	case BackendRedis:
		if c.Persistence.RedisURL == "" {
			return errors.New(errors.CodeInvalidConfig, "redis persistence needs redisUrl")
		}
	default:
		return errors.Newf(errors.CodeInvalidConfig, "unknown persistence backend %q", c.Persistence.Backend)
	}
	return nil
}

// OpenPersister opens the configured persistence backend.
// It returns nil if persistence is disabled.
func (c Config) OpenPersister() (cache.Persister, error) {
	switch c.Persistence.Backend {
	case BackendSQLite:
		file := c.Persistence.File
		if file == "memory" {
			file = ""
		}
		p, err := cache.NewSQLitePersister(file)
		if err != nil {
			return nil, err
		}
		return p, nil
	case BackendRedis:
		p, err := cache.NewRedisPersisterURL(c.Persistence.RedisURL, c.Persistence.RedisKey)
		if err != nil {
			return nil, err
		}
		return p, nil
	}
	return nil, nil
}
