package app

import (
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
)

// Registry drivers.
const (
	DriverFile   = "file"
	DriverSQLite = "sqlite"
	DriverRedis  = "redis"
)

type Config struct {
	Env                 string        `env:"ENV"                   envDefault:"dev"`  // Environment (dev, staging, prod)
	LogLevel            string        `env:"LOG_LEVEL"             envDefault:"info"` // Log level (debug, info, warn, error)
	LogFormat           string        `env:"LOG_FORMAT"            envDefault:"json"` // Log format (json, text)
	Port                int           `env:"PORT"                  envDefault:"8080"`
	ShutdownGracePeriod time.Duration `env:"SHUTDOWN_GRACE_PERIOD" envDefault:"10s"`

	RegistryDriver   string `env:"REGISTRY_DRIVER"    envDefault:"file"`             // file, sqlite, redis
	RegistryPath     string `env:"REGISTRY_PATH"      envDefault:"/data/hwids.json"` // file driver path or sqlite database file
	RegistrySeedPath string `env:"REGISTRY_SEED_PATH"`                               // Optional: JSON/YAML registry imported into sqlite or redis at startup
	RedisURL         string `env:"REDIS_URL"`
	RedisKey         string `env:"REDIS_REGISTRY_KEY" envDefault:"hwidgate:registry"`

	GitHubToken      string        `env:"GITHUB_TOKEN"`
	GitHubOwner      string        `env:"GITHUB_OWNER"`
	GitHubRepo       string        `env:"GITHUB_REPO"`
	GitHubPath       string        `env:"GITHUB_PATH"        envDefault:"main.lua"`
	UpstreamBaseURL  string        `env:"UPSTREAM_BASE_URL"  envDefault:"https://api.github.com"`
	UpstreamTimeout  time.Duration `env:"UPSTREAM_TIMEOUT"   envDefault:"10s"`
	UpstreamMaxBytes int64         `env:"UPSTREAM_MAX_BYTES" envDefault:"8388608"`
	FallbackPath     string        `env:"FALLBACK_PATH"      envDefault:"/data/backup.lua"`

	AccessLogPath     string `env:"ACCESS_LOG_PATH"     envDefault:"/data/access.log"`
	AccessLogBuffer   int    `env:"ACCESS_LOG_BUFFER"   envDefault:"256"`
	TrustProxyHeaders bool   `env:"TRUST_PROXY_HEADERS" envDefault:"false"`
}

// LoadConfig reads the configuration from the process environment and
// validates it.
func LoadConfig() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, cfg.Validate()
}

// LoadConfigFrom is LoadConfig over an explicit environment.
func LoadConfigFrom(environ map[string]string) (Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, env.Options{Environment: environ}); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, cfg.Validate()
}

// Validate reports every problem at once so a misconfigured deployment can be
// fixed in one pass.
func (c Config) Validate() error {
	var errs []error

	if c.Port < 1 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("PORT %d out of range", c.Port))
	}

	switch c.RegistryDriver {
	case DriverFile, DriverSQLite:
		if c.RegistryPath == "" {
			errs = append(errs, errors.New("REGISTRY_PATH is required"))
		}
	case DriverRedis:
		if c.RedisURL == "" {
			errs = append(errs, errors.New("REDIS_URL is required for the redis driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("REGISTRY_DRIVER %q is not one of file, sqlite, redis", c.RegistryDriver))
	}
	if c.RegistrySeedPath != "" && c.RegistryDriver == DriverFile {
		errs = append(errs, errors.New("REGISTRY_SEED_PATH only applies to the sqlite and redis drivers"))
	}

	if c.GitHubToken == "" || c.GitHubOwner == "" || c.GitHubRepo == "" {
		errs = append(errs, errors.New("GITHUB_TOKEN, GITHUB_OWNER and GITHUB_REPO are required"))
	}
	if u, err := url.Parse(c.UpstreamBaseURL); err != nil || u.Scheme != "https" || u.Host == "" {
		errs = append(errs, fmt.Errorf("UPSTREAM_BASE_URL %q must be an https URL", c.UpstreamBaseURL))
	}
	if c.UpstreamTimeout <= 0 {
		errs = append(errs, errors.New("UPSTREAM_TIMEOUT must be positive"))
	}
	if c.UpstreamMaxBytes <= 0 {
		errs = append(errs, errors.New("UPSTREAM_MAX_BYTES must be positive"))
	}
	if c.AccessLogPath == "" {
		errs = append(errs, errors.New("ACCESS_LOG_PATH is required"))
	}

	return errors.Join(errs...)
}

// ProtectedFiles lists the basenames of the files this process owns. They
// are refused at the routing layer.
func (c Config) ProtectedFiles() []string {
	paths := []string{c.FallbackPath, c.AccessLogPath, c.RegistrySeedPath}
	if c.RegistryDriver != DriverRedis {
		paths = append(paths, c.RegistryPath)
	}

	var names []string
	for _, p := range paths {
		if p != "" {
			names = append(names, filepath.Base(p))
		}
	}
	return names
}
