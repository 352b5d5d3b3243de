package app

import (
	"os"
	"path/filepath"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
	"github.com/joho/godotenv"
)

// Storage drivers.
const (
	DriverSQLite   = "sqlite"
	DriverRedis    = "redis"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Config holds the complete client configuration, loadable from environment
// variables (STOREFRONT_ prefix), flags, a .env file or YAML config files.
type Config struct {
	APIURL   string        `default:"http://localhost:3000/api" usage:"Storefront API base URL" flag:"api-url" env:"API_URL" yaml:"api-url"`
	Timeout  time.Duration `default:"15s" usage:"Per-request timeout"`
	Storage  StorageConfig
	Throttle ThrottleConfig
}

// StorageConfig selects where client state is kept between runs.
type StorageConfig struct {
	Driver      string `default:"sqlite" usage:"State store: sqlite, redis, postgres or memory"`
	Path        string `usage:"SQLite database file (defaults to the user config dir)"`
	RedisAddr   string `default:"localhost:6379" usage:"Redis address or URL" flag:"redis-addr" env:"REDIS_ADDR" yaml:"redis-addr"`
	RedisPrefix string `default:"storefront" usage:"Redis key prefix" flag:"redis-prefix" env:"REDIS_PREFIX" yaml:"redis-prefix"`
	DatabaseURL string `usage:"PostgreSQL connection URL" flag:"database-url" env:"DATABASE_URL" yaml:"database-url"`
}

// ThrottleConfig limits outgoing requests per API host.
type ThrottleConfig struct {
	Max    int           `default:"0"  usage:"Max requests per window, 0 disables"`
	Window time.Duration `default:"1m" usage:"Throttle window duration"`
}

// LoadConfig loads configuration and returns it with the positional
// arguments left after flag parsing.
func LoadConfig(args []string) (*Config, []string, error) {
	// A missing .env is fine; the environment may already be set.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, nil, errors.Wrap(err, "load .env")
	}

	files := []string{"storefront.yaml"}
	if dir, err := os.UserConfigDir(); err == nil {
		files = append(files, filepath.Join(dir, "storefront", "config.yaml"))
	}

	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "STOREFRONT",
		Files:     files,
		Args:      args,
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, nil, errors.Wrap(err, "load config")
	}
	if err := cfg.validate(); err != nil {
		return nil, nil, err
	}
	return &cfg, loader.Flags().Args(), nil
}

func (c *Config) validate() error {
	switch c.Storage.Driver {
	case DriverSQLite:
		if c.Storage.Path == "" {
			dir, err := os.UserConfigDir()
			if err != nil {
				return errors.Wrap(err, "resolve state path")
			}
			c.Storage.Path = filepath.Join(dir, "storefront", "state.db")
		}
	case DriverPostgres:
		if c.Storage.DatabaseURL == "" {
			return errors.New("database URL is required for the postgres driver: set STOREFRONT_STORAGE_DATABASE_URL")
		}
	case DriverRedis, DriverMemory:
	default:
		return errors.Errorf("unknown storage driver %q", c.Storage.Driver)
	}
	if c.APIURL == "" {
		return errors.New("API URL is required")
	}
	return nil
}
