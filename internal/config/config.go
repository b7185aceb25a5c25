package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/netip"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

type AuthConfig struct {
	Realm         string
	MaxFailures   int
	FailureWindow time.Duration
	// TrustedProxies are the peers whose forwarding headers name the client.
	TrustedProxies []netip.Prefix
}

type StoreConfig struct {
	Driver     string
	SQLitePath string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	CacheTTL time.Duration
}

func (rc RedisConfig) Enabled() bool {
	return rc.Addr != ""
}

type LoggerConfig struct {
	Environment string
	LogLevel    string
	LogFile     string
}

type AppConfig struct {
	Environment string
	Server      struct {
		Address string
	}
	Auth    AuthConfig
	Store   StoreConfig
	PSQL    PostgresConfig
	Redis   RedisConfig
	Logging LoggerConfig
	Metrics struct {
		Enabled bool
	}
}

func (cfg *AppConfig) IsProduction() bool {
	return cfg.Environment == "production"
}

// LoadEnvConfig reads the optional env files and builds the config from the
// process environment. A missing env file is not an error.
func LoadEnvConfig(envFiles ...string) (*AppConfig, error) {
	var cfg AppConfig
	err := godotenv.Load(envFiles...)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("loading .env file: %w", err)
	}

	cfg.Environment = GetEnvWithDefault("ENVIRONMENT", "development")
	cfg.Server.Address = GetEnvWithDefault("SERVER_ADDRESS", ":8080")

	// Auth
	cfg.Auth.Realm = GetEnvWithDefault("AUTH_REALM", "memex del v1 API")
	cfg.Auth.MaxFailures, err = getEnvInt("AUTH_MAX_FAILURES", 10)
	if err != nil {
		return nil, err
	}
	cfg.Auth.FailureWindow, err = getEnvDuration("AUTH_FAILURE_WINDOW", 15*time.Minute)
	if err != nil {
		return nil, err
	}
	cfg.Auth.TrustedProxies, err = getEnvPrefixes("AUTH_TRUSTED_PROXIES")
	if err != nil {
		return nil, err
	}

	// Store
	cfg.Store = StoreConfig{
		Driver:     GetEnvWithDefault("STORE_DRIVER", DriverPostgres),
		SQLitePath: GetEnvWithDefault("SQLITE_PATH", "./data/memex.db"),
	}
	if cfg.Store.Driver != DriverPostgres && cfg.Store.Driver != DriverSQLite {
		return nil, fmt.Errorf("unknown STORE_DRIVER %q", cfg.Store.Driver)
	}
	cfg.PSQL = DefaultPostgresConfig()

	// Redis
	cfg.Redis.Addr = os.Getenv("REDIS_ADDR")
	cfg.Redis.Password = os.Getenv("REDIS_PASSWORD")
	cfg.Redis.DB, err = getEnvInt("REDIS_DB", 0)
	if err != nil {
		return nil, err
	}
	cfg.Redis.CacheTTL, err = getEnvDuration("REDIS_CACHE_TTL", 10*time.Minute)
	if err != nil {
		return nil, err
	}

	cfg.Logging = LoggerConfig{
		Environment: cfg.Environment,
		LogLevel:    GetEnvWithDefault("LOG_LEVEL", "info"),
		LogFile:     os.Getenv("LOG_FILE"),
	}

	cfg.Metrics.Enabled = GetEnvWithDefault("METRICS_ENABLED", "true") == "true"

	return &cfg, nil
}

func GetEnvWithDefault(envName, defaultValue string) string {
	if value := os.Getenv(envName); value != "" {
		return value
	}
	return defaultValue
}

func GetEnvOrDie(envName string) string {
	value := os.Getenv(envName)
	if value == "" {
		panic("Environment variable " + envName + " is not set")
	}
	return value
}

func getEnvInt(envName string, defaultValue int) (int, error) {
	value := os.Getenv(envName)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("parsing %s: %w", envName, err)
	}
	return n, nil
}

func getEnvDuration(envName string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(envName)
	if value == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("parsing %s: %w", envName, err)
	}
	return d, nil
}

// getEnvPrefixes reads a comma separated list of CIDRs. Bare addresses are
// taken as single host prefixes.
func getEnvPrefixes(envName string) ([]netip.Prefix, error) {
	var prefixes []netip.Prefix
	for _, field := range strings.Split(os.Getenv(envName), ",") {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		if addr, err := netip.ParseAddr(field); err == nil {
			addr = addr.Unmap()
			prefixes = append(prefixes, netip.PrefixFrom(addr, addr.BitLen()))
			continue
		}
		prefix, err := netip.ParsePrefix(field)
		if err != nil {
			return nil, fmt.Errorf("parsing %s: %w", envName, err)
		}
		prefixes = append(prefixes, prefix.Masked())
	}
	return prefixes, nil
}
