// Package config assembles the process configuration from defaults, an
// optional .env file, BOOKSHELF_* environment variables and command-line flags,
// in that order of precedence (last wins).
package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"bookshelf.org/internal/db"
)

const envPrefix = "BOOKSHELF_"

// Store backends.
const (
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

// Config is built once at startup and passed down explicitly.
type Config struct {
	HTTPAddr    string
	GRPCAddr    string
	Environment string
	LogLevel    string
	Store       string

	DB db.Config

	TokenSecret string
	TokenIssuer string
	TokenTTL    time.Duration

	CORSOrigin string
	RateBurst  int
	RatePerSec int
	// TrustedProxy is a comma-separated list of addresses or CIDR ranges
	// whose X-Forwarded-For header is believed. Empty trusts nobody.
	TrustedProxy string
}

// Defaults returns the configuration used when nothing is set.
func Defaults() Config {
	return Config{
		HTTPAddr:    ":8080",
		GRPCAddr:    ":9090",
		Environment: "development",
		Store:       StorePostgres,
		DB: db.Config{
			Host:           "localhost",
			Port:           5432,
			Name:           "bookshelf",
			SSLMode:        "disable",
			MaxOpenConns:   10,
			AcquireTimeout: 5 * time.Second,
		},
		TokenIssuer: "bookshelf-api",
		TokenTTL:    24 * time.Hour,
		CORSOrigin:  "http://localhost:3000",
		RateBurst:   20,
		RatePerSec:  10,
	}
}

// Load builds the configuration. args are the command-line arguments without
// the program name. A missing .env file is not an error.
func Load(args []string) (Config, error) {
	cfg, err := load(args)
	if err != nil {
		return Config{}, err
	}
	return cfg, cfg.Validate()
}

// LoadDatabase is Load for tools that only talk to the database, such as the
// migration runner. Only the database settings are validated.
func LoadDatabase(args []string) (db.Config, error) {
	cfg, err := load(args)
	if err != nil {
		return db.Config{}, err
	}
	if problems := cfg.databaseProblems(); len(problems) > 0 {
		return db.Config{}, fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
	}
	return cfg.DB, nil
}

func load(args []string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	cfg := Defaults()
	if err := cfg.fromEnv(); err != nil {
		return Config{}, err
	}
	if err := cfg.fromFlags(args); err != nil {
		return Config{}, err
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
		if cfg.Environment == "development" {
			cfg.LogLevel = "debug"
		}
	}
	return cfg, nil
}

// Validate reports every missing or inconsistent setting.
func (c Config) Validate() error {
	var problems []string
	switch c.Store {
	case StorePostgres:
		problems = append(problems, c.databaseProblems()...)
	case StoreMemory:
	default:
		problems = append(problems, fmt.Sprintf("unknown store %q (want %s or %s)", c.Store, StorePostgres, StoreMemory))
	}
	if c.TokenSecret == "" {
		problems = append(problems, envPrefix+"JWT_SECRET is required")
	}
	if c.TokenTTL <= 0 {
		problems = append(problems, "token ttl must be positive")
	}
	if c.HTTPAddr == "" {
		problems = append(problems, "http address is required")
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
	}
	return nil
}

func (c Config) databaseProblems() []string {
	var problems []string
	if c.DB.Host == "" {
		problems = append(problems, envPrefix+"DB_HOST is required")
	}
	if c.DB.User == "" {
		problems = append(problems, envPrefix+"DB_USER is required")
	}
	if c.DB.Name == "" {
		problems = append(problems, envPrefix+"DB_NAME is required")
	}
	return problems
}

// CORSOrigins splits the comma-separated origin list.
func (c Config) CORSOrigins() []string { return splitList(c.CORSOrigin) }

// TrustedProxies splits the comma-separated trusted proxy list.
func (c Config) TrustedProxies() []string { return splitList(c.TrustedProxy) }

func splitList(raw string) []string {
	var out []string
	for _, o := range strings.Split(raw, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}

func (c *Config) fromEnv() error {
	str := func(key string, dst *string) {
		if v, ok := os.LookupEnv(envPrefix + key); ok {
			*dst = strings.TrimSpace(v)
		}
	}
	str("HTTP_ADDR", &c.HTTPAddr)
	str("GRPC_ADDR", &c.GRPCAddr)
	str("ENV", &c.Environment)
	str("LOG_LEVEL", &c.LogLevel)
	str("STORE", &c.Store)
	str("DB_HOST", &c.DB.Host)
	str("DB_USER", &c.DB.User)
	str("DB_PASSWORD", &c.DB.Password)
	str("DB_NAME", &c.DB.Name)
	str("DB_SSLMODE", &c.DB.SSLMode)
	str("JWT_SECRET", &c.TokenSecret)
	str("JWT_ISSUER", &c.TokenIssuer)
	str("CORS_ORIGIN", &c.CORSOrigin)
	str("TRUSTED_PROXIES", &c.TrustedProxy)

	ints := []struct {
		key string
		dst *int
	}{
		{"DB_PORT", &c.DB.Port},
		{"DB_MAX_CONNS", &c.DB.MaxOpenConns},
		{"RATE_BURST", &c.RateBurst},
		{"RATE_PER_SEC", &c.RatePerSec},
	}
	for _, it := range ints {
		v, ok := os.LookupEnv(envPrefix + it.key)
		if !ok || strings.TrimSpace(v) == "" {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%s%s: %w", envPrefix, it.key, err)
		}
		*it.dst = n
	}

	durations := []struct {
		key string
		dst *time.Duration
	}{
		{"DB_ACQUIRE_TIMEOUT", &c.DB.AcquireTimeout},
		{"JWT_TTL", &c.TokenTTL},
	}
	for _, it := range durations {
		v, ok := os.LookupEnv(envPrefix + it.key)
		if !ok || strings.TrimSpace(v) == "" {
			continue
		}
		d, err := time.ParseDuration(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%s%s: %w", envPrefix, it.key, err)
		}
		*it.dst = d
	}
	return nil
}

func (c *Config) fromFlags(args []string) error {
	fs := flag.NewFlagSet("bookshelf-api", flag.ContinueOnError)
	fs.StringVar(&c.HTTPAddr, "http", c.HTTPAddr, "HTTP listen address")
	fs.StringVar(&c.GRPCAddr, "grpc", c.GRPCAddr, "gRPC health listen address (empty disables)")
	fs.StringVar(&c.Environment, "env", c.Environment, "deployment environment")
	fs.StringVar(&c.LogLevel, "log-level", c.LogLevel, "log level: debug, info, warn, error")
	fs.StringVar(&c.Store, "store", c.Store, "credential store: postgres or memory")
	fs.StringVar(&c.DB.Host, "db-host", c.DB.Host, "database host")
	fs.IntVar(&c.DB.Port, "db-port", c.DB.Port, "database port")
	fs.StringVar(&c.DB.User, "db-user", c.DB.User, "database user")
	fs.StringVar(&c.DB.Password, "db-password", c.DB.Password, "database password")
	fs.StringVar(&c.DB.Name, "db-name", c.DB.Name, "database name")
	fs.StringVar(&c.DB.SSLMode, "db-sslmode", c.DB.SSLMode, "database sslmode")
	fs.IntVar(&c.DB.MaxOpenConns, "db-max-conns", c.DB.MaxOpenConns, "connection pool size")
	fs.DurationVar(&c.DB.AcquireTimeout, "db-acquire-timeout", c.DB.AcquireTimeout, "max wait for a pooled connection")
	fs.StringVar(&c.TokenSecret, "jwt-secret", c.TokenSecret, "token signing secret")
	fs.StringVar(&c.TokenIssuer, "jwt-issuer", c.TokenIssuer, "token issuer")
	fs.DurationVar(&c.TokenTTL, "jwt-ttl", c.TokenTTL, "token lifetime")
	fs.StringVar(&c.CORSOrigin, "cors-origin", c.CORSOrigin, "allowed browser origins, comma separated")
	fs.StringVar(&c.TrustedProxy, "trusted-proxies", c.TrustedProxy, "proxies allowed to set X-Forwarded-For, comma separated addresses or CIDRs")
	return fs.Parse(args)
}
