package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"github.com/nkiryanov/courseauth/internal/logger"
)

const (
	defaultListenAddr       = "localhost:8000"
	defaultLoggingLevel     = logger.LevelInfo
	defaultEnvironment      = logger.EnvProd
	defaultAccessTTL        = 60 // minutes
	defaultRefreshTTL       = 60 // minutes
	defaultLoginMaxAttempts = 5
	defaultLoginCooldown    = 15 // minutes
	defaultSweepInterval    = 5  // minutes
)

type Config struct {
	// Default logging level
	LogLevel string

	// Address on which the service will be run
	ListenAddr string

	// Database to connect to
	DatabaseDSN string

	// Secret key
	// Some internal parts (like signing JWT tokens) uses symmetric encryption, so this key is used for that purpose
	SecretKey string

	// Environment
	Environment string

	// Token lifetimes in minutes
	AccessTTLMinutes  int
	RefreshTTLMinutes int

	// Redis to keep login attempts and revoked access tokens
	// Both features are off if empty
	RedisURL string

	// Failed logins allowed per email within cooldown (minutes)
	LoginMaxAttempts     int
	LoginCooldownMinutes int

	// How often expired sessions are closed, minutes
	SweepIntervalMinutes int
}

func NewConfig() *Config {
	return &Config{
		LogLevel:             defaultLoggingLevel,
		ListenAddr:           defaultListenAddr,
		Environment:          defaultEnvironment,
		AccessTTLMinutes:     defaultAccessTTL,
		RefreshTTLMinutes:    defaultRefreshTTL,
		LoginMaxAttempts:     defaultLoginMaxAttempts,
		LoginCooldownMinutes: defaultLoginCooldown,
		SweepIntervalMinutes: defaultSweepInterval,
	}
}

func (c *Config) AccessTTL() time.Duration {
	return time.Duration(c.AccessTTLMinutes) * time.Minute
}

func (c *Config) RefreshTTL() time.Duration {
	return time.Duration(c.RefreshTTLMinutes) * time.Minute
}

func (c *Config) LoginCooldown() time.Duration {
	return time.Duration(c.LoginCooldownMinutes) * time.Minute
}

func (c *Config) SweepInterval() time.Duration {
	return time.Duration(c.SweepIntervalMinutes) * time.Minute
}

// Load variable from '.env' file (should be located at working directory)
func (c *Config) LoadDotEnv(getwd func() (string, error)) error {
	wd, err := getwd()
	if err != nil {
		return err
	}

	envMap, err := godotenv.Read(filepath.Join(wd, ".env"))

	switch {
	case err == nil:
		return c.LoadEnv(func(key string) string {
			return envMap[key]
		})
	case errors.Is(err, os.ErrNotExist):
		return nil
	default:
		return err
	}
}

func (c *Config) LoadEnv(getenv func(string) string) error {
	// Set option to value if it not empty
	setString := func(o *string) func(value string) error {
		return func(value string) error {
			if value != "" {
				*o = value
			}
			return nil
		}
	}
	setInt := func(o *int) func(value string) error {
		return func(value string) error {
			if value == "" {
				return nil
			}
			n, err := strconv.Atoi(value)
			if err != nil {
				return err
			}
			*o = n
			return nil
		}
	}

	envMap := map[string]func(string) error{
		"RUN_ADDRESS":        setString(&c.ListenAddr),
		"DATABASE_URI":       setString(&c.DatabaseDSN),
		"SECRET_KEY":         setString(&c.SecretKey),
		"LOG_LEVEL":          setString(&c.LogLevel),
		"ENVIRONMENT":        setString(&c.Environment),
		"REDIS_URL":          setString(&c.RedisURL),
		"ACCESS_TOKEN_TTL":   setInt(&c.AccessTTLMinutes),
		"REFRESH_TOKEN_TTL":  setInt(&c.RefreshTTLMinutes),
		"LOGIN_MAX_ATTEMPTS": setInt(&c.LoginMaxAttempts),
		"LOGIN_COOLDOWN":     setInt(&c.LoginCooldownMinutes),
		"SWEEP_INTERVAL":     setInt(&c.SweepIntervalMinutes),
	}

	var errs []error
	for key, parseFn := range envMap {
		if err := parseFn(getenv(key)); err != nil {
			errs = append(errs, fmt.Errorf("env %s: %w", key, err))
		}
	}

	return errors.Join(errs...)
}

func (c *Config) ParseFlags(args []string) error {
	fs := pflag.NewFlagSet("courseauth", pflag.ContinueOnError)

	fs.StringVarP(&c.ListenAddr, "address", "a", c.ListenAddr, "Server listen address")
	fs.StringVarP(&c.DatabaseDSN, "database", "d", c.DatabaseDSN, "Database connection string")
	fs.StringVarP(&c.SecretKey, "secret-key", "s", c.SecretKey, "Secret key")
	fs.StringVarP(&c.LogLevel, "log-level", "l", c.LogLevel, "Logging level (debug, info, warn, error)")
	fs.StringVarP(&c.Environment, "environment", "e", c.Environment, "Environment (dev, prod)")
	fs.StringVarP(&c.RedisURL, "redis", "r", c.RedisURL, "Redis URL, e.g. redis://localhost:6379/0")
	fs.IntVar(&c.AccessTTLMinutes, "access-ttl", c.AccessTTLMinutes, "Access token lifetime, minutes")
	fs.IntVar(&c.RefreshTTLMinutes, "refresh-ttl", c.RefreshTTLMinutes, "Refresh token lifetime, minutes")
	fs.IntVar(&c.LoginMaxAttempts, "login-max-attempts", c.LoginMaxAttempts, "Failed logins allowed per email within cooldown")
	fs.IntVar(&c.LoginCooldownMinutes, "login-cooldown", c.LoginCooldownMinutes, "Failed logins window, minutes")
	fs.IntVar(&c.SweepIntervalMinutes, "sweep-interval", c.SweepIntervalMinutes, "Expired sessions sweep interval, minutes")

	return fs.Parse(args)
}

func (c *Config) Validate() error {
	var errs []error

	if c.SecretKey == "" {
		errs = append(errs, errors.New("secret key is required"))
	}
	if c.DatabaseDSN == "" {
		errs = append(errs, errors.New("database dsn is required"))
	}
	if c.AccessTTLMinutes <= 0 || c.RefreshTTLMinutes <= 0 {
		errs = append(errs, errors.New("token lifetimes must be positive"))
	}
	if c.LoginMaxAttempts <= 0 || c.LoginCooldownMinutes <= 0 {
		errs = append(errs, errors.New("login attempts and cooldown must be positive"))
	}
	if c.SweepIntervalMinutes <= 0 {
		errs = append(errs, errors.New("sweep interval must be positive"))
	}

	return errors.Join(errs...)
}
