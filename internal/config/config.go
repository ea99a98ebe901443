// Package config builds the application configuration from defaults,
// an optional JSON file, environment variables and command-line flags.
// Sources are applied in that order, so CLI flags win over ENV, and ENV
// wins over the JSON file.
package config

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	env "github.com/caarlos0/env/v6"
	validator "github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Config holds every externally supplied setting of the service.
type Config struct {
	RunAddr              string        `env:"SERVER_ADDRESS" validate:"hostname_port"`
	ShortURLBase         string        `env:"DEFAULT_DOMAIN" validate:"url"`
	LogLevel             string        `env:"LOG_LEVEL" validate:"loglevel"`
	DatabaseDSN          string        `env:"DATABASE_DSN"`
	FileStoragePath      string        `env:"FILE_STORAGE_PATH"`
	DBConnectionTimeout  time.Duration `env:"DB_CONNECTION_TIMEOUT" validate:"gt=0"`
	MigrationsDir        string        `env:"MIGRATIONS_DIR"`
	SecretKey            string        `env:"SECRET_KEY" validate:"required,min=16"`
	AccessTokenLifetime  time.Duration `env:"ACCESS_TOKEN_LIFETIME" validate:"gt=0"`
	RefreshTokenLifetime time.Duration `env:"REFRESH_TOKEN_LIFETIME" validate:"gt=0"`
	AllowedOrigins       []string      `env:"CORS_ALLOWED_ORIGINS" envSeparator:"," validate:"dive,url"`
	RedisAddr            string        `env:"REDIS_ADDR" validate:"omitempty,hostname_port"`
	TrustedSubnet        string        `env:"TRUSTED_SUBNET" validate:"omitempty,cidr"`
	ShortCodeMaxAttempts int           `env:"SHORT_CODE_MAX_ATTEMPTS" validate:"gte=1"`
	ConfigFile           string        `env:"CONFIG"`
}

// fileConfig mirrors Config for the JSON file, durations are written as "10s", "720h".
type fileConfig struct {
	RunAddr              string   `json:"server_address"`
	ShortURLBase         string   `json:"default_domain"`
	LogLevel             string   `json:"log_level"`
	DatabaseDSN          string   `json:"database_dsn"`
	FileStoragePath      string   `json:"file_storage_path"`
	DBConnectionTimeout  string   `json:"db_connection_timeout"`
	MigrationsDir        string   `json:"migrations_dir"`
	SecretKey            string   `json:"secret_key"`
	AccessTokenLifetime  string   `json:"access_token_lifetime"`
	RefreshTokenLifetime string   `json:"refresh_token_lifetime"`
	AllowedOrigins       []string `json:"cors_allowed_origins"`
	RedisAddr            string   `json:"redis_addr"`
	TrustedSubnet        string   `json:"trusted_subnet"`
	ShortCodeMaxAttempts int      `json:"short_code_max_attempts"`
}

var defaultConfig = Config{
	RunAddr:              ":8080",
	ShortURLBase:         "http://localhost:8080",
	LogLevel:             "info",
	DatabaseDSN:          "",
	FileStoragePath:      "",
	DBConnectionTimeout:  10 * time.Second,
	MigrationsDir:        "cmd/shortener/migrations",
	SecretKey:            "",
	AccessTokenLifetime:  30 * 24 * time.Hour,
	RefreshTokenLifetime: 30 * 24 * time.Hour,
	AllowedOrigins:       []string{"http://localhost:5173", "http://127.0.0.1:5173"},
	RedisAddr:            "",
	TrustedSubnet:        "",
	ShortCodeMaxAttempts: 100,
}

// InitOption defines a functional option for New.
type InitOption func(*initOptions)

type initOptions struct {
	disableFlagsParsing bool
	disableDotEnv       bool
}

// WithDisableFlagsParsing makes New ignore os.Args.
func WithDisableFlagsParsing(disableFlagsParsing bool) InitOption {
	return func(options *initOptions) {
		options.disableFlagsParsing = disableFlagsParsing
	}
}

// WithDisableDotEnv makes New skip loading the .env file.
func WithDisableDotEnv(disableDotEnv bool) InitOption {
	return func(options *initOptions) {
		options.disableDotEnv = disableDotEnv
	}
}

// New builds and validates a Config.
func New(optionsProto ...InitOption) (*Config, error) {
	options := &initOptions{
		disableFlagsParsing: false,
		disableDotEnv:       false,
	}
	for _, protoOption := range optionsProto {
		protoOption(options)
	}

	if !options.disableDotEnv {
		if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
			log.Printf("Unable to load .env file: %v", err)
		}
	}

	var valuesFromFlags Config
	if !options.disableFlagsParsing {
		if err := parseFlags(&valuesFromFlags, os.Args[1:]); err != nil {
			return nil, err
		}
	}

	var valuesFromEnv Config
	if err := env.Parse(&valuesFromEnv); err != nil {
		return nil, fmt.Errorf("in internal/config/config.go/New(): error while `env.Parse()` calling: %w", err)
	}

	values := &Config{}
	applyDefaults(values, defaultConfig)

	configFile := valuesFromEnv.ConfigFile
	if valuesFromFlags.ConfigFile != "" {
		configFile = valuesFromFlags.ConfigFile
	}
	if configFile != "" {
		valuesFromFile, err := loadFile(configFile)
		if err != nil {
			return nil, err
		}
		override(values, valuesFromFile)
		values.ConfigFile = configFile
	}

	override(values, &valuesFromEnv)
	override(values, &valuesFromFlags)

	if err := values.validate(); err != nil {
		return nil, err
	}

	return values, nil
}

// BlacklistInRedis reports whether the refresh token blacklist lives in Redis.
func (c *Config) BlacklistInRedis() bool {
	return c.RedisAddr != ""
}

func parseFlags(values *Config, args []string) error {
	flags := flag.NewFlagSet("shortener", flag.ContinueOnError)
	flags.StringVar(&values.RunAddr, "a", "", "address and port to run server")
	flags.StringVar(&values.ShortURLBase, "b", "", "base domain of the resulting shortened URL")
	flags.StringVar(&values.LogLevel, "l", "", "logger level")
	flags.StringVar(&values.DatabaseDSN, "d", "", "a string with the database connection details")
	flags.StringVar(&values.FileStoragePath, "f", "", "path to the JSON file storage")
	flags.StringVar(&values.MigrationsDir, "m", "", "directory with the database migrations")
	flags.StringVar(&values.SecretKey, "k", "", "secret key used to sign tokens")
	flags.StringVar(&values.RedisAddr, "r", "", "redis address for the token blacklist")
	flags.StringVar(&values.TrustedSubnet, "t", "", "trusted subnet in CIDR notation for internal endpoints")
	flags.StringVar(&values.ConfigFile, "c", "", "path to the JSON config file")
	flags.StringVar(&values.ConfigFile, "config", "", "path to the JSON config file")

	if err := flags.Parse(args); err != nil {
		return fmt.Errorf("in internal/config/config.go/parseFlags(): error while `flags.Parse()` calling: %w", err)
	}

	return nil
}

func loadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("in internal/config/config.go/loadFile(): error while `os.ReadFile()` calling: %w", err)
	}

	var raw fileConfig
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("in internal/config/config.go/loadFile(): error while `json.Unmarshal()` calling: %w", err)
	}

	result := &Config{
		RunAddr:              raw.RunAddr,
		ShortURLBase:         raw.ShortURLBase,
		LogLevel:             raw.LogLevel,
		DatabaseDSN:          raw.DatabaseDSN,
		FileStoragePath:      raw.FileStoragePath,
		MigrationsDir:        raw.MigrationsDir,
		SecretKey:            raw.SecretKey,
		AllowedOrigins:       raw.AllowedOrigins,
		RedisAddr:            raw.RedisAddr,
		TrustedSubnet:        raw.TrustedSubnet,
		ShortCodeMaxAttempts: raw.ShortCodeMaxAttempts,
	}

	durations := []struct {
		raw string
		dst *time.Duration
	}{
		{raw.DBConnectionTimeout, &result.DBConnectionTimeout},
		{raw.AccessTokenLifetime, &result.AccessTokenLifetime},
		{raw.RefreshTokenLifetime, &result.RefreshTokenLifetime},
	}
	for _, d := range durations {
		if d.raw == "" {
			continue
		}
		parsed, err := time.ParseDuration(d.raw)
		if err != nil {
			return nil, fmt.Errorf("in internal/config/config.go/loadFile(): error while `time.ParseDuration()` calling: %w", err)
		}
		*d.dst = parsed
	}

	return result, nil
}

func applyDefaults(values *Config, defaults Config) {
	defaults.AllowedOrigins = append([]string(nil), defaults.AllowedOrigins...)
	override(&defaults, values)
	*values = defaults
}

// override copies every non-zero field of src into dst.
func override(dst, src *Config) {
	if src.RunAddr != "" {
		dst.RunAddr = src.RunAddr
	}
	if src.ShortURLBase != "" {
		dst.ShortURLBase = src.ShortURLBase
	}
	if src.LogLevel != "" {
		dst.LogLevel = src.LogLevel
	}
	if src.DatabaseDSN != "" {
		dst.DatabaseDSN = src.DatabaseDSN
	}
	if src.FileStoragePath != "" {
		dst.FileStoragePath = src.FileStoragePath
	}
	if src.DBConnectionTimeout != 0 {
		dst.DBConnectionTimeout = src.DBConnectionTimeout
	}
	if src.MigrationsDir != "" {
		dst.MigrationsDir = src.MigrationsDir
	}
	if src.SecretKey != "" {
		dst.SecretKey = src.SecretKey
	}
	if src.AccessTokenLifetime != 0 {
		dst.AccessTokenLifetime = src.AccessTokenLifetime
	}
	if src.RefreshTokenLifetime != 0 {
		dst.RefreshTokenLifetime = src.RefreshTokenLifetime
	}
	if len(src.AllowedOrigins) > 0 {
		dst.AllowedOrigins = trimAll(src.AllowedOrigins)
	}
	if src.RedisAddr != "" {
		dst.RedisAddr = src.RedisAddr
	}
	if src.TrustedSubnet != "" {
		dst.TrustedSubnet = src.TrustedSubnet
	}
	if src.ShortCodeMaxAttempts != 0 {
		dst.ShortCodeMaxAttempts = src.ShortCodeMaxAttempts
	}
	if src.ConfigFile != "" {
		dst.ConfigFile = src.ConfigFile
	}
}

func trimAll(values []string) []string {
	result := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			result = append(result, v)
		}
	}

	return result
}

func validateLogLevel(fieldLevel validator.FieldLevel) bool {
	allowedLogLevels := map[string]bool{
		"debug":  true,
		"info":   true,
		"warn":   true,
		"error":  true,
		"dpanic": true,
		"panic":  true,
		"fatal":  true,
	}

	return allowedLogLevels[fieldLevel.Field().String()]
}

func (c *Config) validate() error {
	validate := validator.New()

	if err := validate.RegisterValidation("loglevel", validateLogLevel); err != nil {
		return err
	}

	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("in internal/config/config.go/validate(): invalid configuration: %w", err)
	}

	return nil
}
