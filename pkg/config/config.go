// Package config loads harness configuration from a YAML file, CRASHLOOP_*
// environment variables and command-line flags through viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/psantana5/crashloop/pkg/kv"
	"github.com/psantana5/crashloop/pkg/logging"
	tlsutil "github.com/psantana5/crashloop/pkg/tls"
	"github.com/psantana5/crashloop/pkg/tracing"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable, so aws.endpoint_url
// is read from CRASHLOOP_AWS_ENDPOINT_URL.
const EnvPrefix = "CRASHLOOP"

// Default function targets of the demo deployment.
const (
	DefaultFlowstateTarget = "arn:aws:lambda:us-east-1:000000000000:function:demo_purchase_function"
	DefaultRegularTarget   = "arn:aws:lambda:us-east-1:000000000000:function:demo_purchase_function_no_flowstate:4"
)

// Config is the complete harness configuration
type Config struct {
	AWS     AWSConfig      `mapstructure:"aws" yaml:"aws"`
	Invoke  InvokeConfig   `mapstructure:"invoke" yaml:"invoke"`
	KV      KVConfig       `mapstructure:"kv" yaml:"kv"`
	Server  ServerConfig   `mapstructure:"server" yaml:"server"`
	Tracing tracing.Config `mapstructure:"tracing" yaml:"tracing"`
	Logging LoggingConfig  `mapstructure:"logging" yaml:"logging"`
}

// AWSConfig selects the region and endpoint shared by Lambda and DynamoDB.
type AWSConfig struct {
	Region          string `mapstructure:"region" yaml:"region"`
	EndpointURL     string `mapstructure:"endpoint_url" yaml:"endpoint_url"`
	Profile         string `mapstructure:"profile" yaml:"profile,omitempty"`
	AccessKeyID     string `mapstructure:"access_key_id" yaml:"access_key_id,omitempty"`
	SecretAccessKey string `mapstructure:"secret_access_key" yaml:"-"`
}

// InvokeConfig controls the retry loop and the function targets.
type InvokeConfig struct {
	RetryDelay      time.Duration `mapstructure:"retry_delay" yaml:"retry_delay"`
	MaxAttempts     int           `mapstructure:"max_attempts" yaml:"max_attempts"`
	Timeout         time.Duration `mapstructure:"timeout" yaml:"timeout"`
	FlowstateTarget string        `mapstructure:"flowstate_target" yaml:"flowstate_target"`
	RegularTarget   string        `mapstructure:"regular_target" yaml:"regular_target"`
	// APIKey is sent as a bearer token by the HTTP invoker.
	APIKey string         `mapstructure:"api_key" yaml:"-"`
	TLS    tlsutil.Config `mapstructure:"tls" yaml:"tls"`
}

// KVConfig selects the key-value backend.
type KVConfig struct {
	Backend           string `mapstructure:"backend" yaml:"backend"`
	SQLitePath        string `mapstructure:"sqlite_path" yaml:"sqlite_path,omitempty"`
	PostgresDSN       string `mapstructure:"postgres_dsn" yaml:"-"`
	RedisAddr         string `mapstructure:"redis_addr" yaml:"redis_addr,omitempty"`
	RedisPassword     string `mapstructure:"redis_password" yaml:"-"`
	RedisDB           int    `mapstructure:"redis_db" yaml:"redis_db"`
	CrashTable        string `mapstructure:"crash_table" yaml:"crash_table"`
	ConditionalToggle bool   `mapstructure:"conditional_toggle" yaml:"conditional_toggle"`
}

// ServerConfig configures `crashloop serve`.
type ServerConfig struct {
	Port            int            `mapstructure:"port" yaml:"port"`
	URL             string         `mapstructure:"url" yaml:"url"`
	APIKey          string         `mapstructure:"api_key" yaml:"-"`
	RateLimit       float64        `mapstructure:"rate_limit" yaml:"rate_limit"`
	RateBurst       int            `mapstructure:"rate_burst" yaml:"rate_burst"`
	ShutdownTimeout time.Duration  `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
	TLS             tlsutil.Config `mapstructure:"tls" yaml:"tls"`
}

// LoggingConfig configures pkg/logging.
type LoggingConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
	File   string `mapstructure:"file" yaml:"file,omitempty"`
}

// SetDefaults registers every key with its default. Keys must be known to
// viper before Unmarshal so AutomaticEnv can override them.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("aws.region", "us-east-1")
	v.SetDefault("aws.endpoint_url", "http://localhost:4566")
	v.SetDefault("aws.profile", "")
	v.SetDefault("aws.access_key_id", "")
	v.SetDefault("aws.secret_access_key", "")

	v.SetDefault("invoke.retry_delay", 5*time.Second)
	v.SetDefault("invoke.max_attempts", 0)
	v.SetDefault("invoke.timeout", 30*time.Second)
	v.SetDefault("invoke.flowstate_target", DefaultFlowstateTarget)
	v.SetDefault("invoke.regular_target", DefaultRegularTarget)
	v.SetDefault("invoke.api_key", "")
	setTLSDefaults(v, "invoke.tls")

	v.SetDefault("kv.backend", kv.BackendDynamoDB)
	v.SetDefault("kv.sqlite_path", "")
	v.SetDefault("kv.postgres_dsn", "")
	v.SetDefault("kv.redis_addr", "")
	v.SetDefault("kv.redis_password", "")
	v.SetDefault("kv.redis_db", 0)
	v.SetDefault("kv.crash_table", "crash_table")
	v.SetDefault("kv.conditional_toggle", false)

	v.SetDefault("server.port", 3000)
	v.SetDefault("server.url", "http://localhost:3000")
	v.SetDefault("server.api_key", "")
	v.SetDefault("server.rate_limit", 50.0)
	v.SetDefault("server.rate_burst", 100)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	setTLSDefaults(v, "server.tls")

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.service_name", "crashloop")
	v.SetDefault("tracing.service_version", "dev")
	v.SetDefault("tracing.environment", "development")
	v.SetDefault("tracing.otlp_endpoint", "localhost:4318")
	v.SetDefault("tracing.insecure", true)
	v.SetDefault("tracing.sample_ratio", 1.0)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("logging.file", "")
}

func setTLSDefaults(v *viper.Viper, prefix string) {
	v.SetDefault(prefix+".cert_file", "")
	v.SetDefault(prefix+".key_file", "")
	v.SetDefault(prefix+".ca_file", "")
	v.SetDefault(prefix+".require_client_cert", false)
}

// BindEnv enables CRASHLOOP_* overrides for every nested key.
func BindEnv(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// Conventional AWS variable names are honoured as well.
	v.BindEnv("aws.endpoint_url", EnvPrefix+"_AWS_ENDPOINT_URL", "AWS_ENDPOINT_URL")
	v.BindEnv("aws.region", EnvPrefix+"_AWS_REGION", "AWS_REGION")
}

// New returns a viper instance with defaults and environment bindings.
func New() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	BindEnv(v)
	return v
}

// Load decodes v into a Config and validates it.
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ErrEphemeralStore is returned when a command that exits after one
// operation is pointed at the memory backend.
var ErrEphemeralStore = errors.New("kv.backend memory does not persist between commands")

// Persistent reports whether records survive the process. Only serve
// can use the memory backend.
func (c KVConfig) Persistent() bool {
	return c.Backend != kv.BackendMemory
}

// Validate checks the configuration for values the harness cannot run with.
func (c *Config) Validate() error {
	if c.AWS.Region == "" {
		return fmt.Errorf("aws.region must not be empty")
	}
	if c.Invoke.RetryDelay < 0 {
		return fmt.Errorf("invoke.retry_delay must not be negative, got %s", c.Invoke.RetryDelay)
	}
	if c.Invoke.MaxAttempts < 0 {
		return fmt.Errorf("invoke.max_attempts must not be negative, got %d", c.Invoke.MaxAttempts)
	}

	switch c.KV.Backend {
	case kv.BackendMemory, kv.BackendDynamoDB:
	case kv.BackendSQLite:
		if c.KV.SQLitePath == "" {
			return fmt.Errorf("kv.sqlite_path is required for the sqlite backend")
		}
	case kv.BackendPostgres:
		if c.KV.PostgresDSN == "" {
			return fmt.Errorf("kv.postgres_dsn is required for the postgres backend")
		}
	case kv.BackendRedis:
		if c.KV.RedisAddr == "" {
			return fmt.Errorf("kv.redis_addr is required for the redis backend")
		}
	default:
		return fmt.Errorf("unknown kv.backend %q (valid: memory, sqlite, postgres, dynamodb, redis)", c.KV.Backend)
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Server.TLS.CertFile != "" && c.Server.TLS.KeyFile == "" {
		return fmt.Errorf("server.tls.key_file is required with server.tls.cert_file")
	}
	if c.Server.RateLimit < 0 || c.Server.RateBurst < 0 {
		return fmt.Errorf("server.rate_limit and server.rate_burst must not be negative")
	}

	switch strings.ToLower(c.Logging.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json, got %q", c.Logging.Format)
	}
	return nil
}

// Logger builds the logger described by the logging section.
func (c *Config) Logger() (*logging.Logger, error) {
	level := logging.ParseLevel(c.Logging.Level)
	jsonFormat := strings.EqualFold(c.Logging.Format, "json")
	if c.Logging.File != "" {
		return logging.NewFileLogger(c.Logging.File, level, jsonFormat)
	}
	return logging.NewLogger(level, jsonFormat), nil
}

// KVOptions translates the kv section for kv.Open. The AWS fields are
// filled by the caller once the AWS config is loaded.
func (c *Config) KVOptions() kv.Options {
	return kv.Options{
		Backend:    c.KV.Backend,
		SQLitePath: c.KV.SQLitePath,
		Postgres: kv.PostgresConfig{
			DSN: c.KV.PostgresDSN,
		},
		RedisAddr:      c.KV.RedisAddr,
		RedisPassword:  c.KV.RedisPassword,
		RedisDB:        c.KV.RedisDB,
		DynamoEndpoint: c.AWS.EndpointURL,
	}
}
