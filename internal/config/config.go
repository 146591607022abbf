// Package config loads hookrelay settings from .env files, environment
// variables, an optional YAML file and command-line flags.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/ohler55/ojg/jp"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"hookrelay/internal/constants"
)

const EnvPrefix = "HOOKRELAY"

// FlagKeys maps command-line flag names to configuration keys.
var FlagKeys = map[string]string{
	"host":                  "host",
	"port":                  "port",
	"static-dir":            "static_dir",
	"tls-port":              "tls.port",
	"tls-cert":              "tls.cert_file",
	"tls-key":               "tls.key_file",
	"log-level":             "log.level",
	"log-format":            "log.format",
	"enable-policy-updates": "control.enable_policy_updates",
}

// Config holds the server configuration.
type Config struct {
	Host      string        `mapstructure:"host"`
	Port      int           `mapstructure:"port"`
	StaticDir string        `mapstructure:"static_dir"`
	TLS       TLSConfig     `mapstructure:"tls"`
	Log       LogConfig     `mapstructure:"log"`
	Stream    StreamConfig  `mapstructure:"stream"`
	Hook      HookConfig    `mapstructure:"hook"`
	Control   ControlConfig `mapstructure:"control"`
	Redis     RedisConfig   `mapstructure:"redis"`
}

// TLSConfig describes the optional TLS listener. It is enabled when Port is
// non-zero and either a certificate pair or ACME domains are configured.
type TLSConfig struct {
	Port         int      `mapstructure:"port"`
	CertFile     string   `mapstructure:"cert_file"`
	KeyFile      string   `mapstructure:"key_file"`
	ACMEDomains  []string `mapstructure:"acme_domains"`
	ACMECacheDir string   `mapstructure:"acme_cache_dir"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type StreamConfig struct {
	// Buffer is the number of events queued per session before publishers wait.
	Buffer int `mapstructure:"buffer"`
	// Keepalive is the interval between comment frames. Zero disables them.
	Keepalive time.Duration `mapstructure:"keepalive"`
}

type HookConfig struct {
	MaxBodyBytes    int64  `mapstructure:"max_body_bytes"`
	CorrelationPath string `mapstructure:"correlation_path"`
}

type ControlConfig struct {
	EnablePolicyUpdates bool `mapstructure:"enable_policy_updates"`
}

// RedisConfig selects the Redis hook log backend when Host is set.
type RedisConfig struct {
	Host     string        `mapstructure:"host"`
	Port     string        `mapstructure:"port"`
	Username string        `mapstructure:"username"`
	Password string        `mapstructure:"password"`
	TTL      time.Duration `mapstructure:"ttl"`
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		Host:      constants.DefaultHost,
		Port:      constants.DefaultPort,
		StaticDir: constants.DefaultStaticDir,
		TLS: TLSConfig{
			ACMECacheDir: constants.DefaultACMECacheDir,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
		Stream: StreamConfig{
			Buffer: constants.DefaultStreamBuffer,
		},
		Hook: HookConfig{
			MaxBodyBytes:    constants.DefaultMaxBodyBytes,
			CorrelationPath: constants.DefaultCorrelationPath,
		},
		Redis: RedisConfig{
			Port: "6379",
			TTL:  constants.DefaultRedisTTL,
		},
	}
}

// Load reads configuration. A .env file in the working directory is loaded
// first; configFile may be empty. flags, when non-nil, take precedence over
// everything else.
func Load(configFile string, flags *pflag.FlagSet) (*Config, error) {
	if err := godotenv.Load(); err != nil && !isNotExist(err) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := newViper()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", configFile, err)
		}
	}

	if flags != nil {
		for name, key := range FlagKeys {
			f := flags.Lookup(name)
			if f == nil {
				continue
			}
			if err := v.BindPFlag(key, f); err != nil {
				return nil, fmt.Errorf("failed to bind flag %s: %w", name, err)
			}
		}
	}

	cfg := Default()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	// SERVER_PORT is what older deployment scripts export.
	_ = v.BindEnv("port", EnvPrefix+"_PORT", "SERVER_PORT")
	_ = v.BindEnv("redis.host", EnvPrefix+"_REDIS_HOST", "REDIS_HOST")
	_ = v.BindEnv("redis.port", EnvPrefix+"_REDIS_PORT", "REDIS_PORT")
	_ = v.BindEnv("redis.username", EnvPrefix+"_REDIS_USERNAME", "REDIS_USERNAME")
	_ = v.BindEnv("redis.password", EnvPrefix+"_REDIS_PASSWORD", "REDIS_PASSWORD")

	d := Default()
	v.SetDefault("host", d.Host)
	v.SetDefault("port", d.Port)
	v.SetDefault("static_dir", d.StaticDir)
	v.SetDefault("tls.port", d.TLS.Port)
	v.SetDefault("tls.cert_file", d.TLS.CertFile)
	v.SetDefault("tls.key_file", d.TLS.KeyFile)
	v.SetDefault("tls.acme_domains", d.TLS.ACMEDomains)
	v.SetDefault("tls.acme_cache_dir", d.TLS.ACMECacheDir)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
	v.SetDefault("stream.buffer", d.Stream.Buffer)
	v.SetDefault("stream.keepalive", d.Stream.Keepalive)
	v.SetDefault("hook.max_body_bytes", d.Hook.MaxBodyBytes)
	v.SetDefault("hook.correlation_path", d.Hook.CorrelationPath)
	v.SetDefault("control.enable_policy_updates", d.Control.EnablePolicyUpdates)
	v.SetDefault("redis.host", d.Redis.Host)
	v.SetDefault("redis.port", d.Redis.Port)
	v.SetDefault("redis.username", d.Redis.Username)
	v.SetDefault("redis.password", d.Redis.Password)
	v.SetDefault("redis.ttl", d.Redis.TTL)
	return v
}

// Validate checks ranges and parses the correlation JSONPath.
func (c *Config) Validate() error {
	if c.Port < constants.MinPort || c.Port > constants.MaxPort {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.TLS.Port != 0 && (c.TLS.Port < constants.MinPort || c.TLS.Port > constants.MaxPort) {
		return fmt.Errorf("invalid tls port %d", c.TLS.Port)
	}
	if c.TLS.Port != 0 && c.TLS.Port == c.Port {
		return errors.New("tls port must differ from port")
	}
	if (c.TLS.CertFile == "") != (c.TLS.KeyFile == "") {
		return errors.New("tls cert_file and key_file must be set together")
	}
	if c.Stream.Buffer < 1 {
		return fmt.Errorf("invalid stream buffer %d", c.Stream.Buffer)
	}
	if c.Stream.Keepalive < 0 {
		return fmt.Errorf("invalid stream keepalive %s", c.Stream.Keepalive)
	}
	if c.Hook.MaxBodyBytes <= 0 {
		return fmt.Errorf("invalid hook max_body_bytes %d", c.Hook.MaxBodyBytes)
	}
	if c.Hook.CorrelationPath != "" {
		if _, err := jp.ParseString(c.Hook.CorrelationPath); err != nil {
			return fmt.Errorf("invalid hook correlation_path %q: %w", c.Hook.CorrelationPath, err)
		}
	}
	return nil
}

// TLSEnabled reports whether a TLS listener should be started.
func (c *Config) TLSEnabled() bool {
	if c.TLS.Port == 0 {
		return false
	}
	return c.TLS.CertFile != "" || len(c.TLS.ACMEDomains) > 0
}

func isNotExist(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}
