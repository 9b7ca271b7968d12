// Package config loads ipscan settings from defaults, an optional YAML file
// and the environment, and exposes them through a nil-safe viper wrapper.
package config

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/HerbHall/ipscan/pkg/models"
)

// EnvPrefix namespaces environment overrides, e.g. IPSCAN_SERVER_PORT.
const EnvPrefix = "IPSCAN"

// legacyEnv maps keys to the unprefixed variable names older deployments set.
var legacyEnv = map[string]string{
	"scanner.range":       "DEFAULT_RANGE",
	"scanner.concurrency": "CONCURRENCY",
	"scanner.timeout_ms":  "TIMEOUT_MS",
}

// Config wraps a viper instance. A Config built from nil returns zero values.
type Config struct {
	v *viper.Viper
}

// New wraps v.
func New(v *viper.Viper) *Config {
	return &Config{v: v}
}

// Load reads defaults, then path (when non-empty), then the environment.
func Load(path string) (*Config, error) {
	v := viper.New()
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, legacy := range legacyEnv {
		prefixed := EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, prefixed, legacy); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", key, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %q: %w", path, err)
		}
	}
	return New(v), nil
}

// SetDefaults registers every known key so env overrides and Unmarshal see it.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "")
	v.SetDefault("server.port", 8080)
	v.SetDefault("store.path", "ipscan.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("scanner.range", "192.168.1.0/24")
	v.SetDefault("scanner.concurrency", 50)
	v.SetDefault("scanner.timeout_ms", 500)
	v.SetDefault("scanner.auto_scan_enabled", false)
	v.SetDefault("scanner.auto_scan_interval_seconds", 60)
	v.SetDefault("scanner.rate_limit", 0.0)
	v.SetDefault("scanner.resolver.server", "")
	v.SetDefault("scanner.resolver.resolv_conf", "/etc/resolv.conf")
	v.SetDefault("scanner.resolver.timeout_ms", 500)
	v.SetDefault("scanner.mdns.enabled", false)
	v.SetDefault("scanner.mdns.timeout_ms", 1500)
}

func (c *Config) GetString(key string) string {
	if c.v == nil {
		return ""
	}
	return c.v.GetString(key)
}

func (c *Config) GetInt(key string) int {
	if c.v == nil {
		return 0
	}
	return c.v.GetInt(key)
}

func (c *Config) GetBool(key string) bool {
	if c.v == nil {
		return false
	}
	return c.v.GetBool(key)
}

func (c *Config) GetDuration(key string) time.Duration {
	if c.v == nil {
		return 0
	}
	return c.v.GetDuration(key)
}

func (c *Config) IsSet(key string) bool {
	if c.v == nil {
		return false
	}
	return c.v.IsSet(key)
}

// Sub returns the subtree at key, or an empty Config when it is missing.
func (c *Config) Sub(key string) *Config {
	if c.v == nil {
		return New(nil)
	}
	return New(c.v.Sub(key))
}

// Unmarshal decodes the whole tree into target using mapstructure tags.
func (c *Config) Unmarshal(target any) error {
	if c.v == nil {
		return nil
	}
	return c.v.Unmarshal(target)
}

// Settings is the typed view of the configuration tree.
type Settings struct {
	Server  ServerSettings  `mapstructure:"server" yaml:"server"`
	Store   StoreSettings   `mapstructure:"store" yaml:"store"`
	Log     LogSettings     `mapstructure:"log" yaml:"log"`
	Scanner ScannerSettings `mapstructure:"scanner" yaml:"scanner"`
}

type ServerSettings struct {
	Host string `mapstructure:"host" yaml:"host"`
	Port int    `mapstructure:"port" yaml:"port"`
}

// Addr returns the listen address.
func (s ServerSettings) Addr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

type StoreSettings struct {
	Path string `mapstructure:"path" yaml:"path"`
}

type LogSettings struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

type ScannerSettings struct {
	Range                   string           `mapstructure:"range" yaml:"range"`
	Concurrency             int              `mapstructure:"concurrency" yaml:"concurrency"`
	TimeoutMs               int              `mapstructure:"timeout_ms" yaml:"timeout_ms"`
	AutoScanEnabled         bool             `mapstructure:"auto_scan_enabled" yaml:"auto_scan_enabled"`
	AutoScanIntervalSeconds int              `mapstructure:"auto_scan_interval_seconds" yaml:"auto_scan_interval_seconds"`
	RateLimit               float64          `mapstructure:"rate_limit" yaml:"rate_limit"`
	Resolver                ResolverSettings `mapstructure:"resolver" yaml:"resolver"`
	MDNS                    MDNSSettings     `mapstructure:"mdns" yaml:"mdns"`
}

// ScanConfig returns the runtime-editable part of the scanner settings.
func (s ScannerSettings) ScanConfig() models.ScanConfig {
	return models.ScanConfig{
		Range:                   s.Range,
		Concurrency:             s.Concurrency,
		TimeoutMs:               s.TimeoutMs,
		AutoScanEnabled:         s.AutoScanEnabled,
		AutoScanIntervalSeconds: s.AutoScanIntervalSeconds,
	}
}

type ResolverSettings struct {
	Server     string `mapstructure:"server" yaml:"server"`
	ResolvConf string `mapstructure:"resolv_conf" yaml:"resolv_conf"`
	TimeoutMs  int    `mapstructure:"timeout_ms" yaml:"timeout_ms"`
}

// Timeout returns the per-lookup budget.
func (r ResolverSettings) Timeout() time.Duration {
	return time.Duration(r.TimeoutMs) * time.Millisecond
}

type MDNSSettings struct {
	Enabled   bool `mapstructure:"enabled" yaml:"enabled"`
	TimeoutMs int  `mapstructure:"timeout_ms" yaml:"timeout_ms"`
}

// Timeout returns the sweep listen window.
func (m MDNSSettings) Timeout() time.Duration {
	return time.Duration(m.TimeoutMs) * time.Millisecond
}

// Settings decodes the tree into a Settings value.
func (c *Config) Settings() (Settings, error) {
	var s Settings
	if c.v == nil {
		return s, errors.New("config not loaded")
	}
	if err := c.Unmarshal(&s); err != nil {
		return s, fmt.Errorf("decode settings: %w", err)
	}
	return s, nil
}
