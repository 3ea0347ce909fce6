package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/HaDeSMonsta/get-flight-data/pkg/fetch"
	"github.com/HaDeSMonsta/get-flight-data/pkg/resolver"
)

// Config represents the top-level configuration file structure
type Config struct {
	Credentials     CredentialsConfig `yaml:"credentials" toml:"credentials"`
	Endpoints       EndpointsConfig   `yaml:"endpoints" toml:"endpoints"`
	WeatherProvider string            `yaml:"weather_provider" toml:"weather_provider"`
	Refresh         RefreshConfig     `yaml:"refresh" toml:"refresh"`
	HTTP            HTTPConfig        `yaml:"http" toml:"http"`
	Storage         StorageConfig     `yaml:"storage" toml:"storage"`
	Logging         LoggingConfig     `yaml:"logging" toml:"logging"`
	Server          ServerConfig      `yaml:"server" toml:"server"`
}

// CredentialsConfig locates the credentials document
type CredentialsConfig struct {
	File string `yaml:"file" toml:"file"`
}

// EndpointsConfig contains the upstream base URLs
type EndpointsConfig struct {
	FlightPlan      string `yaml:"flight_plan" toml:"flight_plan"`
	AVWX            string `yaml:"avwx" toml:"avwx"`
	AviationWeather string `yaml:"aviationweather" toml:"aviationweather"`
	Atis            string `yaml:"atis" toml:"atis"`
}

// RefreshConfig controls the scheduler
type RefreshConfig struct {
	Interval            time.Duration `yaml:"interval" toml:"interval"`
	Poll                time.Duration `yaml:"poll" toml:"poll"`
	SuppressAutoUpdates bool          `yaml:"suppress_auto_updates" toml:"suppress_auto_updates"`
}

// HTTPConfig controls the upstream client
type HTTPConfig struct {
	Timeout           time.Duration `yaml:"timeout" toml:"timeout"`
	MaxRetries        int           `yaml:"max_retries" toml:"max_retries"`
	RequestsPerSecond float64       `yaml:"requests_per_second" toml:"requests_per_second"`
	UserAgent         string        `yaml:"user_agent" toml:"user_agent"`
}

// StorageConfig locates local databases and state files
type StorageConfig struct {
	HistoryDB string `yaml:"history_db" toml:"history_db"`
	UIState   string `yaml:"ui_state" toml:"ui_state"`
}

// LoggingConfig controls the log file
type LoggingConfig struct {
	File       string `yaml:"file" toml:"file"`
	MaxAgeDays int    `yaml:"max_age_days" toml:"max_age_days"`
	Echo       bool   `yaml:"echo" toml:"echo"`
	RingSize   int    `yaml:"ring_size" toml:"ring_size"`
}

// ServerConfig controls `gfd serve`
type ServerConfig struct {
	Addr string `yaml:"addr" toml:"addr"`
}

const (
	DefaultCredentialsFile = "userdata.json"
	DefaultHistoryDB       = "gfd.db"
	DefaultLogFile         = "logs/gfd.log"
	DefaultServerAddr      = "127.0.0.1:8080"
	DefaultMaxAgeDays      = 30
	DefaultRingSize        = 2000
)

// Default returns the configuration used when no file exists
func Default() *Config {
	fo := fetch.DefaultOptions()
	ep := resolver.DefaultEndpoints()
	return &Config{
		Credentials: CredentialsConfig{File: DefaultCredentialsFile},
		Endpoints: EndpointsConfig{
			FlightPlan:      ep.FlightPlan,
			AVWX:            ep.AVWX,
			AviationWeather: ep.AviationWeather,
			Atis:            ep.Atis,
		},
		WeatherProvider: string(resolver.ProviderAVWX),
		Refresh: RefreshConfig{
			Interval: 5 * time.Minute,
			Poll:     time.Second,
		},
		HTTP: HTTPConfig{
			Timeout:    fo.Timeout,
			MaxRetries: fo.MaxRetries,
			UserAgent:  fo.UserAgent,
		},
		Storage: StorageConfig{HistoryDB: DefaultHistoryDB},
		Logging: LoggingConfig{
			File:       DefaultLogFile,
			MaxAgeDays: DefaultMaxAgeDays,
			RingSize:   DefaultRingSize,
		},
		Server: ServerConfig{Addr: DefaultServerAddr},
	}
}

// DefaultPath returns $XDG_CONFIG_HOME/gfd/config.yaml (or the platform equivalent)
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil || dir == "" {
		return filepath.Join(".", "config.yaml")
	}
	return filepath.Join(dir, "gfd", "config.yaml")
}

// LoadFromFile reads a YAML or TOML configuration file (chosen by extension)
// on top of the defaults and validates the result
func LoadFromFile(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Default()
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".toml":
		if _, err := toml.Decode(string(data), config); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	case ".yaml", ".yml", "":
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config format %q (use .yaml or .toml)", filepath.Ext(filename))
	}

	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", filename, err)
	}
	return config, nil
}

// LoadOrDefault loads path, or DefaultPath() when path is empty. A missing
// file yields the defaults; any other failure is returned.
func LoadOrDefault(path string) (*Config, error) {
	explicit := path != ""
	if !explicit {
		path = DefaultPath()
	}
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		if explicit {
			return nil, fmt.Errorf("config file not found: %s", path)
		}
		slog.Debug("No config file, using defaults", "path", path)
		return Default(), nil
	}
	return LoadFromFile(path)
}

// ApplyDefaults fills values that were explicitly blanked in the file
func (c *Config) ApplyDefaults() {
	d := Default()

	if c.Credentials.File == "" {
		c.Credentials.File = d.Credentials.File
	}
	if c.Endpoints.FlightPlan == "" {
		c.Endpoints.FlightPlan = d.Endpoints.FlightPlan
	}
	if c.Endpoints.AVWX == "" {
		c.Endpoints.AVWX = d.Endpoints.AVWX
	}
	if c.Endpoints.AviationWeather == "" {
		c.Endpoints.AviationWeather = d.Endpoints.AviationWeather
	}
	if c.Endpoints.Atis == "" {
		c.Endpoints.Atis = d.Endpoints.Atis
	}
	if c.WeatherProvider == "" {
		c.WeatherProvider = d.WeatherProvider
	}
	if c.Refresh.Interval == 0 {
		c.Refresh.Interval = d.Refresh.Interval
	}
	if c.Refresh.Poll == 0 {
		c.Refresh.Poll = d.Refresh.Poll
	}
	if c.HTTP.Timeout == 0 {
		c.HTTP.Timeout = d.HTTP.Timeout
	}
	if c.HTTP.UserAgent == "" {
		c.HTTP.UserAgent = d.HTTP.UserAgent
	}
	if c.Storage.HistoryDB == "" {
		c.Storage.HistoryDB = d.Storage.HistoryDB
	}
	if c.Logging.RingSize == 0 {
		c.Logging.RingSize = d.Logging.RingSize
	}
	if c.Server.Addr == "" {
		c.Server.Addr = d.Server.Addr
	}
}

// Validate checks value ranges and endpoint URLs
func (c *Config) Validate() error {
	if c.Refresh.Interval <= 0 {
		return fmt.Errorf("refresh interval must be greater than 0: %s", c.Refresh.Interval)
	}
	if c.Refresh.Poll <= 0 {
		return fmt.Errorf("refresh poll must be greater than 0: %s", c.Refresh.Poll)
	}
	if c.Refresh.Poll > c.Refresh.Interval {
		return fmt.Errorf("refresh poll (%s) must not exceed interval (%s)", c.Refresh.Poll, c.Refresh.Interval)
	}
	if c.HTTP.Timeout <= 0 {
		return fmt.Errorf("http timeout must be greater than 0: %s", c.HTTP.Timeout)
	}
	if c.HTTP.MaxRetries < 0 {
		return fmt.Errorf("http max_retries must be 0 or greater: %d", c.HTTP.MaxRetries)
	}
	if c.HTTP.RequestsPerSecond < 0 {
		return fmt.Errorf("http requests_per_second must be 0 or greater: %g", c.HTTP.RequestsPerSecond)
	}
	if c.Logging.MaxAgeDays < 0 {
		return fmt.Errorf("logging max_age_days must be 0 or greater: %d", c.Logging.MaxAgeDays)
	}
	if !isSupportedProvider(c.WeatherProvider) {
		return fmt.Errorf("unsupported weather_provider %q (supported: %s)",
			c.WeatherProvider, strings.Join(resolver.SupportedWeatherProviders(), ", "))
	}

	endpoints := map[string]string{
		"flight_plan":     c.Endpoints.FlightPlan,
		"avwx":            c.Endpoints.AVWX,
		"aviationweather": c.Endpoints.AviationWeather,
		"atis":            c.Endpoints.Atis,
	}
	for _, name := range []string{"flight_plan", "avwx", "aviationweather", "atis"} {
		u, err := url.Parse(endpoints[name])
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("endpoint %s is not an http(s) URL: %q", name, endpoints[name])
		}
	}
	return nil
}

func isSupportedProvider(p string) bool {
	for _, s := range resolver.SupportedWeatherProviders() {
		if strings.EqualFold(s, strings.TrimSpace(p)) {
			return true
		}
	}
	return false
}

// FetchOptions maps the http section onto fetcher options
func (c *Config) FetchOptions() fetch.Options {
	opts := fetch.DefaultOptions()
	opts.Timeout = c.HTTP.Timeout
	opts.MaxRetries = c.HTTP.MaxRetries
	opts.RequestsPerSecond = c.HTTP.RequestsPerSecond
	opts.UserAgent = c.HTTP.UserAgent
	return opts
}

// ResolverEndpoints maps the endpoints section onto resolver endpoints
func (c *Config) ResolverEndpoints() resolver.Endpoints {
	return resolver.Endpoints{
		FlightPlan:      c.Endpoints.FlightPlan,
		AVWX:            c.Endpoints.AVWX,
		AviationWeather: c.Endpoints.AviationWeather,
		Atis:            c.Endpoints.Atis,
	}
}
